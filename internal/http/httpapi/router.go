package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"wardrobe/internal/http/handlers"
	"wardrobe/internal/metrics"
	"wardrobe/internal/middleware"
)

// Options configures the router.
type Options struct {
	Logger          zerolog.Logger
	JWTSecret       string
	CORSOrigins     []string
	DefaultLocale   string
	RateLimitPerMin int
	// Metrics is optional; when set, requests are measured and /metrics is served.
	Metrics *metrics.Recorder
	// StaticDir serves stored blobs under /static/ for the filesystem driver.
	StaticDir string
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		middleware.Logger(opts.Logger),
		chimw.Recoverer,
		middleware.CORS(opts.CORSOrigins),
	)
	if opts.Metrics != nil {
		r.Use(opts.Metrics.Middleware)
		r.Method(http.MethodGet, "/metrics", opts.Metrics.Handler())
	}

	if opts.StaticDir != "" {
		fs := http.StripPrefix("/static/", http.FileServer(http.Dir(opts.StaticDir)))
		r.Handle("/static/*", fs)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			r.Use(
				middleware.Owner(opts.JWTSecret),
				middleware.I18N(opts.DefaultLocale),
				middleware.RateLimit(opts.RateLimitPerMin, time.Minute),
			)

			r.Route("/garment-images", func(r chi.Router) {
				r.Post("/", app.SubmitGarment)
				r.Get("/", app.ListGarments)
				r.Get("/{id}/status", app.GarmentStatus)
				r.Post("/{id}/retry", app.RetryGarment)
				r.Get("/{id}/bundle", app.GarmentBundle)
			})

			r.Route("/outfits/{outfitID}/snapshots", func(r chi.Router) {
				r.Post("/", app.GenerateSnapshot)
				r.Get("/", app.ListSnapshots)
			})

			r.Route("/snapshots/{id}", func(r chi.Router) {
				r.Get("/", app.GetSnapshot)
				r.Post("/regenerate", app.RegenerateSnapshot)
				r.Delete("/", app.DeleteSnapshot)
			})
		})
	})

	return r
}
