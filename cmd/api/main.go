package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wardrobe/internal/adapter"
	"wardrobe/internal/bgremoval"
	"wardrobe/internal/compositor"
	"wardrobe/internal/derivation"
	"wardrobe/internal/domain"
	"wardrobe/internal/http/handlers"
	httpapi "wardrobe/internal/http/httpapi"
	"wardrobe/internal/imaging"
	"wardrobe/internal/infra"
	"wardrobe/internal/metrics"
	"wardrobe/internal/storage"
)

const (
	queuePerWorker = 16
	recoveryBatch  = 100
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	repos, err := adapter.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DatabaseDriver).Msg("failed to open database")
	}
	defer repos.Close()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.BlobDriver).Msg("failed to configure blob store")
	}

	remover, err := bgremoval.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure background remover")
	}

	recorder := metrics.New()
	codec := imaging.NewCodec()

	orchestrator := derivation.NewOrchestrator(repos.Assets, store, codec, remover, derivation.Options{
		StepTimeout:      cfg.StepTimeout,
		OptimizedMaxEdge: cfg.OptimizedMaxEdge,
		ThumbnailMaxEdge: cfg.ThumbnailMaxEdge,
		PaletteSize:      cfg.PaletteSize,
	}, logger).WithObserver(recorder)
	dispatcher := derivation.NewDispatcher(orchestrator, cfg.DerivationWorkers, cfg.DerivationWorkers*queuePerWorker, logger)
	recorder.RegisterQueueDepth(dispatcher.Pending)

	garments := derivation.NewService(repos.Assets, store, dispatcher, logger)
	comp := compositor.New(repos.Assets, repos.Snapshots, store, codec, compositor.Options{
		Canvas: domain.Canvas{Width: cfg.CanvasWidth, Height: cfg.CanvasHeight},
	}, logger).WithObserver(recorder)

	// Records left behind by a previous run of this process.
	if n, err := garments.FailInterrupted(ctx, cfg.RecoveryGrace); err != nil {
		logger.Warn().Err(err).Msg("failed to fail interrupted records")
	} else if n > 0 {
		logger.Info().Int64("failed", n).Msg("interrupted records marked failed")
	}
	if _, err := garments.RecoverPending(ctx, 0, recoveryBatch); err != nil {
		logger.Warn().Err(err).Msg("failed to recover pending records")
	}

	app := &handlers.App{
		Garments:       garments,
		Compositor:     comp,
		Assets:         repos.Assets,
		Store:          store,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Logger:         logger,
	}

	opts := httpapi.Options{
		Logger:          logger,
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		DefaultLocale:   cfg.DefaultLocale,
		RateLimitPerMin: cfg.RateLimitPerMin,
		Metrics:         recorder,
	}
	if fs, ok := store.(*storage.FileStore); ok {
		opts.StaticDir = fs.BasePath()
	}
	router := httpapi.NewRouter(app, opts)

	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	// Jobs still running get the step timeout to finish before records are
	// left in processing for the next start to fail.
	drainCtx, cancelDrain := context.WithTimeout(context.Background(), cfg.StepTimeout+5*time.Second)
	defer cancelDrain()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Warn().Err(err).Int("pending", dispatcher.Pending()).Msg("derivation jobs still running at shutdown")
	}
	logger.Info().Msg("server stopped")
}
