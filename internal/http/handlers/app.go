package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"wardrobe/internal/compositor"
	"wardrobe/internal/derivation"
	"wardrobe/internal/domain"
	"wardrobe/internal/middleware"
	"wardrobe/internal/storage"
)

// App carries the collaborators of the HTTP handlers.
type App struct {
	Garments       *derivation.Service
	Compositor     *compositor.Compositor
	Assets         domain.AssetRepository
	Store          storage.BlobStore
	MaxUploadBytes int64
	Logger         zerolog.Logger
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, code int, errCode, message string) {
	a.json(w, code, map[string]any{
		"error": map[string]string{"code": errCode, "message": message},
	})
}

// fail maps a service error onto the HTTP error envelope.
func (a *App) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		a.error(w, http.StatusNotFound, "not_found", "resource not found")
	case errors.Is(err, domain.ErrInvalidLayout):
		a.error(w, http.StatusUnprocessableEntity, domain.KindInvalidLayout, err.Error())
	case errors.Is(err, domain.ErrDuplicateSubmission):
		a.error(w, http.StatusConflict, "duplicate_submission", "record is already being processed")
	case errors.Is(err, domain.ErrConflict):
		a.error(w, http.StatusConflict, "conflict", "record changed concurrently or is in the wrong state")
	case errors.Is(err, domain.ErrUnsupportedFormat):
		a.error(w, http.StatusUnsupportedMediaType, domain.KindUnsupportedFormat, "unsupported image format")
	case errors.Is(err, domain.ErrCorruptData):
		a.error(w, http.StatusBadRequest, domain.KindCorruptData, "image data is empty or corrupt")
	case errors.Is(err, domain.ErrStoreUnavailable):
		a.logger(r).Error().Err(err).Msg("blob store unavailable")
		a.error(w, http.StatusServiceUnavailable, domain.KindStoreUnavailable, "storage temporarily unavailable")
	default:
		a.logger(r).Error().Err(err).Str("kind", domain.ErrorKind(err)).Msg("request failed")
		a.error(w, http.StatusInternalServerError, "internal", "internal error")
	}
}

// logger prefers the request scoped logger installed by middleware.Logger.
func (a *App) logger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &a.Logger
}

func (a *App) currentOwner(r *http.Request) string {
	return middleware.OwnerFromContext(r.Context())
}
