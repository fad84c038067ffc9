package handlers

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"wardrobe/internal/domain"
	"wardrobe/internal/middleware"
	"wardrobe/pkg/zip"
)

type submitResponse struct {
	ID        string        `json:"id"`
	Status    domain.Status `json:"status"`
	StatusURL string        `json:"status_url"`
}

// SubmitGarment accepts a photograph either as the multipart field "image"
// or as the raw request body, stores it and schedules its derivation.
func (a *App) SubmitGarment(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	data, declared, err := a.readUpload(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			a.error(w, http.StatusRequestEntityTooLarge, "payload_too_large",
				fmt.Sprintf("upload exceeds %d bytes", a.MaxUploadBytes))
			return
		}
		a.error(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	asset, err := a.Garments.Submit(r.Context(), owner, data, declared)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, submitResponse{
		ID:        asset.ID,
		Status:    asset.Status,
		StatusURL: "/v1/garment-images/" + asset.ID + "/status",
	})
}

func (a *App) readUpload(w http.ResponseWriter, r *http.Request) ([]byte, string, error) {
	if a.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, a.MaxUploadBytes)
	}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType != "multipart/form-data" {
		data, err := io.ReadAll(r.Body)
		return data, mediaType, err
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", err
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", errors.New(`multipart field "image" is required`)
		}
		if err != nil {
			return nil, "", err
		}
		if part.FormName() != "image" {
			part.Close()
			continue
		}
		data, err := io.ReadAll(part)
		part.Close()
		return data, part.Header.Get("Content-Type"), err
	}
}

func (a *App) ListGarments(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	assets, err := a.Garments.List(r.Context(), owner, limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	locale := middleware.LocaleFromContext(r.Context())
	items := make([]domain.StatusView, 0, len(assets))
	for i := range assets {
		items = append(items, assets[i].View(locale))
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

// ownedGarment loads the record named in the URL and writes the error
// response itself when the caller may not see it.
func (a *App) ownedGarment(w http.ResponseWriter, r *http.Request) (*domain.DerivedAsset, bool) {
	owner := a.currentOwner(r)
	if owner == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return nil, false
	}
	asset, err := a.Garments.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if asset.OwnerID != owner {
		a.error(w, http.StatusForbidden, "forbidden", "not your garment image")
		return nil, false
	}
	return asset, true
}

func (a *App) GarmentStatus(w http.ResponseWriter, r *http.Request) {
	asset, ok := a.ownedGarment(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, asset.View(middleware.LocaleFromContext(r.Context())))
}

func (a *App) RetryGarment(w http.ResponseWriter, r *http.Request) {
	asset, ok := a.ownedGarment(w, r)
	if !ok {
		return
	}
	asset, err := a.Garments.Resubmit(r.Context(), asset.ID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusAccepted, asset.View(middleware.LocaleFromContext(r.Context())))
}

// GarmentBundle streams the original upload and its derived images as one
// zip archive. Only completed records have a bundle.
func (a *App) GarmentBundle(w http.ResponseWriter, r *http.Request) {
	asset, ok := a.ownedGarment(w, r)
	if !ok {
		return
	}
	if asset.Status != domain.StatusCompleted {
		a.error(w, http.StatusConflict, "not_completed", "derivation has not completed")
		return
	}

	files := []struct{ name, key string }{
		{"original" + path.Ext(asset.Raw.Key), asset.Raw.Key},
		{"cutout.png", asset.Artifacts.Cutout.Key},
		{"optimized.png", asset.Artifacts.Optimized.Key},
		{"thumbnail.png", asset.Artifacts.Thumbnail.Key},
	}
	entries := make([]zip.Entry, 0, len(files))
	for _, f := range files {
		data, err := a.Store.Get(r.Context(), f.key)
		if err != nil {
			a.fail(w, r, fmt.Errorf("bundle %s: %w", f.name, err))
			return
		}
		entries = append(entries, zip.Entry{Filename: f.name, Data: data, Modified: asset.UpdatedAt})
	}

	var buf bytes.Buffer
	if err := zip.Write(&buf, entries); err != nil {
		a.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=garment-%s.zip", strings.ReplaceAll(asset.ID, `"`, "")))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
