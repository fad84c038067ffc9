package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"wardrobe/internal/domain"
)

// maxLayoutBytes bounds layout request bodies.
const maxLayoutBytes = 1 << 20

func decodeLayout(w http.ResponseWriter, r *http.Request) (*domain.RenderLayout, error) {
	var layout domain.RenderLayout
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLayoutBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&layout); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	return &layout, nil
}

// checkLayerOwnership rejects layouts referencing garments of another owner.
// Unknown ids are left to layout validation.
func (a *App) checkLayerOwnership(r *http.Request, owner string, layout domain.RenderLayout) error {
	assets, err := a.Assets.GetMany(r.Context(), layout.AssetIDs())
	if err != nil {
		return err
	}
	for id, asset := range assets {
		if asset.OwnerID != owner {
			return fmt.Errorf("layer asset %s belongs to another owner: %w", id, domain.ErrInvalidLayout)
		}
	}
	return nil
}

// composedBy reports whether every layer of layout is a garment of owner.
// Snapshots carry no creator of their own; the garments they show do.
func composedBy(assets map[string]*domain.DerivedAsset, owner string, layout domain.RenderLayout) bool {
	if len(layout.Layers) == 0 {
		return false
	}
	for _, l := range layout.Layers {
		asset, ok := assets[l.AssetID]
		if !ok || asset.OwnerID != owner {
			return false
		}
	}
	return true
}

// ownedSnapshot loads the snapshot named in the URL and writes the error
// response itself when the caller did not compose it.
func (a *App) ownedSnapshot(w http.ResponseWriter, r *http.Request) (*domain.Snapshot, bool) {
	owner := a.currentOwner(r)
	if owner == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return nil, false
	}
	snap, err := a.Compositor.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	assets, err := a.Assets.GetMany(r.Context(), snap.Layout.AssetIDs())
	if err != nil {
		a.fail(w, r, err)
		return nil, false
	}
	if !composedBy(assets, owner, snap.Layout) {
		a.error(w, http.StatusForbidden, "forbidden", "not your snapshot")
		return nil, false
	}
	return snap, true
}

// GenerateSnapshot renders a new snapshot of the outfit named in the URL.
func (a *App) GenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	layout, err := decodeLayout(w, r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid layout payload")
		return
	}
	if layout == nil {
		a.error(w, http.StatusBadRequest, "bad_request", "layout body is required")
		return
	}
	if err := a.checkLayerOwnership(r, owner, *layout); err != nil {
		a.fail(w, r, err)
		return
	}
	snap, err := a.Compositor.Generate(r.Context(), chi.URLParam(r, "outfitID"), *layout)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusCreated, snap)
}

// ListSnapshots returns the snapshots of an outfit. With ?date=YYYY-MM-DD
// only snapshots generated on that calendar day are returned; the day is
// evaluated in the IANA zone given by ?tz (UTC by default).
func (a *App) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	loc := time.UTC
	if tz := r.URL.Query().Get("tz"); tz != "" {
		parsed, err := time.LoadLocation(tz)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "unknown time zone")
			return
		}
		loc = parsed
	}
	var day time.Time
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation(time.DateOnly, raw, loc)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "date must be YYYY-MM-DD")
			return
		}
		day = domain.NormalizeWearDate(parsed, loc)
	}

	snaps, err := a.Compositor.List(r.Context(), chi.URLParam(r, "outfitID"))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var ids []string
	for _, s := range snaps {
		ids = append(ids, s.Layout.AssetIDs()...)
	}
	assets, err := a.Assets.GetMany(r.Context(), ids)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	items := make([]domain.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if !composedBy(assets, owner, s.Layout) {
			continue
		}
		if !day.IsZero() && !domain.NormalizeWearDate(s.GeneratedAt, loc).Equal(day) {
			continue
		}
		items = append(items, s)
	}
	a.json(w, http.StatusOK, map[string]any{"items": items})
}

func (a *App) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.ownedSnapshot(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, snap)
}

// RegenerateSnapshot re-renders a snapshot, from the request layout when a
// body is sent and from the stored layout otherwise.
func (a *App) RegenerateSnapshot(w http.ResponseWriter, r *http.Request) {
	owner := a.currentOwner(r)
	if owner == "" {
		a.error(w, http.StatusUnauthorized, "unauthorized", "missing owner context")
		return
	}
	current, ok := a.ownedSnapshot(w, r)
	if !ok {
		return
	}
	layout, err := decodeLayout(w, r)
	if err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid layout payload")
		return
	}
	if layout != nil {
		if err := a.checkLayerOwnership(r, owner, *layout); err != nil {
			a.fail(w, r, err)
			return
		}
	}
	snap, err := a.Compositor.Regenerate(r.Context(), current.ID, layout)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	a.json(w, http.StatusOK, snap)
}

func (a *App) DeleteSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, ok := a.ownedSnapshot(w, r)
	if !ok {
		return
	}
	if err := a.Compositor.Delete(r.Context(), snap.ID); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
