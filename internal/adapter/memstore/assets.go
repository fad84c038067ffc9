// Package memstore keeps records in process memory. It backs the "memory"
// database driver and the tests of the packages above the repositories.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wardrobe/internal/domain"
)

// Assets implements domain.AssetRepository.
type Assets struct {
	mu      sync.RWMutex
	records map[string]domain.DerivedAsset
	now     func() time.Time
}

// NewAssets returns an empty repository.
func NewAssets() *Assets {
	return &Assets{records: make(map[string]domain.DerivedAsset), now: func() time.Time { return time.Now().UTC() }}
}

func cloneAsset(a domain.DerivedAsset) *domain.DerivedAsset {
	out := a
	out.Colors = append([]domain.Color{}, a.Colors...)
	if a.DominantColor != nil {
		c := *a.DominantColor
		out.DominantColor = &c
	}
	return &out
}

func (r *Assets) Create(ctx context.Context, asset *domain.DerivedAsset) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[asset.ID]; ok {
		return fmt.Errorf("memstore: asset %s: %w", asset.ID, domain.ErrConflict)
	}
	r.records[asset.ID] = *cloneAsset(*asset)
	return nil
}

func (r *Assets) GetByID(ctx context.Context, id string) (*domain.DerivedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneAsset(a), nil
}

func (r *Assets) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.DerivedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []domain.DerivedAsset
	for _, a := range r.records {
		if a.OwnerID == ownerID {
			out = append(out, *cloneAsset(a))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	if offset >= len(out) {
		return []domain.DerivedAsset{}, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Assets) GetMany(ctx context.Context, ids []string) (map[string]*domain.DerivedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.DerivedAsset, len(ids))
	for _, id := range ids {
		if a, ok := r.records[id]; ok {
			out[id] = cloneAsset(a)
		}
	}
	return out, nil
}

// update applies fn to record id when its status is one of from.
func (r *Assets) update(ctx context.Context, id string, to domain.Status, fn func(*domain.DerivedAsset), from ...domain.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.records[id]
	if !ok {
		return domain.ErrNotFound
	}
	allowed := false
	for _, s := range from {
		if a.Status == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("memstore: %s -> %s: %w", a.Status, to, domain.ErrInvalidTransition)
	}
	if fn != nil {
		fn(&a)
	}
	a.Status = to
	a.UpdatedAt = r.now()
	r.records[id] = a
	return nil
}

func (r *Assets) MarkProcessing(ctx context.Context, id string) error {
	return r.update(ctx, id, domain.StatusProcessing, nil, domain.StatusPending)
}

func (r *Assets) Complete(ctx context.Context, id string, c domain.Completion) error {
	return r.update(ctx, id, domain.StatusCompleted, func(a *domain.DerivedAsset) {
		dominant := c.DominantColor
		a.Artifacts = c.Artifacts
		a.Width, a.Height = c.Width, c.Height
		a.DominantColor = &dominant
		a.Colors = append([]domain.Color{}, c.Colors...)
		a.ErrorKind, a.ErrorMessage = "", ""
	}, domain.StatusProcessing)
}

func (r *Assets) Fail(ctx context.Context, id, kind, message string) error {
	return r.update(ctx, id, domain.StatusFailed, func(a *domain.DerivedAsset) {
		a.Artifacts = domain.DerivedArtifacts{}
		a.Width, a.Height = 0, 0
		a.DominantColor = nil
		a.Colors = []domain.Color{}
		a.ErrorKind, a.ErrorMessage = kind, message
	}, domain.StatusProcessing)
}

func (r *Assets) Reset(ctx context.Context, id string) error {
	return r.update(ctx, id, domain.StatusPending, func(a *domain.DerivedAsset) {
		a.ErrorKind, a.ErrorMessage = "", ""
	}, domain.StatusFailed)
}

func (r *Assets) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.DerivedAsset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []domain.DerivedAsset
	for _, a := range r.records {
		if a.Status == domain.StatusPending && a.UpdatedAt.Before(cutoff) {
			out = append(out, *cloneAsset(a))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *Assets) FailStaleProcessing(ctx context.Context, cutoff time.Time, kind, message string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, a := range r.records {
		if a.Status != domain.StatusProcessing || !a.UpdatedAt.Before(cutoff) {
			continue
		}
		a.Status = domain.StatusFailed
		a.Artifacts = domain.DerivedArtifacts{}
		a.Width, a.Height = 0, 0
		a.DominantColor = nil
		a.Colors = []domain.Color{}
		a.ErrorKind, a.ErrorMessage = kind, message
		a.UpdatedAt = r.now()
		r.records[id] = a
		n++
	}
	return n, nil
}

// ListFailedIDsByOwner returns the failed records of an owner, oldest first.
func (r *Assets) ListFailedIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var failed []domain.DerivedAsset
	for _, a := range r.records {
		if a.OwnerID == ownerID && a.Status == domain.StatusFailed {
			failed = append(failed, a)
		}
	}
	r.mu.RUnlock()
	sort.Slice(failed, func(i, j int) bool { return failed[i].CreatedAt.Before(failed[j].CreatedAt) })
	ids := make([]string, len(failed))
	for i, a := range failed {
		ids[i] = a.ID
	}
	return ids, nil
}
