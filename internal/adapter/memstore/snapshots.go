package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"wardrobe/internal/domain"
)

// Snapshots implements domain.SnapshotRepository.
type Snapshots struct {
	mu      sync.RWMutex
	records map[string]domain.Snapshot
	now     func() time.Time
}

// NewSnapshots returns an empty repository.
func NewSnapshots() *Snapshots {
	return &Snapshots{records: make(map[string]domain.Snapshot), now: func() time.Time { return time.Now().UTC() }}
}

func cloneSnapshot(s domain.Snapshot) *domain.Snapshot {
	out := s
	out.Layout = s.Layout.Clone()
	return &out
}

func (r *Snapshots) Create(ctx context.Context, snap *domain.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[snap.ID]; ok {
		return fmt.Errorf("memstore: snapshot %s: %w", snap.ID, domain.ErrConflict)
	}
	r.records[snap.ID] = *cloneSnapshot(*snap)
	return nil
}

func (r *Snapshots) GetByID(ctx context.Context, id string) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.records[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneSnapshot(s), nil
}

func (r *Snapshots) ListByOwner(ctx context.Context, ownerID string) ([]domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []domain.Snapshot
	for _, s := range r.records {
		if s.OwnerID == ownerID {
			out = append(out, *cloneSnapshot(s))
		}
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Snapshots) Swap(ctx context.Context, swap domain.SnapshotSwap) (*domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.records[swap.ID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if s.Generation != swap.ExpectedGeneration {
		return nil, fmt.Errorf("memstore: snapshot %s at generation %d, expected %d: %w", swap.ID, s.Generation, swap.ExpectedGeneration, domain.ErrConflict)
	}
	s.Artifact = swap.Artifact
	s.Layout = swap.Layout.Clone()
	s.Generation++
	s.GeneratedAt = swap.GeneratedAt
	s.UpdatedAt = r.now()
	r.records[swap.ID] = s
	return cloneSnapshot(s), nil
}

func (r *Snapshots) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.records, id)
	return nil
}
