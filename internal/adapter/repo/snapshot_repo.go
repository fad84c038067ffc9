package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"wardrobe/internal/domain"
	"wardrobe/internal/infra"
	"wardrobe/internal/sqlinline"
)

// SnapshotRepositoryPG implements domain.SnapshotRepository on PostgreSQL.
type SnapshotRepositoryPG struct {
	db infra.SQLExecutor
}

// NewSnapshotRepository constructs the repository.
func NewSnapshotRepository(db infra.SQLExecutor) *SnapshotRepositoryPG {
	return &SnapshotRepositoryPG{db: db}
}

func (r *SnapshotRepositoryPG) Create(ctx context.Context, s *domain.Snapshot) error {
	layout, err := domain.MarshalLayout(s.Layout)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertOutfitSnapshot,
		s.ID,
		s.OwnerID,
		s.Artifact.Key,
		s.Artifact.URL,
		layout,
		s.Generation,
		s.GeneratedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

func (r *SnapshotRepositoryPG) GetByID(ctx context.Context, id string) (*domain.Snapshot, error) {
	s, err := scanSnapshot(r.db.QueryRow(ctx, sqlinline.QSelectOutfitSnapshotByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *SnapshotRepositoryPG) ListByOwner(ctx context.Context, ownerID string) ([]domain.Snapshot, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListOutfitSnapshotsByOwner, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.Snapshot{}
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Swap relies on the generation predicate of the update: of two concurrent
// swaps from the same generation exactly one matches a row.
func (r *SnapshotRepositoryPG) Swap(ctx context.Context, swap domain.SnapshotSwap) (*domain.Snapshot, error) {
	layout, err := domain.MarshalLayout(swap.Layout)
	if err != nil {
		return nil, err
	}
	s, err := scanSnapshot(r.db.QueryRow(ctx, sqlinline.QSwapOutfitSnapshot,
		swap.ID,
		swap.ExpectedGeneration,
		swap.Artifact.Key,
		swap.Artifact.URL,
		layout,
		swap.GeneratedAt,
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	var generation int
	if err := r.db.QueryRow(ctx, sqlinline.QSelectOutfitSnapshotGeneration, swap.ID).Scan(&generation); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return nil, fmt.Errorf("snapshot %s at generation %d, expected %d: %w", swap.ID, generation, swap.ExpectedGeneration, domain.ErrConflict)
}

func (r *SnapshotRepositoryPG) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteOutfitSnapshot, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSnapshot(row pgx.Row) (*domain.Snapshot, error) {
	var (
		s      domain.Snapshot
		layout []byte
	)
	if err := row.Scan(
		&s.ID,
		&s.OwnerID,
		&s.Artifact.Key,
		&s.Artifact.URL,
		&layout,
		&s.Generation,
		&s.GeneratedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l, err := domain.UnmarshalLayout(layout)
	if err != nil {
		return nil, err
	}
	s.Layout = l
	return &s, nil
}

var _ domain.SnapshotRepository = (*SnapshotRepositoryPG)(nil)
