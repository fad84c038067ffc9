package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"wardrobe/internal/domain"
)

var _ domain.SnapshotRepository = (*SnapshotRepository)(nil)

// SnapshotRepository implements domain.SnapshotRepository.
type SnapshotRepository struct {
	store *Store
}

const snapshotColumns = `id, owner_id, artifact_key, artifact_url, layout, generation, generated_at, created_at, updated_at`

func (r *SnapshotRepository) Create(ctx context.Context, s *domain.Snapshot) error {
	layout, err := domain.MarshalLayout(s.Layout)
	if err != nil {
		return err
	}
	_, err = r.store.db.ExecContext(ctx, `
		INSERT INTO outfit_snapshots (`+snapshotColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID, s.OwnerID, s.Artifact.Key, s.Artifact.URL, string(layout), s.Generation,
		formatTime(s.GeneratedAt), formatTime(s.CreatedAt), formatTime(s.UpdatedAt),
	)
	return err
}

func (r *SnapshotRepository) GetByID(ctx context.Context, id string) (*domain.Snapshot, error) {
	s, err := scanSnapshot(r.store.db.QueryRowContext(ctx, `SELECT `+snapshotColumns+` FROM outfit_snapshots WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return s, err
}

func (r *SnapshotRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Snapshot, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT `+snapshotColumns+` FROM outfit_snapshots
		WHERE owner_id = ? ORDER BY created_at DESC, id DESC`, ownerID)
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

func (r *SnapshotRepository) Swap(ctx context.Context, swap domain.SnapshotSwap) (*domain.Snapshot, error) {
	layout, err := domain.MarshalLayout(swap.Layout)
	if err != nil {
		return nil, err
	}
	s, err := scanSnapshot(r.store.db.QueryRowContext(ctx, `
		UPDATE outfit_snapshots
		SET artifact_key = ?, artifact_url = ?, layout = ?, generation = generation + 1,
			generated_at = ?, updated_at = ?
		WHERE id = ? AND generation = ?
		RETURNING `+snapshotColumns,
		swap.Artifact.Key, swap.Artifact.URL, string(layout),
		formatTime(swap.GeneratedAt), formatTime(r.store.now()),
		swap.ID, swap.ExpectedGeneration,
	))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	var generation int
	err = r.store.db.QueryRowContext(ctx, `SELECT generation FROM outfit_snapshots WHERE id = ?`, swap.ID).Scan(&generation)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("snapshot %s at generation %d, expected %d: %w", swap.ID, generation, swap.ExpectedGeneration, domain.ErrConflict)
}

func (r *SnapshotRepository) Delete(ctx context.Context, id string) error {
	res, err := r.store.db.ExecContext(ctx, `DELETE FROM outfit_snapshots WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanSnapshot(row scanner) (*domain.Snapshot, error) {
	var (
		s                                 domain.Snapshot
		layout                            string
		generatedAt, createdAt, updatedAt string
	)
	if err := row.Scan(&s.ID, &s.OwnerID, &s.Artifact.Key, &s.Artifact.URL, &layout, &s.Generation,
		&generatedAt, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	var err error
	if s.Layout, err = domain.UnmarshalLayout([]byte(layout)); err != nil {
		return nil, err
	}
	if s.GeneratedAt, err = parseTime(generatedAt); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}
