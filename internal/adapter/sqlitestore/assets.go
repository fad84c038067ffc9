package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"wardrobe/internal/domain"
)

var _ domain.AssetRepository = (*AssetRepository)(nil)

// AssetRepository implements domain.AssetRepository.
type AssetRepository struct {
	store *Store
}

const assetColumns = `id, owner_id, raw_key, raw_url, raw_bytes, raw_content_type,
	cutout_key, cutout_url, optimized_key, optimized_url, thumbnail_key, thumbnail_url,
	width, height, dominant_color, colors, status, error_kind, error_message, created_at, updated_at`

// clearDerived resets every derived column; used by both failure paths.
const clearDerived = `cutout_key = '', cutout_url = '', optimized_key = '', optimized_url = '',
	thumbnail_key = '', thumbnail_url = '', width = 0, height = 0, dominant_color = NULL, colors = '[]'`

func (r *AssetRepository) Create(ctx context.Context, a *domain.DerivedAsset) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO derived_assets (id, owner_id, raw_key, raw_url, raw_bytes, raw_content_type, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.Raw.Key, a.Raw.URL, a.Raw.Bytes, a.Raw.ContentType,
		string(a.Status), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	return err
}

func (r *AssetRepository) GetByID(ctx context.Context, id string) (*domain.DerivedAsset, error) {
	a, err := scanAsset(r.store.db.QueryRowContext(ctx, `SELECT `+assetColumns+` FROM derived_assets WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return a, err
}

func (r *AssetRepository) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.DerivedAsset, error) {
	return r.list(ctx, `SELECT `+assetColumns+` FROM derived_assets
		WHERE owner_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, ownerID, limit, offset)
}

func (r *AssetRepository) GetMany(ctx context.Context, ids []string) (map[string]*domain.DerivedAsset, error) {
	out := make(map[string]*domain.DerivedAsset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	assets, err := r.list(ctx, `SELECT `+assetColumns+` FROM derived_assets
		WHERE id IN (`+strings.Join(placeholders, ",")+`)`, args...)
	if err != nil {
		return nil, err
	}
	for i := range assets {
		out[assets[i].ID] = &assets[i]
	}
	return out, nil
}

func (r *AssetRepository) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.StatusProcessing, `
		UPDATE derived_assets
		SET updated_at = ?, status = 'processing'
		WHERE id = ? AND status = 'pending'`,
		formatTime(r.store.now()), id)
}

func (r *AssetRepository) Complete(ctx context.Context, id string, c domain.Completion) error {
	colors := c.Colors
	if colors == nil {
		colors = []domain.Color{}
	}
	encoded, err := json.Marshal(colors)
	if err != nil {
		return fmt.Errorf("encode colors: %w", err)
	}
	return r.transition(ctx, id, domain.StatusCompleted, `
		UPDATE derived_assets
		SET status = 'completed',
			cutout_key = ?, cutout_url = ?,
			optimized_key = ?, optimized_url = ?,
			thumbnail_key = ?, thumbnail_url = ?,
			width = ?, height = ?,
			dominant_color = ?, colors = ?,
			error_kind = '', error_message = '',
			updated_at = ?
		WHERE id = ? AND status = 'processing'`,
		c.Artifacts.Cutout.Key, c.Artifacts.Cutout.URL,
		c.Artifacts.Optimized.Key, c.Artifacts.Optimized.URL,
		c.Artifacts.Thumbnail.Key, c.Artifacts.Thumbnail.URL,
		c.Width, c.Height,
		c.DominantColor.Hex(), string(encoded),
		formatTime(r.store.now()), id,
	)
}

func (r *AssetRepository) Fail(ctx context.Context, id, kind, message string) error {
	return r.transition(ctx, id, domain.StatusFailed, `
		UPDATE derived_assets
		SET status = 'failed', `+clearDerived+`, error_kind = ?, error_message = ?, updated_at = ?
		WHERE id = ? AND status = 'processing'`,
		kind, message, formatTime(r.store.now()), id)
}

func (r *AssetRepository) Reset(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.StatusPending, `
		UPDATE derived_assets
		SET status = 'pending', error_kind = '', error_message = '', updated_at = ?
		WHERE id = ? AND status = 'failed'`,
		formatTime(r.store.now()), id)
}

func (r *AssetRepository) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.DerivedAsset, error) {
	return r.list(ctx, `SELECT `+assetColumns+` FROM derived_assets
		WHERE status = 'pending' AND updated_at < ? ORDER BY updated_at ASC LIMIT ?`, formatTime(cutoff), limit)
}

func (r *AssetRepository) FailStaleProcessing(ctx context.Context, cutoff time.Time, kind, message string) (int64, error) {
	res, err := r.store.db.ExecContext(ctx, `
		UPDATE derived_assets
		SET status = 'failed', `+clearDerived+`, error_kind = ?, error_message = ?, updated_at = ?
		WHERE status = 'processing' AND updated_at < ?`,
		kind, message, formatTime(r.store.now()), formatTime(cutoff))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListFailedIDsByOwner returns the failed records of an owner, oldest first.
func (r *AssetRepository) ListFailedIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.store.db.QueryContext(ctx,
		`SELECT id FROM derived_assets WHERE owner_id = ? AND status = 'failed' ORDER BY created_at ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *AssetRepository) transition(ctx context.Context, id string, to domain.Status, query string, args ...any) error {
	res, err := r.store.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var current string
	err = r.store.db.QueryRowContext(ctx, `SELECT status FROM derived_assets WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("derived asset %s: %s -> %s: %w", id, current, to, domain.ErrInvalidTransition)
}

func (r *AssetRepository) list(ctx context.Context, query string, args ...any) ([]domain.DerivedAsset, error) {
	rows, err := r.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []domain.DerivedAsset{}
	for rows.Next() {
		a, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanAsset(row scanner) (*domain.DerivedAsset, error) {
	var (
		a                    domain.DerivedAsset
		dominant             sql.NullString
		colors, status       string
		createdAt, updatedAt string
	)
	if err := row.Scan(
		&a.ID, &a.OwnerID, &a.Raw.Key, &a.Raw.URL, &a.Raw.Bytes, &a.Raw.ContentType,
		&a.Artifacts.Cutout.Key, &a.Artifacts.Cutout.URL,
		&a.Artifacts.Optimized.Key, &a.Artifacts.Optimized.URL,
		&a.Artifacts.Thumbnail.Key, &a.Artifacts.Thumbnail.URL,
		&a.Width, &a.Height, &dominant, &colors, &status,
		&a.ErrorKind, &a.ErrorMessage, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}
	var err error
	if a.Status, err = domain.ParseStatus(status); err != nil {
		return nil, err
	}
	if dominant.Valid && dominant.String != "" {
		c, err := domain.ParseColor(dominant.String)
		if err != nil {
			return nil, err
		}
		a.DominantColor = &c
	}
	a.Colors = []domain.Color{}
	if colors != "" {
		if err := json.Unmarshal([]byte(colors), &a.Colors); err != nil {
			return nil, fmt.Errorf("decode colors: %w", err)
		}
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}
