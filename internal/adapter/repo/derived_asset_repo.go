package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"wardrobe/internal/domain"
	"wardrobe/internal/infra"
	"wardrobe/internal/sqlinline"
)

// DerivedAssetRepositoryPG implements domain.AssetRepository on PostgreSQL.
type DerivedAssetRepositoryPG struct {
	db infra.SQLExecutor
}

// NewDerivedAssetRepository constructs the repository. db is normally an
// *infra.SQLRunner wrapping the pool.
func NewDerivedAssetRepository(db infra.SQLExecutor) *DerivedAssetRepositoryPG {
	return &DerivedAssetRepositoryPG{db: db}
}

func (r *DerivedAssetRepositoryPG) Create(ctx context.Context, asset *domain.DerivedAsset) error {
	_, err := r.db.Exec(ctx, sqlinline.QInsertDerivedAsset,
		asset.ID,
		asset.OwnerID,
		asset.Raw.Key,
		asset.Raw.URL,
		asset.Raw.Bytes,
		asset.Raw.ContentType,
		string(asset.Status),
		asset.CreatedAt,
		asset.UpdatedAt,
	)
	return err
}

func (r *DerivedAssetRepositoryPG) GetByID(ctx context.Context, id string) (*domain.DerivedAsset, error) {
	asset, err := scanDerivedAsset(r.db.QueryRow(ctx, sqlinline.QSelectDerivedAssetByID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return asset, err
}

func (r *DerivedAssetRepositoryPG) ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]domain.DerivedAsset, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListDerivedAssetsByOwner, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectDerivedAssets(rows)
}

func (r *DerivedAssetRepositoryPG) GetMany(ctx context.Context, ids []string) (map[string]*domain.DerivedAsset, error) {
	out := make(map[string]*domain.DerivedAsset, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	rows, err := r.db.Query(ctx, sqlinline.QSelectDerivedAssetsByIDs, ids)
	if err != nil {
		return nil, err
	}
	assets, err := collectDerivedAssets(rows)
	if err != nil {
		return nil, err
	}
	for i := range assets {
		out[assets[i].ID] = &assets[i]
	}
	return out, nil
}

func (r *DerivedAssetRepositoryPG) MarkProcessing(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.StatusProcessing, sqlinline.QMarkDerivedAssetProcessing, id)
}

func (r *DerivedAssetRepositoryPG) Complete(ctx context.Context, id string, c domain.Completion) error {
	colors, err := json.Marshal(nonNilColors(c.Colors))
	if err != nil {
		return fmt.Errorf("encode colors: %w", err)
	}
	return r.transition(ctx, id, domain.StatusCompleted, sqlinline.QCompleteDerivedAsset,
		id,
		c.Artifacts.Cutout.Key, c.Artifacts.Cutout.URL,
		c.Artifacts.Optimized.Key, c.Artifacts.Optimized.URL,
		c.Artifacts.Thumbnail.Key, c.Artifacts.Thumbnail.URL,
		c.Width, c.Height,
		c.DominantColor.Hex(),
		colors,
	)
}

func (r *DerivedAssetRepositoryPG) Fail(ctx context.Context, id, kind, message string) error {
	return r.transition(ctx, id, domain.StatusFailed, sqlinline.QFailDerivedAsset, id, kind, message)
}

func (r *DerivedAssetRepositoryPG) Reset(ctx context.Context, id string) error {
	return r.transition(ctx, id, domain.StatusPending, sqlinline.QResetDerivedAsset, id)
}

func (r *DerivedAssetRepositoryPG) ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]domain.DerivedAsset, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListStalePendingDerivedAssets, cutoff, limit)
	if err != nil {
		return nil, err
	}
	return collectDerivedAssets(rows)
}

func (r *DerivedAssetRepositoryPG) FailStaleProcessing(ctx context.Context, cutoff time.Time, kind, message string) (int64, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QFailStaleProcessingDerivedAssets, cutoff, kind, message)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// ListFailedIDsByOwner returns the failed records of an owner, oldest first.
func (r *DerivedAssetRepositoryPG) ListFailedIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListFailedDerivedAssetIDsByOwner, ownerID)
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

// transition runs a conditional status update. When no row changed it
// distinguishes a missing record from one in the wrong state.
func (r *DerivedAssetRepositoryPG) transition(ctx context.Context, id string, to domain.Status, query string, args ...any) error {
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	var current string
	if err := r.db.QueryRow(ctx, sqlinline.QSelectDerivedAssetStatus, id).Scan(&current); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return err
	}
	return fmt.Errorf("derived asset %s: %s -> %s: %w", id, current, to, domain.ErrInvalidTransition)
}

func nonNilColors(colors []domain.Color) []domain.Color {
	if colors == nil {
		return []domain.Color{}
	}
	return colors
}

func collectDerivedAssets(rows pgx.Rows) ([]domain.DerivedAsset, error) {
	defer rows.Close()
	assets := []domain.DerivedAsset{}
	for rows.Next() {
		asset, err := scanDerivedAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, *asset)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return assets, nil
}

func scanDerivedAsset(row pgx.Row) (*domain.DerivedAsset, error) {
	var (
		a        domain.DerivedAsset
		status   string
		dominant *string
		colors   []byte
	)
	if err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.Raw.Key,
		&a.Raw.URL,
		&a.Raw.Bytes,
		&a.Raw.ContentType,
		&a.Artifacts.Cutout.Key,
		&a.Artifacts.Cutout.URL,
		&a.Artifacts.Optimized.Key,
		&a.Artifacts.Optimized.URL,
		&a.Artifacts.Thumbnail.Key,
		&a.Artifacts.Thumbnail.URL,
		&a.Width,
		&a.Height,
		&dominant,
		&colors,
		&status,
		&a.ErrorKind,
		&a.ErrorMessage,
		&a.CreatedAt,
		&a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	parsed, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	a.Status = parsed
	if dominant != nil && *dominant != "" {
		c, err := domain.ParseColor(*dominant)
		if err != nil {
			return nil, err
		}
		a.DominantColor = &c
	}
	a.Colors = []domain.Color{}
	if len(colors) > 0 {
		if err := json.Unmarshal(colors, &a.Colors); err != nil {
			return nil, fmt.Errorf("decode colors: %w", err)
		}
	}
	return &a, nil
}

var _ domain.AssetRepository = (*DerivedAssetRepositoryPG)(nil)
