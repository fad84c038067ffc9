// Package adapter selects the persistence backend named by configuration.
package adapter

import (
	"context"
	"fmt"

	"wardrobe/internal/adapter/memstore"
	"wardrobe/internal/adapter/repo"
	"wardrobe/internal/adapter/sqlitestore"
	"wardrobe/internal/domain"
	"wardrobe/internal/infra"
)

// AssetStore is the asset repository plus the maintenance queries the
// command line tools need.
type AssetStore interface {
	domain.AssetRepository
	ListFailedIDsByOwner(ctx context.Context, ownerID string) ([]string, error)
}

// Repositories bundles the opened repositories and the handle that releases
// their connections.
type Repositories struct {
	Assets    AssetStore
	Snapshots domain.SnapshotRepository
	close     func()
}

// Close releases the underlying database connections.
func (r *Repositories) Close() {
	if r.close != nil {
		r.close()
	}
}

// Open connects to the configured database and makes sure its schema exists.
func Open(ctx context.Context, cfg *infra.Config, logger infra.Logger) (*Repositories, error) {
	switch cfg.DatabaseDriver {
	case infra.DatabaseDriverPostgres:
		pool, err := infra.NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		runner := infra.NewSQLRunner(pool, logger)
		if err := repo.Migrate(ctx, runner); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		return &Repositories{
			Assets:    repo.NewDerivedAssetRepository(runner),
			Snapshots: repo.NewSnapshotRepository(runner),
			close:     pool.Close,
		}, nil

	case infra.DatabaseDriverSQLite:
		db, err := infra.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		store, err := sqlitestore.New(ctx, db)
		if err != nil {
			db.Close()
			return nil, err
		}
		return &Repositories{
			Assets:    store.Assets(),
			Snapshots: store.Snapshots(),
			close:     func() { db.Close() },
		}, nil

	case infra.DatabaseDriverMemory:
		logger.Warn().Msg("memory database driver selected; records are lost on restart")
		return &Repositories{
			Assets:    memstore.NewAssets(),
			Snapshots: memstore.NewSnapshots(),
		}, nil

	default:
		return nil, fmt.Errorf("adapter: unknown database driver %q", cfg.DatabaseDriver)
	}
}
