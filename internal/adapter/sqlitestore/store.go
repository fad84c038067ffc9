// Package sqlitestore implements the repositories on an embedded SQLite
// database for single-node deployments.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// timeLayout is fixed width so timestamps compare correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return time.Parse(time.RFC3339Nano, raw)
	}
	return t, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// Store owns the schema and hands out the repositories.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New wraps db and brings its schema to the current version.
func New(ctx context.Context, db *sql.DB) (*Store, error) {
	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Assets returns the derived asset repository.
func (s *Store) Assets() *AssetRepository {
	return &AssetRepository{store: s}
}

// Snapshots returns the outfit snapshot repository.
func (s *Store) Snapshots() *SnapshotRepository {
	return &SnapshotRepository{store: s}
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`); err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (0)`); err != nil {
			return fmt.Errorf("init schema version: %w", err)
		}
		version = 0
	} else if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	// Index i migrates from version i to i+1.
	migrations := []func(context.Context) error{
		s.migrateV1, // derived_assets
		s.migrateV2, // outfit_snapshots
	}

	for i := version; i < len(migrations); i++ {
		if err := migrations[i](ctx); err != nil {
			return fmt.Errorf("migration v%d→v%d: %w", i, i+1, err)
		}
		if _, err := s.db.ExecContext(ctx, `UPDATE schema_version SET version = ?`, i+1); err != nil {
			return fmt.Errorf("update schema version to %d: %w", i+1, err)
		}
	}
	return nil
}

func (s *Store) migrateV1(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS derived_assets (
		id               TEXT PRIMARY KEY,
		owner_id         TEXT NOT NULL,
		raw_key          TEXT NOT NULL,
		raw_url          TEXT NOT NULL,
		raw_bytes        INTEGER NOT NULL DEFAULT 0,
		raw_content_type TEXT NOT NULL DEFAULT '',
		cutout_key       TEXT NOT NULL DEFAULT '',
		cutout_url       TEXT NOT NULL DEFAULT '',
		optimized_key    TEXT NOT NULL DEFAULT '',
		optimized_url    TEXT NOT NULL DEFAULT '',
		thumbnail_key    TEXT NOT NULL DEFAULT '',
		thumbnail_url    TEXT NOT NULL DEFAULT '',
		width            INTEGER NOT NULL DEFAULT 0,
		height           INTEGER NOT NULL DEFAULT 0,
		dominant_color   TEXT,
		colors           TEXT NOT NULL DEFAULT '[]',
		status           TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'failed')),
		error_kind       TEXT NOT NULL DEFAULT '',
		error_message    TEXT NOT NULL DEFAULT '',
		created_at       TEXT NOT NULL,
		updated_at       TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_derived_assets_owner ON derived_assets(owner_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_derived_assets_status ON derived_assets(status, updated_at);
	`)
	return err
}

func (s *Store) migrateV2(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS outfit_snapshots (
		id           TEXT PRIMARY KEY,
		owner_id     TEXT NOT NULL,
		artifact_key TEXT NOT NULL,
		artifact_url TEXT NOT NULL,
		layout       TEXT NOT NULL,
		generation   INTEGER NOT NULL DEFAULT 1,
		generated_at TEXT NOT NULL,
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_outfit_snapshots_owner ON outfit_snapshots(owner_id, created_at DESC);
	`)
	return err
}
