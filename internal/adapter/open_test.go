package adapter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"wardrobe/internal/domain"
	"wardrobe/internal/infra"
)

func TestOpenSelectsDriver(t *testing.T) {
	tests := []struct {
		name string
		cfg  infra.Config
	}{
		{name: "memory", cfg: infra.Config{DatabaseDriver: infra.DatabaseDriverMemory}},
		{name: "sqlite", cfg: infra.Config{DatabaseDriver: infra.DatabaseDriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "w.db")}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			repos, err := Open(ctx, &tc.cfg, infra.NopLogger())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer repos.Close()

			now := time.Now().UTC()
			asset := &domain.DerivedAsset{ID: "a1", OwnerID: "o", Status: domain.StatusPending, CreatedAt: now, UpdatedAt: now}
			if err := repos.Assets.Create(ctx, asset); err != nil {
				t.Fatalf("Create: %v", err)
			}
			if _, err := repos.Assets.GetByID(ctx, "a1"); err != nil {
				t.Fatalf("GetByID: %v", err)
			}
			if _, err := repos.Snapshots.GetByID(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
				t.Fatalf("snapshot GetByID: err = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), &infra.Config{DatabaseDriver: "mongo"}, infra.NopLogger()); err == nil {
		t.Fatalf("expected error")
	}
}
