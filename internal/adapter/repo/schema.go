package repo

import (
	"context"
	"fmt"

	"wardrobe/internal/infra"
	"wardrobe/internal/sqlinline"
)

// Migrate creates the tables and indexes when they do not exist yet.
func Migrate(ctx context.Context, db infra.SQLExecutor) error {
	for i, stmt := range sqlinline.Schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	return nil
}
