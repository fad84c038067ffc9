// Package storage provides the blob store used for raw uploads, derived
// garment images and rendered snapshots. Keys are slash separated relative
// paths; every driver returns a URL for a stored key.
package storage

import (
	"context"
	"fmt"
	"path"
	"strings"

	"wardrobe/internal/domain"
)

// Errors reported by every driver.
var (
	ErrNotFound    = domain.ErrNotFound
	ErrUnavailable = domain.ErrStoreUnavailable
)

// BlobStore is the contract the derivation pipeline and the compositor rely
// on. Put overwrites an existing key. Get and Delete report missing keys with
// an error wrapping domain.ErrNotFound; backend outages wrap
// domain.ErrStoreUnavailable.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}

// SanitizeKey normalizes a key and prevents escaping the storage root.
func SanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", fmt.Errorf("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimLeft(key, "/")
	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", fmt.Errorf("storage: invalid key %q", key)
	}
	return cleaned, nil
}

func joinURL(base, key string) string {
	if base == "" {
		return "/" + key
	}
	return strings.TrimRight(base, "/") + "/" + key
}

func notFound(op, key string) error {
	return fmt.Errorf("storage: %s %s: %w", op, key, ErrNotFound)
}

func unavailable(op, key string, err error) error {
	return fmt.Errorf("storage: %s %s: %w: %v", op, key, ErrUnavailable, err)
}
