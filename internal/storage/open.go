package storage

import (
	"context"
	"fmt"

	"wardrobe/internal/infra"
)

// Open selects a BlobStore implementation from configuration.
func Open(ctx context.Context, cfg *infra.Config) (BlobStore, error) {
	switch cfg.BlobDriver {
	case infra.BlobDriverFilesystem:
		return NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
	case infra.BlobDriverS3:
		return NewS3Store(ctx, S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PathStyle:       cfg.S3PathStyle,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
	case infra.BlobDriverMemory:
		return NewMemoryStore(cfg.StorageBaseURL), nil
	default:
		return nil, fmt.Errorf("storage: unknown blob driver %q", cfg.BlobDriver)
	}
}
