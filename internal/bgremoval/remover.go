// Package bgremoval separates a garment from its backdrop, producing a
// raster of identical dimensions whose background pixels are transparent.
package bgremoval

import (
	"context"
	"fmt"
	"image"
	"time"

	"wardrobe/internal/domain"
	"wardrobe/internal/infra"
)

// Remover removes the background of a decoded photo. Implementations return
// errors wrapping domain.ErrProcessing and never retry internally.
type Remover interface {
	RemoveBackground(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error)
}

// Open builds the remover selected by configuration.
func Open(cfg *infra.Config) (Remover, error) {
	switch cfg.Remover {
	case infra.RemoverBorder:
		return &BorderRemover{Tolerance: cfg.RemoverTolerance, Feather: true}, nil
	case infra.RemoverRemote:
		return NewRemoteRemover(RemoteOptions{Endpoint: cfg.RemoverURL, Timeout: cfg.StepTimeout + 5*time.Second}), nil
	default:
		return nil, fmt.Errorf("bgremoval: unknown remover %q", cfg.Remover)
	}
}

func processingError(format string, args ...any) error {
	return fmt.Errorf("bgremoval: %s: %w", fmt.Sprintf(format, args...), domain.ErrProcessing)
}
