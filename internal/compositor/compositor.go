// Package compositor renders outfit snapshots from a declarative layout of
// derived garment images and manages their regeneration and deletion.
package compositor

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"image/color"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	"wardrobe/internal/domain"
	"wardrobe/internal/imaging"
	"wardrobe/internal/storage"
)

const (
	DefaultCanvasWidth     = 1080
	DefaultCanvasHeight    = 1440
	DefaultMaxScale        = 8.0
	DefaultMaxLayers       = 32
	DefaultLoadConcurrency = 4
)

// Options configures rendering.
type Options struct {
	Canvas          domain.Canvas
	MaxScale        float64
	MaxLayers       int
	LoadConcurrency int
	// Background fills the canvas before the layers. Nil means opaque
	// white; a color with zero alpha leaves the canvas transparent.
	Background *color.NRGBA
}

func (o Options) withDefaults() Options {
	if o.Canvas.Width <= 0 {
		o.Canvas.Width = DefaultCanvasWidth
	}
	if o.Canvas.Height <= 0 {
		o.Canvas.Height = DefaultCanvasHeight
	}
	if o.MaxScale <= 0 {
		o.MaxScale = DefaultMaxScale
	}
	if o.MaxLayers <= 0 {
		o.MaxLayers = DefaultMaxLayers
	}
	if o.LoadConcurrency <= 0 {
		o.LoadConcurrency = DefaultLoadConcurrency
	}
	if o.Background == nil {
		bg := defaultBackground
		o.Background = &bg
	}
	return o
}

// Observer receives render timings. A nil Observer is allowed.
type Observer interface {
	ObserveRender(op string, d time.Duration, err error)
}

// Compositor owns snapshot records and their rendered artifacts.
type Compositor struct {
	assets    domain.AssetRepository
	snapshots domain.SnapshotRepository
	store     storage.BlobStore
	codec     imaging.Codec
	opts      Options
	logger    zerolog.Logger
	observer  Observer
	locks     *keyedMutex
	now       func() time.Time
}

// New builds a Compositor.
func New(assets domain.AssetRepository, snapshots domain.SnapshotRepository, store storage.BlobStore, codec imaging.Codec, opts Options, logger zerolog.Logger) *Compositor {
	return &Compositor{
		assets:    assets,
		snapshots: snapshots,
		store:     store,
		codec:     codec,
		opts:      opts.withDefaults(),
		logger:    logger.With().Str("component", "compositor").Logger(),
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithObserver attaches an Observer and returns the compositor.
func (c *Compositor) WithObserver(obs Observer) *Compositor {
	c.observer = obs
	return c
}

// Canvas returns the render frame.
func (c *Compositor) Canvas() domain.Canvas {
	return c.opts.Canvas
}

// SnapshotKey is the blob key of one render attempt of a snapshot. The
// content hash keeps URLs of different renders distinct for caches; attempt
// keeps concurrent renders of the same layout from sharing a key, so an
// attempt that loses the swap only ever removes its own blob.
func SnapshotKey(ownerID, snapshotID string, generation int, attempt string, data []byte) string {
	sum := blake3.Sum256(data)
	return fmt.Sprintf("snapshots/%s/%s/v%d-%s-%s.png", ownerID, snapshotID, generation, hex.EncodeToString(sum[:8]), attempt)
}

func newAttempt() string {
	id := uuid.New()
	return hex.EncodeToString(id[:4])
}

// render validates layout and returns the PNG encoded composite.
func (c *Compositor) render(ctx context.Context, layout domain.RenderLayout) ([]byte, error) {
	assets, err := c.validate(ctx, layout)
	if err != nil {
		return nil, err
	}
	rasters, err := c.loadLayers(ctx, assets, layout.AssetIDs())
	if err != nil {
		return nil, err
	}
	img, err := c.compose(ctx, layout, rasters)
	if err != nil {
		return nil, err
	}
	enc, err := c.codec.Encode(img, imaging.FormatPNG, 0)
	if err != nil {
		return nil, fmt.Errorf("compositor: encode snapshot: %w: %w", domain.ErrComposition, err)
	}
	return enc.Data, nil
}

// Generate validates layout, renders it and stores a new snapshot at
// generation 1.
func (c *Compositor) Generate(ctx context.Context, ownerID string, layout domain.RenderLayout) (snap *domain.Snapshot, err error) {
	started := time.Now()
	defer func() { c.observe("generate", started, err) }()

	if ownerID == "" {
		return nil, invalid("owner id is required")
	}
	data, err := c.render(ctx, layout)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	key := SnapshotKey(ownerID, id, 1, newAttempt(), data)
	url, err := c.store.Put(ctx, key, data, "image/png")
	if err != nil {
		return nil, fmt.Errorf("compositor: store snapshot: %w", err)
	}
	now := c.now()
	snap = &domain.Snapshot{
		ID:          id,
		OwnerID:     ownerID,
		Artifact:    domain.ArtifactRef{Key: key, URL: url},
		Layout:      layout.Clone(),
		Generation:  1,
		GeneratedAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := c.snapshots.Create(ctx, snap); err != nil {
		c.discard(ctx, key)
		return nil, fmt.Errorf("compositor: create snapshot: %w", err)
	}
	c.logger.Info().Str("snapshot_id", id).Int("layers", len(layout.Layers)).Msg("compositor: snapshot generated")
	return snap, nil
}

// Regenerate renders the snapshot again from layout, or from the stored
// layout when layout is nil, and swaps the artifact in a single conditional
// write. The previous artifact is removed only after the swap succeeded; on
// any failure the record is untouched and the new artifact is removed.
func (c *Compositor) Regenerate(ctx context.Context, snapshotID string, layout *domain.RenderLayout) (snap *domain.Snapshot, err error) {
	started := time.Now()
	defer func() { c.observe("regenerate", started, err) }()

	unlock := c.locks.Lock(snapshotID)
	defer unlock()

	current, err := c.snapshots.GetByID(ctx, snapshotID)
	if err != nil {
		return nil, err
	}
	next := current.Layout
	if layout != nil {
		next = layout.Clone()
	}
	data, err := c.render(ctx, next)
	if err != nil {
		return nil, err
	}

	key := SnapshotKey(current.OwnerID, current.ID, current.Generation+1, newAttempt(), data)
	url, err := c.store.Put(ctx, key, data, "image/png")
	if err != nil {
		return nil, fmt.Errorf("compositor: store snapshot: %w", err)
	}
	updated, err := c.snapshots.Swap(ctx, domain.SnapshotSwap{
		ID:                 current.ID,
		ExpectedGeneration: current.Generation,
		Artifact:           domain.ArtifactRef{Key: key, URL: url},
		Layout:             next,
		GeneratedAt:        c.now(),
	})
	if err != nil {
		c.discard(ctx, key)
		return nil, fmt.Errorf("compositor: swap snapshot %s: %w", current.ID, err)
	}
	if current.Artifact.Key != "" && current.Artifact.Key != key {
		c.discard(ctx, current.Artifact.Key)
	}
	c.logger.Info().Str("snapshot_id", current.ID).Int("generation", updated.Generation).Msg("compositor: snapshot regenerated")
	return updated, nil
}

// Delete removes the artifact and then the record. A missing artifact is not
// an error, so an interrupted delete can be repeated; a missing record yields
// domain.ErrNotFound.
func (c *Compositor) Delete(ctx context.Context, snapshotID string) error {
	unlock := c.locks.Lock(snapshotID)
	defer unlock()

	snap, err := c.snapshots.GetByID(ctx, snapshotID)
	if err != nil {
		return err
	}
	if snap.Artifact.Key != "" {
		if err := c.store.Delete(ctx, snap.Artifact.Key); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("compositor: delete artifact: %w", err)
		}
	}
	if err := c.snapshots.Delete(ctx, snapshotID); err != nil {
		return err
	}
	c.logger.Info().Str("snapshot_id", snapshotID).Msg("compositor: snapshot deleted")
	return nil
}

// Get returns a snapshot.
func (c *Compositor) Get(ctx context.Context, snapshotID string) (*domain.Snapshot, error) {
	return c.snapshots.GetByID(ctx, snapshotID)
}

// List returns the snapshots of an owner, newest first.
func (c *Compositor) List(ctx context.Context, ownerID string) ([]domain.Snapshot, error) {
	return c.snapshots.ListByOwner(ctx, ownerID)
}

func (c *Compositor) discard(ctx context.Context, key string) {
	if err := c.store.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		c.logger.Warn().Err(err).Str("key", key).Msg("compositor: failed to remove artifact")
	}
}

func (c *Compositor) observe(op string, started time.Time, err error) {
	if c.observer != nil {
		c.observer.ObserveRender(op, time.Since(started), err)
	}
}
