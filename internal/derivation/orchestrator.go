// Package derivation turns uploaded garment photos into background-free,
// resized renditions with a color palette, and tracks each upload through
// its status record.
package derivation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/rs/zerolog"

	"wardrobe/internal/bgremoval"
	"wardrobe/internal/domain"
	"wardrobe/internal/imaging"
	"wardrobe/internal/storage"
)

// Options tunes the pipeline. Zero values fall back to the defaults below.
type Options struct {
	StepTimeout      time.Duration
	OptimizedMaxEdge int
	ThumbnailMaxEdge int
	PaletteSize      int
}

const (
	DefaultOptimizedMaxEdge = 1600
	DefaultThumbnailMaxEdge = 300
	DefaultPaletteSize      = 5

	cleanupTimeout = 15 * time.Second
)

func (o Options) withDefaults() Options {
	if o.OptimizedMaxEdge <= 0 {
		o.OptimizedMaxEdge = DefaultOptimizedMaxEdge
	}
	if o.ThumbnailMaxEdge <= 0 {
		o.ThumbnailMaxEdge = DefaultThumbnailMaxEdge
	}
	if o.PaletteSize <= 0 {
		o.PaletteSize = DefaultPaletteSize
	}
	return o
}

// Observer receives pipeline timings. A nil Observer is allowed.
type Observer interface {
	ObserveStep(step string, d time.Duration, err error)
	ObserveJob(status domain.Status, kind string, d time.Duration)
}

// Orchestrator runs one derivation job end to end.
type Orchestrator struct {
	assets   domain.AssetRepository
	store    storage.BlobStore
	codec    imaging.Codec
	remover  bgremoval.Remover
	opts     Options
	logger   zerolog.Logger
	observer Observer
}

// NewOrchestrator wires the pipeline collaborators.
func NewOrchestrator(assets domain.AssetRepository, store storage.BlobStore, codec imaging.Codec, remover bgremoval.Remover, opts Options, logger zerolog.Logger) *Orchestrator {
	return &Orchestrator{
		assets:  assets,
		store:   store,
		codec:   codec,
		remover: remover,
		opts:    opts.withDefaults(),
		logger:  logger.With().Str("component", "derivation").Logger(),
	}
}

// WithObserver attaches an Observer and returns the orchestrator.
func (o *Orchestrator) WithObserver(obs Observer) *Orchestrator {
	o.observer = obs
	return o
}

// DerivedKey is the deterministic blob key of one artifact of a record.
// Re-running a job overwrites the same keys.
func DerivedKey(ownerID, recordID string, kind domain.ArtifactKind) string {
	return fmt.Sprintf("derived/%s/%s/%s.png", ownerID, recordID, kind)
}

type rendition struct {
	kind    domain.ArtifactKind
	encoded imaging.Encoded
}

// Process derives record id. It returns nil when the record completed and
// the failure otherwise; in the failure case the record has been marked
// failed with no artifact references. A record that is not pending belongs
// to another job and yields domain.ErrDuplicateSubmission untouched.
func (o *Orchestrator) Process(ctx context.Context, id string) error {
	started := time.Now()
	log := o.logger.With().Str("record_id", id).Logger()

	if err := o.step(ctx, StepMarkProcessing, func(ctx context.Context) error {
		return o.assets.MarkProcessing(ctx, id)
	}); err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			log.Info().Err(err).Msg("derivation: record already claimed")
			return fmt.Errorf("derivation: claim %s: %w", id, domain.ErrDuplicateSubmission)
		}
		log.Warn().Err(err).Msg("derivation: record not claimable")
		return err
	}

	var written []string
	err := o.run(ctx, id, &written, log)
	if err == nil {
		log.Info().Dur("elapsed", time.Since(started)).Msg("derivation: completed")
		o.observeJob(domain.StatusCompleted, "", time.Since(started))
		return nil
	}

	kind := domain.ErrorKind(err)
	log.Error().Err(err).Str("step", FailedStep(err)).Str("kind", kind).Msg("derivation: failed")

	// The record left processing under this job, so the blobs under its keys
	// may belong to whichever job owns it now.
	if errors.Is(err, domain.ErrInvalidTransition) {
		log.Warn().Msg("derivation: record taken over, leaving blobs in place")
		o.observeJob(domain.StatusFailed, kind, time.Since(started))
		return err
	}

	// The job context may already be cancelled; the failure write and the
	// cleanup still have to happen.
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if ferr := o.assets.Fail(cleanupCtx, id, kind, err.Error()); ferr != nil {
		log.Error().Err(ferr).Msg("derivation: failed to record failure")
		if errors.Is(ferr, domain.ErrInvalidTransition) {
			o.observeJob(domain.StatusFailed, kind, time.Since(started))
			return err
		}
	}
	for _, key := range written {
		if derr := o.store.Delete(cleanupCtx, key); derr != nil && !errors.Is(derr, storage.ErrNotFound) {
			log.Warn().Err(derr).Str("key", key).Msg("derivation: cleanup of derived blob failed")
		}
	}
	o.observeJob(domain.StatusFailed, kind, time.Since(started))
	return err
}

func (o *Orchestrator) run(ctx context.Context, id string, written *[]string, log zerolog.Logger) error {
	asset, err := o.assets.GetByID(ctx, id)
	if err != nil {
		return &StepError{Step: StepDecode, Err: err}
	}

	var raster *image.NRGBA
	if err := o.step(ctx, StepDecode, func(ctx context.Context) error {
		data, err := o.store.Get(ctx, asset.Raw.Key)
		if err != nil {
			return err
		}
		raster, err = o.codec.Decode(data)
		return err
	}); err != nil {
		return err
	}
	log.Debug().Int("width", raster.Bounds().Dx()).Int("height", raster.Bounds().Dy()).Msg("derivation: decoded")

	var cutout *image.NRGBA
	if err := o.step(ctx, StepRemoveBackground, func(ctx context.Context) error {
		var err error
		cutout, err = withTimeout(ctx, o.opts.StepTimeout, StepRemoveBackground, func(ctx context.Context) (*image.NRGBA, error) {
			return o.remover.RemoveBackground(ctx, raster)
		})
		return err
	}); err != nil {
		return err
	}

	var enc encodeResult
	if err := o.step(ctx, StepEncode, func(ctx context.Context) error {
		var err error
		enc, err = withTimeout(ctx, o.opts.StepTimeout, StepEncode, func(ctx context.Context) (encodeResult, error) {
			return o.encode(ctx, cutout)
		})
		return err
	}); err != nil {
		return err
	}
	renditions, optimized := enc.renditions, enc.optimized

	var palette imaging.Palette
	if err := o.step(ctx, StepPalette, func(context.Context) error {
		var err error
		palette, err = o.codec.ExtractPalette(optimized, o.opts.PaletteSize)
		return err
	}); err != nil {
		return err
	}

	var artifacts domain.DerivedArtifacts
	if err := o.step(ctx, StepStore, func(ctx context.Context) error {
		for _, r := range renditions {
			key := DerivedKey(asset.OwnerID, asset.ID, r.kind)
			url, err := o.store.Put(ctx, key, r.encoded.Data, r.encoded.ContentType)
			if err != nil {
				return err
			}
			*written = append(*written, key)
			ref := domain.ArtifactRef{Key: key, URL: url}
			switch r.kind {
			case domain.ArtifactCutout:
				artifacts.Cutout = ref
			case domain.ArtifactOptimized:
				artifacts.Optimized = ref
			case domain.ArtifactThumbnail:
				artifacts.Thumbnail = ref
			}
		}
		return nil
	}); err != nil {
		return err
	}

	optimizedOut := renditions[1].encoded
	return o.step(ctx, StepCommit, func(ctx context.Context) error {
		return o.assets.Complete(ctx, id, domain.Completion{
			Artifacts:     artifacts,
			Width:         optimizedOut.Width,
			Height:        optimizedOut.Height,
			DominantColor: palette.Dominant,
			Colors:        palette.Colors(),
		})
	})
}

type encodeResult struct {
	renditions []rendition
	optimized  *image.NRGBA
}

// encode produces the full resolution cutout, the optimized image and the
// thumbnail. The thumbnail is resampled from the optimized raster.
func (o *Orchestrator) encode(ctx context.Context, cutout *image.NRGBA) (encodeResult, error) {
	full, err := o.codec.Encode(cutout, imaging.FormatPNG, 0)
	if err != nil {
		return encodeResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return encodeResult{}, err
	}
	optimized := o.codec.Resize(cutout, o.opts.OptimizedMaxEdge)
	opt, err := o.codec.Encode(optimized, imaging.FormatPNG, o.opts.OptimizedMaxEdge)
	if err != nil {
		return encodeResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return encodeResult{}, err
	}
	thumb, err := o.codec.Encode(optimized, imaging.FormatPNG, o.opts.ThumbnailMaxEdge)
	if err != nil {
		return encodeResult{}, err
	}
	return encodeResult{
		renditions: []rendition{
			{kind: domain.ArtifactCutout, encoded: full},
			{kind: domain.ArtifactOptimized, encoded: opt},
			{kind: domain.ArtifactThumbnail, encoded: thumb},
		},
		optimized: optimized,
	}, nil
}

// step times fn and wraps its error with the step name.
func (o *Orchestrator) step(ctx context.Context, name string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return &StepError{Step: name, Err: err}
	}
	started := time.Now()
	err := fn(ctx)
	if o.observer != nil {
		o.observer.ObserveStep(name, time.Since(started), err)
	}
	if err != nil {
		return &StepError{Step: name, Err: err}
	}
	return nil
}

func (o *Orchestrator) observeJob(status domain.Status, kind string, d time.Duration) {
	if o.observer != nil {
		o.observer.ObserveJob(status, kind, d)
	}
}
