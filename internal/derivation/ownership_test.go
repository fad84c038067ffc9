package derivation

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wardrobe/internal/adapter/memstore"
	"wardrobe/internal/domain"
	"wardrobe/internal/imaging"
	"wardrobe/internal/storage"
)

type failingRemover struct{}

func (failingRemover) RemoveBackground(context.Context, *image.NRGBA) (*image.NRGBA, error) {
	return nil, fmt.Errorf("classifier crashed: %w", domain.ErrProcessing)
}

// gatedRemover signals once a job is inside background removal and holds it
// there until released.
type gatedRemover struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedRemover() *gatedRemover {
	return &gatedRemover{entered: make(chan struct{}), release: make(chan struct{})}
}

func (g *gatedRemover) RemoveBackground(ctx context.Context, img *image.NRGBA) (*image.NRGBA, error) {
	g.once.Do(func() { close(g.entered) })
	select {
	case <-g.release:
		return img, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func seedPending(t *testing.T, assets domain.AssetRepository, store storage.BlobStore, id, owner string) {
	t.Helper()
	ctx := context.Background()
	data := garmentPNG(t, 40, 30)
	key := RawKey(owner, id, imaging.FormatPNG)
	url, err := store.Put(ctx, key, data, "image/png")
	if err != nil {
		t.Fatalf("Put raw: %v", err)
	}
	now := time.Now().UTC()
	if err := assets.Create(ctx, &domain.DerivedAsset{
		ID:        id,
		OwnerID:   owner,
		Raw:       domain.RawAsset{Key: key, URL: url, Bytes: int64(len(data)), ContentType: "image/png"},
		Status:    domain.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
}

func waitEntered(t *testing.T, g *gatedRemover) {
	t.Helper()
	select {
	case <-g.entered:
	case <-time.After(10 * time.Second):
		t.Fatal("job never reached background removal")
	}
}

func TestBackgroundRemovalFailureFailsRecord(t *testing.T) {
	h := newHarness(t, nil, failingRemover{}, Options{})
	ctx := context.Background()

	rec, err := h.service.Submit(ctx, "owner-1", garmentPNG(t, 48, 48), "image/png")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	h.drain(t)

	got, err := h.assets.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Status != domain.StatusFailed || got.ErrorKind != domain.KindProcessing {
		t.Fatalf("status=%s kind=%s", got.Status, got.ErrorKind)
	}
	assertInvariant(t, got)
	if keys := h.mem.Keys("derived/"); len(keys) != 0 {
		t.Fatalf("derived blobs left behind: %v", keys)
	}
}

func TestProcessRejectsRecordHeldByAnotherJob(t *testing.T) {
	ctx := context.Background()
	assets := memstore.NewAssets()
	store := storage.NewMemoryStore("https://cdn.test")
	seedPending(t, assets, store, "rec-1", "alice")

	gate := newGatedRemover()
	first := NewOrchestrator(assets, store, imaging.NewCodec(), gate, Options{}, zerolog.Nop())
	second := NewOrchestrator(assets, store, imaging.NewCodec(), passThrough{}, Options{}, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- first.Process(ctx, "rec-1") }()
	waitEntered(t, gate)

	if err := second.Process(ctx, "rec-1"); !errors.Is(err, domain.ErrDuplicateSubmission) {
		t.Fatalf("second Process err = %v, want ErrDuplicateSubmission", err)
	}
	close(gate.release)
	if err := <-done; err != nil {
		t.Fatalf("first Process: %v", err)
	}

	got, _ := assets.GetByID(ctx, "rec-1")
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s (%s)", got.Status, got.ErrorMessage)
	}
	assertInvariant(t, got)
	for _, ref := range []domain.ArtifactRef{got.Artifacts.Cutout, got.Artifacts.Optimized, got.Artifacts.Thumbnail} {
		if _, err := store.Get(ctx, ref.Key); err != nil {
			t.Fatalf("committed blob %s missing: %v", ref.Key, err)
		}
	}
}

func TestTakenOverJobLeavesCommittedBlobs(t *testing.T) {
	ctx := context.Background()
	assets := memstore.NewAssets()
	store := storage.NewMemoryStore("")
	seedPending(t, assets, store, "rec-1", "alice")

	gate := newGatedRemover()
	stale := NewOrchestrator(assets, store, imaging.NewCodec(), gate, Options{}, zerolog.Nop())
	fresh := NewOrchestrator(assets, store, imaging.NewCodec(), passThrough{}, Options{}, zerolog.Nop())

	done := make(chan error, 1)
	go func() { done <- stale.Process(ctx, "rec-1") }()
	waitEntered(t, gate)

	// The stuck job is written off, the owner retries and a new job finishes.
	if n, err := assets.FailStaleProcessing(ctx, time.Now().UTC().Add(time.Hour), domain.KindInterrupted, "interrupted"); err != nil || n != 1 {
		t.Fatalf("FailStaleProcessing = %d, %v", n, err)
	}
	if err := assets.Reset(ctx, "rec-1"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if err := fresh.Process(ctx, "rec-1"); err != nil {
		t.Fatalf("fresh Process: %v", err)
	}

	close(gate.release)
	if err := <-done; !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("stale Process err = %v, want ErrInvalidTransition", err)
	}

	got, _ := assets.GetByID(ctx, "rec-1")
	if got.Status != domain.StatusCompleted {
		t.Fatalf("status = %s", got.Status)
	}
	assertInvariant(t, got)
	for _, kind := range domain.DerivedKinds {
		if _, err := store.Get(ctx, DerivedKey("alice", "rec-1", kind)); err != nil {
			t.Fatalf("derived %s deleted by the stale job: %v", kind, err)
		}
	}
}
