package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wardrobe/internal/adapter/memstore"
	"wardrobe/internal/domain"
	"wardrobe/internal/imaging"
	"wardrobe/internal/storage"
)

type fixture struct {
	assets    *memstore.Assets
	snapshots *memstore.Snapshots
	store     *storage.MemoryStore
	comp      *Compositor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		assets:    memstore.NewAssets(),
		snapshots: memstore.NewSnapshots(),
		store:     storage.NewMemoryStore("https://cdn.test"),
	}
	f.comp = New(f.assets, f.snapshots, f.store, imaging.NewCodec(), Options{Canvas: domain.Canvas{Width: 400, Height: 300}}, zerolog.Nop())
	return f
}

// addAsset stores a solid w x h optimized image and a record in status.
func (f *fixture) addAsset(t *testing.T, id string, status domain.Status, w, h int, c color.NRGBA) {
	t.Helper()
	ctx := context.Background()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode: %v", err)
	}
	key := "derived/owner/" + id + "/optimized.png"
	url, err := f.store.Put(ctx, key, buf.Bytes(), "image/png")
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	asset := &domain.DerivedAsset{ID: id, OwnerID: "owner", Status: domain.StatusPending, CreatedAt: time.Now()}
	if err := f.assets.Create(ctx, asset); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if status == domain.StatusPending {
		return
	}
	if err := f.assets.MarkProcessing(ctx, id); err != nil {
		t.Fatalf("MarkProcessing: %v", err)
	}
	if status != domain.StatusCompleted {
		return
	}
	ref := domain.ArtifactRef{Key: key, URL: url}
	if err := f.assets.Complete(ctx, id, domain.Completion{
		Artifacts:     domain.DerivedArtifacts{Cutout: ref, Optimized: ref, Thumbnail: ref},
		Width:         w,
		Height:        h,
		DominantColor: domain.Color{R: c.R, G: c.G, B: c.B},
		Colors:        []domain.Color{{R: c.R, G: c.G, B: c.B}},
	}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
}

var (
	red  = color.NRGBA{R: 220, A: 255}
	blue = color.NRGBA{B: 220, A: 255}
)

func layout(layers ...domain.Layer) domain.RenderLayout {
	return domain.RenderLayout{Layers: layers}
}

func TestValidateRejectsBadLayouts(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	f.addAsset(t, "pants", domain.StatusCompleted, 100, 100, blue)
	f.addAsset(t, "busy", domain.StatusProcessing, 100, 100, blue)
	f.addAsset(t, "queued", domain.StatusPending, 100, 100, blue)

	tests := []struct {
		name   string
		layout domain.RenderLayout
	}{
		{"empty", layout()},
		{"duplicate z", layout(
			domain.Layer{AssetID: "shirt", X: 10, Y: 10, Scale: 1, Z: 2},
			domain.Layer{AssetID: "pants", X: 50, Y: 50, Scale: 1, Z: 2},
		)},
		{"processing asset", layout(domain.Layer{AssetID: "busy", Scale: 1, Z: 1})},
		{"pending asset", layout(domain.Layer{AssetID: "queued", Scale: 1, Z: 1})},
		{"unknown asset", layout(domain.Layer{AssetID: "ghost", Scale: 1, Z: 1})},
		{"missing asset id", layout(domain.Layer{Scale: 1, Z: 1})},
		{"zero scale", layout(domain.Layer{AssetID: "shirt", Scale: 0, Z: 1})},
		{"negative scale", layout(domain.Layer{AssetID: "shirt", Scale: -1, Z: 1})},
		{"huge scale", layout(domain.Layer{AssetID: "shirt", Scale: 100, Z: 1})},
		{"nan scale", layout(domain.Layer{AssetID: "shirt", Scale: math.NaN(), Z: 1})},
		{"infinite x", layout(domain.Layer{AssetID: "shirt", X: math.Inf(1), Scale: 1, Z: 1})},
		{"outside canvas", layout(domain.Layer{AssetID: "shirt", X: 1000, Y: 1000, Scale: 1, Z: 1})},
		{"left of canvas", layout(domain.Layer{AssetID: "shirt", X: -100, Y: 10, Scale: 1, Z: 1})},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			if f.comp.IsValidRenderData(ctx, tc.layout) {
				t.Fatal("IsValidRenderData returned true")
			}
			if err := f.comp.Validate(ctx, tc.layout); !errors.Is(err, domain.ErrInvalidLayout) {
				t.Fatalf("Validate err = %v, want ErrInvalidLayout", err)
			}
		})
	}

	ok := layout(
		domain.Layer{AssetID: "shirt", X: 10, Y: 10, Scale: 1, Z: 1},
		domain.Layer{AssetID: "pants", X: -50, Y: 250, Scale: 0.5, Z: 2, Rotation: 30},
	)
	if !f.comp.IsValidRenderData(context.Background(), ok) {
		t.Fatalf("valid layout rejected: %v", f.comp.Validate(context.Background(), ok))
	}
	if keys := f.store.Keys("snapshots/"); len(keys) != 0 {
		t.Fatalf("validation wrote blobs: %v", keys)
	}
}

func decodeSnapshot(t *testing.T, f *fixture, snap *domain.Snapshot) *image.NRGBA {
	t.Helper()
	data, err := f.store.Get(context.Background(), snap.Artifact.Key)
	if err != nil {
		t.Fatalf("Get artifact: %v", err)
	}
	img, err := imaging.Decode(data)
	if err != nil {
		t.Fatalf("Decode artifact: %v", err)
	}
	return img
}

func TestGenerateComposesByZ(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	f.addAsset(t, "jacket", domain.StatusCompleted, 100, 100, blue)

	// Listed top layer first to check ordering is by z, not by position.
	snap, err := f.comp.Generate(context.Background(), "outfit-1", layout(
		domain.Layer{AssetID: "jacket", X: 50, Y: 50, Scale: 1, Z: 5},
		domain.Layer{AssetID: "shirt", X: 0, Y: 0, Scale: 1, Z: 1},
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if snap.Generation != 1 || snap.OwnerID != "outfit-1" || snap.Artifact.URL == "" {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
	if !strings.HasPrefix(snap.Artifact.Key, "snapshots/outfit-1/"+snap.ID+"/v1-") {
		t.Fatalf("artifact key = %q", snap.Artifact.Key)
	}

	img := decodeSnapshot(t, f, snap)
	if img.Bounds().Dx() != 400 || img.Bounds().Dy() != 300 {
		t.Fatalf("canvas = %v", img.Bounds())
	}
	if px := img.NRGBAAt(25, 25); px.R < 200 || px.B > 30 {
		t.Fatalf("shirt area = %+v", px)
	}
	if px := img.NRGBAAt(75, 75); px.B < 200 || px.R > 30 {
		t.Fatalf("overlap should show the higher z layer, got %+v", px)
	}
	if px := img.NRGBAAt(300, 250); px != (color.NRGBA{R: 255, G: 255, B: 255, A: 255}) {
		t.Fatalf("background = %+v", px)
	}

	stored, err := f.comp.Get(context.Background(), snap.ID)
	if err != nil || stored.Generation != 1 || len(stored.Layout.Layers) != 2 {
		t.Fatalf("Get = %+v, %v", stored, err)
	}
}

func TestGenerateBackground(t *testing.T) {
	tests := []struct {
		name string
		bg   *color.NRGBA
		want color.NRGBA
	}{
		{"default", nil, color.NRGBA{R: 255, G: 255, B: 255, A: 255}},
		{"transparent", &color.NRGBA{}, color.NRGBA{}},
		{"custom", &color.NRGBA{R: 10, G: 20, B: 30, A: 255}, color.NRGBA{R: 10, G: 20, B: 30, A: 255}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.comp = New(f.assets, f.snapshots, f.store, imaging.NewCodec(), Options{Canvas: domain.Canvas{Width: 400, Height: 300}, Background: tc.bg}, zerolog.Nop())
			f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)

			snap, err := f.comp.Generate(context.Background(), "outfit-1", layout(domain.Layer{AssetID: "shirt", X: 150, Y: 100, Scale: 1, Z: 1}))
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			img := decodeSnapshot(t, f, snap)
			for _, pt := range []image.Point{{0, 0}, {399, 0}, {0, 299}, {399, 299}} {
				if px := img.NRGBAAt(pt.X, pt.Y); px != tc.want {
					t.Fatalf("corner %v = %+v, want %+v", pt, px, tc.want)
				}
			}
			if px := img.NRGBAAt(200, 150); px.A != 255 || px.R < 200 {
				t.Fatalf("layer pixel = %+v", px)
			}
		})
	}
}

func TestGenerateScalesAndRotates(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "scarf", domain.StatusCompleted, 100, 20, red)

	snap, err := f.comp.Generate(context.Background(), "outfit-1", layout(
		domain.Layer{AssetID: "scarf", X: 100, Y: 100, Scale: 2, Z: 1, Rotation: 90},
	))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	img := decodeSnapshot(t, f, snap)
	// Scaled to 200x40 centred at (200,120); rotated it spans x 180..220, y 20..220.
	if px := img.NRGBAAt(200, 40); px.R < 200 || px.G > 30 {
		t.Fatalf("rotated layer missing at (200,40): %+v", px)
	}
	if px := img.NRGBAAt(110, 120); px.G < 250 {
		t.Fatalf("unrotated position should be background, got %+v", px)
	}
}

func TestRegenerateIncrementsGenerationAndKeepsOneArtifact(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	f.addAsset(t, "pants", domain.StatusCompleted, 100, 100, blue)
	ctx := context.Background()

	snap, err := f.comp.Generate(ctx, "outfit-1", layout(domain.Layer{AssetID: "shirt", X: 10, Y: 10, Scale: 1, Z: 1}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	oldKey := snap.Artifact.Key

	next := layout(domain.Layer{AssetID: "pants", X: 20, Y: 20, Scale: 1.5, Z: 1})
	regen, err := f.comp.Regenerate(ctx, snap.ID, &next)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	if regen.Generation != 2 {
		t.Fatalf("generation = %d, want 2", regen.Generation)
	}
	if regen.Artifact.Key == oldKey || !strings.Contains(regen.Artifact.Key, "/v2-") {
		t.Fatalf("artifact key not replaced: %q", regen.Artifact.Key)
	}
	if _, err := f.store.Get(ctx, oldKey); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("old artifact still reachable: %v", err)
	}
	if keys := f.store.Keys("snapshots/outfit-1/" + snap.ID + "/"); len(keys) != 1 || keys[0] != regen.Artifact.Key {
		t.Fatalf("artifacts = %v", keys)
	}
	if regen.Layout.Layers[0].AssetID != "pants" {
		t.Fatalf("layout not replaced: %+v", regen.Layout)
	}

	// Without a layout the stored one is reused.
	again, err := f.comp.Regenerate(ctx, snap.ID, nil)
	if err != nil {
		t.Fatalf("Regenerate stored layout: %v", err)
	}
	if again.Generation != 3 || again.Layout.Layers[0].AssetID != "pants" {
		t.Fatalf("unexpected snapshot: %+v", again)
	}
}

func TestRegenerateFailureLeavesRecordUntouched(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	f.addAsset(t, "busy", domain.StatusProcessing, 100, 100, blue)
	ctx := context.Background()

	snap, err := f.comp.Generate(ctx, "outfit-1", layout(domain.Layer{AssetID: "shirt", Scale: 1, Z: 1}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	bad := layout(domain.Layer{AssetID: "busy", Scale: 1, Z: 1})
	if _, err := f.comp.Regenerate(ctx, snap.ID, &bad); !errors.Is(err, domain.ErrInvalidLayout) {
		t.Fatalf("Regenerate err = %v", err)
	}
	stored, _ := f.comp.Get(ctx, snap.ID)
	if stored.Generation != 1 || stored.Artifact != snap.Artifact {
		t.Fatalf("record changed: %+v", stored)
	}
	if keys := f.store.Keys("snapshots/"); len(keys) != 1 {
		t.Fatalf("artifacts = %v", keys)
	}
	if _, err := f.comp.Regenerate(ctx, "missing", nil); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Regenerate missing err = %v", err)
	}
}

func TestConcurrentRegenerationsAreSerialized(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 60, 60, red)
	ctx := context.Background()

	snap, err := f.comp.Generate(ctx, "outfit-1", layout(domain.Layer{AssetID: "shirt", Scale: 1, Z: 1}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	const n = 5
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			l := layout(domain.Layer{AssetID: "shirt", X: float64(i * 10), Scale: 1, Z: 1})
			_, err := f.comp.Regenerate(ctx, snap.ID, &l)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("Regenerate: %v", err)
		}
	}
	stored, _ := f.comp.Get(ctx, snap.ID)
	if stored.Generation != n+1 {
		t.Fatalf("generation = %d, want %d", stored.Generation, n+1)
	}
	if keys := f.store.Keys("snapshots/"); len(keys) != 1 || keys[0] != stored.Artifact.Key {
		t.Fatalf("artifacts = %v", keys)
	}
	if f.comp.locks.size() != 0 {
		t.Fatal("snapshot locks leaked")
	}
}

func TestDeleteTwice(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	ctx := context.Background()

	snap, err := f.comp.Generate(ctx, "outfit-1", layout(domain.Layer{AssetID: "shirt", Scale: 1, Z: 1}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if err := f.comp.Delete(ctx, snap.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.Get(ctx, snap.Artifact.Key); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("artifact survived delete: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := f.comp.Delete(ctx, snap.ID); !errors.Is(err, domain.ErrNotFound) {
			t.Fatalf("repeated Delete err = %v, want ErrNotFound", err)
		}
	}
}

func TestDeleteToleratesMissingArtifact(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	ctx := context.Background()

	snap, err := f.comp.Generate(ctx, "outfit-1", layout(domain.Layer{AssetID: "shirt", Scale: 1, Z: 1}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	// Simulates a delete interrupted after the blob was removed.
	if err := f.store.Delete(ctx, snap.Artifact.Key); err != nil {
		t.Fatalf("store.Delete: %v", err)
	}
	if err := f.comp.Delete(ctx, snap.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.comp.Get(ctx, snap.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Get err = %v", err)
	}
}

func TestGenerateMissingLayerBlobIsCompositionError(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	ctx := context.Background()
	if err := f.store.Delete(ctx, "derived/owner/shirt/optimized.png"); err != nil {
		t.Fatalf("store.Delete: %v", err)
	}
	_, err := f.comp.Generate(ctx, "outfit-1", layout(domain.Layer{AssetID: "shirt", Scale: 1, Z: 1}))
	if !errors.Is(err, domain.ErrComposition) {
		t.Fatalf("Generate err = %v, want ErrComposition", err)
	}
	if keys := f.store.Keys("snapshots/"); len(keys) != 0 {
		t.Fatalf("artifacts = %v", keys)
	}
}

func TestLayerBoundsRotation(t *testing.T) {
	b := layerBounds(domain.Layer{X: 0, Y: 0, Scale: 1, Rotation: 90}, 100, 50)
	near := func(a, b float64) bool { return math.Abs(a-b) < 1e-9 }
	if !near(b.minX, 25) || !near(b.maxX, 75) || !near(b.minY, -25) || !near(b.maxY, 75) {
		t.Fatalf("bounds = %+v", b)
	}
}
