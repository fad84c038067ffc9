package compositor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"wardrobe/internal/domain"
	"wardrobe/internal/imaging"
)

// pausingSnapshots holds the first GetByID caller after its read until
// resumed, standing in for a second process that read a stale generation.
type pausingSnapshots struct {
	domain.SnapshotRepository
	once   sync.Once
	read   chan struct{}
	resume chan struct{}
}

func (p *pausingSnapshots) GetByID(ctx context.Context, id string) (*domain.Snapshot, error) {
	snap, err := p.SnapshotRepository.GetByID(ctx, id)
	p.once.Do(func() {
		close(p.read)
		<-p.resume
	})
	return snap, err
}

func TestRegenerateOnTwoReplicasKeepsWinningArtifact(t *testing.T) {
	f := newFixture(t)
	f.addAsset(t, "shirt", domain.StatusCompleted, 100, 100, red)
	ctx := context.Background()

	snap, err := f.comp.Generate(ctx, "outfit-1", layout(domain.Layer{AssetID: "shirt", X: 10, Y: 10, Scale: 1, Z: 1}))
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	paused := &pausingSnapshots{SnapshotRepository: f.snapshots, read: make(chan struct{}), resume: make(chan struct{})}
	replica := New(f.assets, paused, f.store, imaging.NewCodec(), Options{Canvas: f.comp.Canvas()}, zerolog.Nop())

	lost := make(chan error, 1)
	go func() {
		_, err := replica.Regenerate(ctx, snap.ID, nil)
		lost <- err
	}()
	select {
	case <-paused.read:
	case <-time.After(10 * time.Second):
		t.Fatal("replica never read the snapshot")
	}

	won, err := f.comp.Regenerate(ctx, snap.ID, nil)
	if err != nil {
		t.Fatalf("Regenerate: %v", err)
	}
	close(paused.resume)
	if err := <-lost; !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("stale replica err = %v, want ErrConflict", err)
	}

	got, err := f.snapshots.GetByID(ctx, snap.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.Generation != 2 || got.Artifact.Key != won.Artifact.Key {
		t.Fatalf("snapshot = gen %d key %q, want gen 2 key %q", got.Generation, got.Artifact.Key, won.Artifact.Key)
	}
	if _, err := f.store.Get(ctx, got.Artifact.Key); err != nil {
		t.Fatalf("committed artifact unreachable: %v", err)
	}
	if keys := f.store.Keys("snapshots/outfit-1/" + snap.ID + "/"); len(keys) != 1 || keys[0] != got.Artifact.Key {
		t.Fatalf("artifacts = %v", keys)
	}
}

func TestSnapshotKeysDifferPerAttempt(t *testing.T) {
	data := []byte("same render")
	a := SnapshotKey("outfit-1", "snap-1", 2, newAttempt(), data)
	b := SnapshotKey("outfit-1", "snap-1", 2, newAttempt(), data)
	if a == b {
		t.Fatalf("two attempts share key %q", a)
	}
}
