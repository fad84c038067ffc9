package domain

import (
	"context"
	"time"
)

// AssetRepository persists derived asset records. Status-changing methods are
// conditional on the current status and return ErrInvalidTransition when the
// stored record is not in an allowed source state.
type AssetRepository interface {
	Create(ctx context.Context, asset *DerivedAsset) error
	GetByID(ctx context.Context, id string) (*DerivedAsset, error)
	ListByOwner(ctx context.Context, ownerID string, limit, offset int) ([]DerivedAsset, error)
	GetMany(ctx context.Context, ids []string) (map[string]*DerivedAsset, error)
	// MarkProcessing claims a pending record for one job by moving it to
	// processing. Any other state, processing included, is an invalid
	// transition: the record belongs to another job or is finished.
	MarkProcessing(ctx context.Context, id string) error
	// Complete stores artifacts, dimensions and palette and flips the status
	// to completed in a single write. Only processing records qualify.
	Complete(ctx context.Context, id string, completion Completion) error
	// Fail moves a processing record to failed, clearing any artifact
	// references. Only the job holding the record fails it.
	Fail(ctx context.Context, id, kind, message string) error
	// Reset moves a failed record back to pending for a new job.
	Reset(ctx context.Context, id string) error
	// ListStalePending returns pending records last updated before cutoff.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]DerivedAsset, error)
	// FailStaleProcessing fails processing records last updated before
	// cutoff, left behind by a process that died mid-job.
	FailStaleProcessing(ctx context.Context, cutoff time.Time, kind, message string) (int64, error)
}

// SnapshotRepository persists outfit snapshots.
type SnapshotRepository interface {
	Create(ctx context.Context, snapshot *Snapshot) error
	GetByID(ctx context.Context, id string) (*Snapshot, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Snapshot, error)
	// Swap replaces artifact and layout and increments the generation when
	// the stored generation matches; otherwise it returns ErrConflict.
	Swap(ctx context.Context, swap SnapshotSwap) (*Snapshot, error)
	Delete(ctx context.Context, id string) error
}
