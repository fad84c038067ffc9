package domain

import "time"

// Snapshot is a rendered outfit preview. Generation starts at 1 and grows by
// exactly one per regeneration.
type Snapshot struct {
	ID          string       `json:"id"`
	OwnerID     string       `json:"owner_id"`
	Artifact    ArtifactRef  `json:"artifact"`
	Layout      RenderLayout `json:"layout"`
	Generation  int          `json:"generation"`
	GeneratedAt time.Time    `json:"generated_at"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// SnapshotSwap describes a regeneration write: the new artifact replaces the
// old one only if the stored generation still equals ExpectedGeneration.
type SnapshotSwap struct {
	ID                 string
	ExpectedGeneration int
	Artifact           ArtifactRef
	Layout             RenderLayout
	GeneratedAt        time.Time
}
