package domain

import "time"

// ArtifactKind names one of the derived image variants.
type ArtifactKind string

const (
	ArtifactCutout    ArtifactKind = "cutout"
	ArtifactOptimized ArtifactKind = "optimized"
	ArtifactThumbnail ArtifactKind = "thumbnail"
)

// DerivedKinds lists the artifacts a completed record must carry, in the
// order they are produced.
var DerivedKinds = []ArtifactKind{ArtifactCutout, ArtifactOptimized, ArtifactThumbnail}

// RawAsset describes the originally uploaded bytes. It is immutable once stored.
type RawAsset struct {
	Key         string
	URL         string
	Bytes       int64
	ContentType string
}

// ArtifactRef points at a stored blob.
type ArtifactRef struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

// IsZero reports whether the reference is unset.
func (r ArtifactRef) IsZero() bool {
	return r.Key == "" && r.URL == ""
}

// DerivedArtifacts groups the three derived references. They are written in a
// single update together with the completed status.
type DerivedArtifacts struct {
	Cutout    ArtifactRef
	Optimized ArtifactRef
	Thumbnail ArtifactRef
}

// Complete reports whether all three references are present.
func (a DerivedArtifacts) Complete() bool {
	return !a.Cutout.IsZero() && !a.Optimized.IsZero() && !a.Thumbnail.IsZero()
}

// Empty reports whether no reference is present.
func (a DerivedArtifacts) Empty() bool {
	return a.Cutout.IsZero() && a.Optimized.IsZero() && a.Thumbnail.IsZero()
}

// Keys returns the blob keys of the present references.
func (a DerivedArtifacts) Keys() []string {
	var keys []string
	for _, ref := range []ArtifactRef{a.Cutout, a.Optimized, a.Thumbnail} {
		if ref.Key != "" {
			keys = append(keys, ref.Key)
		}
	}
	return keys
}

// DerivedAsset is the durable record tracking one upload through derivation.
type DerivedAsset struct {
	ID            string
	OwnerID       string
	Raw           RawAsset
	Artifacts     DerivedArtifacts
	Width         int
	Height        int
	DominantColor *Color
	Colors        []Color
	Status        Status
	ErrorKind     string
	ErrorMessage  string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Completion carries everything the final pipeline write stores.
type Completion struct {
	Artifacts     DerivedArtifacts
	Width         int
	Height        int
	DominantColor Color
	Colors        []Color
}

// StatusURLs exposes artifact URLs once derivation completed.
type StatusURLs struct {
	Original  string `json:"original"`
	Cutout    string `json:"cutout"`
	Optimized string `json:"optimized"`
	Thumbnail string `json:"thumbnail"`
}

// StatusError describes why a record failed.
type StatusError struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// StatusView is the polling representation of a record. Progress and step
// values are computed from Status.
type StatusView struct {
	ID            string       `json:"id"`
	Status        Status       `json:"status"`
	CurrentStep   string       `json:"current_step"`
	StepLabel     string       `json:"step_label"`
	Progress      int          `json:"progress"`
	DominantColor *Color       `json:"dominant_color"`
	Colors        []Color      `json:"colors"`
	Width         int          `json:"width,omitempty"`
	Height        int          `json:"height,omitempty"`
	URLs          *StatusURLs  `json:"urls"`
	Error         *StatusError `json:"error,omitempty"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// View builds the polling view of the record for the given locale.
func (a *DerivedAsset) View(locale string) StatusView {
	view := StatusView{
		ID:          a.ID,
		Status:      a.Status,
		CurrentStep: CurrentStep(a.Status),
		StepLabel:   StepLabel(a.Status, locale),
		Progress:    Progress(a.Status),
		Colors:      []Color{},
		UpdatedAt:   a.UpdatedAt,
	}
	if a.Status == StatusCompleted && a.Artifacts.Complete() {
		view.DominantColor = a.DominantColor
		view.Colors = append(view.Colors, a.Colors...)
		view.Width = a.Width
		view.Height = a.Height
		view.URLs = &StatusURLs{
			Original:  a.Raw.URL,
			Cutout:    a.Artifacts.Cutout.URL,
			Optimized: a.Artifacts.Optimized.URL,
			Thumbnail: a.Artifacts.Thumbnail.URL,
		}
	}
	if a.Status == StatusFailed {
		view.Error = &StatusError{Kind: a.ErrorKind, Message: a.ErrorMessage}
	}
	return view
}
