package domain

import "testing"

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		want     bool
	}{
		{StatusPending, StatusProcessing, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusProcessing, StatusCompleted, true},
		{StatusProcessing, StatusFailed, true},
		{StatusProcessing, StatusPending, false},
		{StatusCompleted, StatusFailed, false},
		{StatusCompleted, StatusProcessing, false},
		{StatusFailed, StatusPending, true},
		{StatusFailed, StatusCompleted, false},
	}
	for _, tc := range tests {
		if got := tc.from.CanTransition(tc.to); got != tc.want {
			t.Fatalf("%s -> %s = %v, want %v", tc.from, tc.to, got, tc.want)
		}
	}
}

func TestProgressAndStepAreDerivedFromStatus(t *testing.T) {
	tests := []struct {
		status   Status
		progress int
		step     string
	}{
		{StatusPending, 10, "pending"},
		{StatusProcessing, 50, "processing"},
		{StatusCompleted, 100, "completed"},
		{StatusFailed, 0, "failed"},
	}
	for _, tc := range tests {
		if got := Progress(tc.status); got != tc.progress {
			t.Fatalf("Progress(%s) = %d, want %d", tc.status, got, tc.progress)
		}
		if got := CurrentStep(tc.status); got != tc.step {
			t.Fatalf("CurrentStep(%s) = %q, want %q", tc.status, got, tc.step)
		}
	}
}

func TestStepLabelFallsBackToEnglish(t *testing.T) {
	if got := StepLabel(StatusCompleted, "fr"); got != "Ready" {
		t.Fatalf("StepLabel fallback = %q", got)
	}
	if got := StepLabel(StatusPending, "id"); got != "Menunggu antrean" {
		t.Fatalf("StepLabel id = %q", got)
	}
}

func TestParseStatus(t *testing.T) {
	if _, err := ParseStatus("queued"); err == nil {
		t.Fatal("expected unknown status to fail")
	}
	s, err := ParseStatus("processing")
	if err != nil || s != StatusProcessing {
		t.Fatalf("ParseStatus = %q, %v", s, err)
	}
}

func TestViewHidesArtifactsUntilCompleted(t *testing.T) {
	dominant := Color{R: 10, G: 20, B: 30}
	asset := &DerivedAsset{
		ID:     "a1",
		Status: StatusProcessing,
		Raw:    RawAsset{URL: "http://blob/raw"},
		Artifacts: DerivedArtifacts{
			Cutout:    ArtifactRef{Key: "c", URL: "http://blob/c"},
			Optimized: ArtifactRef{Key: "o", URL: "http://blob/o"},
			Thumbnail: ArtifactRef{Key: "t", URL: "http://blob/t"},
		},
		DominantColor: &dominant,
		Colors:        []Color{dominant},
	}
	view := asset.View("en")
	if view.URLs != nil || view.DominantColor != nil || len(view.Colors) != 0 {
		t.Fatalf("processing view leaked artifacts: %+v", view)
	}
	if view.Progress != 50 {
		t.Fatalf("progress = %d, want 50", view.Progress)
	}

	asset.Status = StatusCompleted
	view = asset.View("en")
	if view.URLs == nil || view.URLs.Thumbnail != "http://blob/t" || view.URLs.Original != "http://blob/raw" {
		t.Fatalf("completed view missing urls: %+v", view.URLs)
	}
	if view.DominantColor == nil || view.DominantColor.Hex() != "#0a141e" {
		t.Fatalf("dominant color = %v", view.DominantColor)
	}

	asset.Status = StatusFailed
	asset.ErrorKind = KindTimeout
	view = asset.View("en")
	if view.Error == nil || view.Error.Kind != KindTimeout || view.Progress != 0 || view.CurrentStep != "failed" {
		t.Fatalf("failed view = %+v", view)
	}
}
