package domain

import "fmt"

// Status enumerates the processing lifecycle of a derived asset record.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions lists the allowed next states for each state. Failed records
// only leave their terminal state through an explicit resubmit, which starts a
// new job on the same record.
var transitions = map[Status][]Status{
	StatusPending:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
	StatusCompleted:  nil,
	StatusFailed:     {StatusPending},
}

// Valid reports whether s is one of the known states.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// Terminal reports whether no job is running or queued for the record.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, candidate := range transitions[s] {
		if candidate == next {
			return true
		}
	}
	return false
}

// ParseStatus converts a stored string into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(raw)
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// Progress is derived from status and never stored.
func Progress(s Status) int {
	switch s {
	case StatusPending:
		return 10
	case StatusProcessing:
		return 50
	case StatusCompleted:
		return 100
	default:
		return 0
	}
}

// CurrentStep mirrors the status enum as the textual step shown to clients.
func CurrentStep(s Status) string {
	if !s.Valid() {
		return string(StatusFailed)
	}
	return string(s)
}

var stepLabels = map[string]map[Status]string{
	"en": {
		StatusPending:    "Waiting in queue",
		StatusProcessing: "Processing image",
		StatusCompleted:  "Ready",
		StatusFailed:     "Processing failed",
	},
	"id": {
		StatusPending:    "Menunggu antrean",
		StatusProcessing: "Memproses gambar",
		StatusCompleted:  "Siap",
		StatusFailed:     "Pemrosesan gagal",
	},
}

// StepLabel returns a human readable label for the status in the given
// locale, falling back to English.
func StepLabel(s Status, locale string) string {
	labels, ok := stepLabels[locale]
	if !ok {
		labels = stepLabels["en"]
	}
	if label, ok := labels[s]; ok {
		return label
	}
	return labels[StatusFailed]
}

// SupportedLocales lists the locales StepLabel knows about, default first.
func SupportedLocales() []string {
	return []string{"en", "id"}
}
