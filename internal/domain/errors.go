package domain

import (
	"context"
	"errors"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrUnsupportedFormat   = errors.New("unsupported image format")
	ErrCorruptData         = errors.New("corrupt image data")
	ErrProcessing          = errors.New("processing error")
	ErrTimeout             = errors.New("step timed out")
	ErrInvalidLayout       = errors.New("invalid layout")
	ErrComposition         = errors.New("composition error")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrDuplicateSubmission = errors.New("derivation already in progress")
	ErrConflict            = errors.New("conflicting state")
	ErrInvalidTransition   = errors.New("invalid status transition")
)

// Error kinds persisted on failed records.
const (
	KindUnsupportedFormat = "unsupported_format"
	KindCorruptData       = "corrupt_data"
	KindProcessing        = "processing_error"
	KindTimeout           = "timeout"
	KindInvalidLayout     = "invalid_layout"
	KindComposition       = "composition_error"
	KindStoreUnavailable  = "store_unavailable"
	KindNotFound          = "not_found"
	KindInterrupted       = "interrupted"
	KindInternal          = "internal"
)

// ErrorClassifier lets errors declare their kind directly.
type ErrorClassifier interface {
	ErrorKind() string
}

// ErrorKind maps an error chain to the stable kind stored with failed records.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		if kind := classifier.ErrorKind(); kind != "" {
			return kind
		}
	}
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrCorruptData):
		return KindCorruptData
	case errors.Is(err, ErrProcessing):
		return KindProcessing
	case errors.Is(err, ErrInvalidLayout):
		return KindInvalidLayout
	case errors.Is(err, ErrComposition):
		return KindComposition
	case errors.Is(err, ErrStoreUnavailable):
		return KindStoreUnavailable
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	default:
		return KindInternal
	}
}
