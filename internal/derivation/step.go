package derivation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wardrobe/internal/domain"
)

// Pipeline step names, recorded on failures and in metrics.
const (
	StepMarkProcessing   = "mark_processing"
	StepDecode           = "decode"
	StepRemoveBackground = "remove_background"
	StepEncode           = "encode"
	StepPalette          = "palette"
	StepStore            = "store"
	StepCommit           = "commit"
)

// StepError wraps an error with the step name that failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return e.Step + ": " + e.Err.Error()
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// StepName returns the failing step.
func (e *StepError) StepName() string {
	return e.Step
}

// FailedStep extracts the step name from err, or "" if none is attached.
func FailedStep(err error) string {
	var se *StepError
	if errors.As(err, &se) {
		return se.Step
	}
	return ""
}

type stepResult[T any] struct {
	val T
	err error
}

// withTimeout runs fn under a deadline. When the deadline passes first the
// call returns an error wrapping domain.ErrTimeout without waiting for fn;
// fn observes the cancelled context and its result is discarded.
func withTimeout[T any](ctx context.Context, timeout time.Duration, step string, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan stepResult[T], 1)
	go func() {
		v, err := fn(stepCtx)
		done <- stepResult[T]{val: v, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(stepCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			var zero T
			return zero, fmt.Errorf("%s exceeded %s: %w", step, timeout, domain.ErrTimeout)
		}
		return res.val, res.err
	case <-stepCtx.Done():
		var zero T
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, fmt.Errorf("%s exceeded %s: %w", step, timeout, domain.ErrTimeout)
	}
}
