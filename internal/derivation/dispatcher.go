package derivation

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"wardrobe/internal/domain"
)

var (
	// ErrQueueFull is returned by Submit when every worker is busy and the
	// backlog is at capacity. The record stays pending for recovery.
	ErrQueueFull = errors.New("derivation queue is full")
	// ErrDispatcherClosed is returned by Submit after Shutdown.
	ErrDispatcherClosed = errors.New("derivation dispatcher is shut down")
)

// Processor runs the pipeline for a single record.
type Processor interface {
	Process(ctx context.Context, id string) error
}

// Dispatcher runs derivation jobs on a bounded pool of goroutines. A record
// is never processed by two jobs of the same dispatcher at once.
type Dispatcher struct {
	proc   Processor
	logger zerolog.Logger
	jobs   chan string

	mu       sync.Mutex
	inflight map[string]struct{}
	closed   bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewDispatcher starts workers goroutines with a backlog of queueSize jobs.
func NewDispatcher(proc Processor, workers, queueSize int, logger zerolog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		proc:     proc,
		logger:   logger.With().Str("component", "dispatcher").Logger(),
		jobs:     make(chan string, queueSize),
		inflight: make(map[string]struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.loop()
	}
	return d
}

// Submit enqueues record id and returns immediately. A record already queued
// or running is rejected with domain.ErrDuplicateSubmission.
func (d *Dispatcher) Submit(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDispatcherClosed
	}
	if _, ok := d.inflight[id]; ok {
		return domain.ErrDuplicateSubmission
	}
	select {
	case d.jobs <- id:
		d.inflight[id] = struct{}{}
		return nil
	default:
		return ErrQueueFull
	}
}

// InFlight reports whether id is queued or running.
func (d *Dispatcher) InFlight(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.inflight[id]
	return ok
}

// Pending returns the number of queued or running jobs.
func (d *Dispatcher) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Shutdown stops accepting jobs and waits for queued ones to finish. When
// ctx expires first, running jobs are cancelled and ctx.Err is returned.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.jobs)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) loop() {
	defer d.wg.Done()
	for id := range d.jobs {
		d.run(id)
	}
}

func (d *Dispatcher) run(id string) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Str("record_id", id).Msg("dispatcher: job panicked")
		}
		d.mu.Lock()
		delete(d.inflight, id)
		d.mu.Unlock()
	}()
	if err := d.proc.Process(d.ctx, id); err != nil {
		d.logger.Debug().Err(err).Str("record_id", id).Msg("dispatcher: job finished with error")
	}
}
