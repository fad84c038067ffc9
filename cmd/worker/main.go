package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"wardrobe/internal/adapter"
	"wardrobe/internal/bgremoval"
	"wardrobe/internal/derivation"
	"wardrobe/internal/imaging"
	"wardrobe/internal/infra"
	"wardrobe/internal/metrics"
	"wardrobe/internal/storage"
)

const (
	queuePerWorker = 16
	recoveryBatch  = 100
)

type recoveryWorker struct {
	ctx        context.Context
	service    *derivation.Service
	dispatcher *derivation.Dispatcher
	logger     infra.Logger
	grace      time.Duration
	interval   time.Duration
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repos, err := adapter.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer repos.Close()

	store, err := storage.Open(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	remover, err := bgremoval.Open(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure background remover")
	}

	recorder := metrics.New()
	orchestrator := derivation.NewOrchestrator(repos.Assets, store, imaging.NewCodec(), remover, derivation.Options{
		StepTimeout:      cfg.StepTimeout,
		OptimizedMaxEdge: cfg.OptimizedMaxEdge,
		ThumbnailMaxEdge: cfg.ThumbnailMaxEdge,
		PaletteSize:      cfg.PaletteSize,
	}, logger).WithObserver(recorder)
	dispatcher := derivation.NewDispatcher(orchestrator, cfg.DerivationWorkers, cfg.DerivationWorkers*queuePerWorker, logger)

	worker := &recoveryWorker{
		ctx:        ctx,
		service:    derivation.NewService(repos.Assets, store, dispatcher, logger),
		dispatcher: dispatcher,
		logger:     logger,
		grace:      cfg.RecoveryGrace,
		interval:   cfg.RecoveryInterval,
	}

	if err := worker.Run(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.StepTimeout+5*time.Second)
	defer cancel()
	if err := dispatcher.Shutdown(drainCtx); err != nil {
		logger.Warn().Err(err).Msg("worker: jobs still running at shutdown")
	}
	logger.Info().Msg("worker: stopped")
}

// Run sweeps for stale records every interval until the context ends.
func (w *recoveryWorker) Run() error {
	w.logger.Info().Dur("interval", w.interval).Dur("grace", w.grace).Msg("worker: started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		w.sweep()
		select {
		case <-w.ctx.Done():
			return w.ctx.Err()
		case <-ticker.C:
		}
	}
}

func (w *recoveryWorker) sweep() {
	if n, err := w.service.FailInterrupted(w.ctx, w.grace); err != nil {
		w.logger.Error().Err(err).Msg("worker: fail interrupted records")
	} else if n > 0 {
		w.logger.Info().Int64("failed", n).Msg("worker: interrupted records failed")
	}

	// Skip the sweep while the previous batch is still draining.
	if w.dispatcher.Pending() > 0 {
		return
	}
	n, err := w.service.RecoverPending(w.ctx, w.grace, recoveryBatch)
	if err != nil {
		w.logger.Error().Err(err).Msg("worker: recover pending records")
		return
	}
	if n > 0 {
		w.logger.Info().Int("scheduled", n).Msg("worker: picked stale records")
	}
}
