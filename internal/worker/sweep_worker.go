package worker

import (
	"context"
	"sync"
	"time"

	"github.com/ayo6706/creator-payouts/internal/observability"
	"github.com/ayo6706/creator-payouts/internal/service"
	"go.uber.org/zap"
)

// SweepWorker periodically resolves payouts stuck in PROCESSING by asking
// the provider directly. It is the safety net when webhooks are lost or a
// create call timed out before returning a transfer id.
type SweepWorker struct {
	svc      *service.SweepService
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewSweepWorker(svc *service.SweepService) *SweepWorker {
	return &SweepWorker{
		svc:      svc,
		interval: time.Minute,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *SweepWorker) WithInterval(interval time.Duration) *SweepWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and sweeps at the configured interval.
func (w *SweepWorker) Start(ctx context.Context) {
	zap.L().Info("sweep worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("sweep worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("sweep worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *SweepWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *SweepWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *SweepWorker) runOnce(ctx context.Context) {
	resolved, err := w.svc.SweepOnce(ctx)
	if err != nil {
		observability.IncrementWorkerRun("sweep", "failed")
		zap.L().Error("sweep run failed", zap.Error(err))
		return
	}
	if resolved > 0 {
		zap.L().Info("sweep run resolved payouts", zap.Int("resolved", resolved))
	}
	observability.IncrementWorkerRun("sweep", "success")
}
