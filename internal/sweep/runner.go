// Package sweep runs the periodic batch passes of the engine: matching
// waiting groups to recycled capacity, reclaiming expired offers and
// sending ticket notifications.
package sweep

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the shared cadence of every sweep.
const DefaultInterval = 30 * time.Second

// Task is one sweep pass.
type Task interface {
	Name() string
	Run(ctx context.Context) error
}

// Runner executes a Task on a fixed delay. The next run is scheduled
// only after the current one returns, so runs of one Task never overlap.
// A failed run is logged and the loop carries on.
type Runner struct {
	task     Task
	log      *zap.Logger
	interval time.Duration
	timeout  time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewRunner creates a runner for task. timeout bounds each run; zero
// means no per-run deadline.
func NewRunner(task Task, logger *zap.Logger, interval, timeout time.Duration) *Runner {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Runner{
		task:     task,
		log:      logger.With(zap.String("sweep", task.Name())),
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the loop. ctx is the parent of every run's context.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.loop(ctx)
	r.log.Info("sweep started", zap.Duration("interval", r.interval))
}

// Stop signals the loop to finish and waits for an in-flight run.
func (r *Runner) Stop() {
	r.stopOnce.Do(func() { close(r.stopCh) })
	r.wg.Wait()
	r.log.Info("sweep stopped")
}

func (r *Runner) loop(ctx context.Context) {
	defer r.wg.Done()

	timer := time.NewTimer(r.interval)
	defer timer.Stop()

	for {
		select {
		case <-r.stopCh:
			return
		case <-ctx.Done():
			return
		case <-timer.C:
			r.RunOnce(ctx)
			timer.Reset(r.interval)
		}
	}
}

// RunOnce performs a single run synchronously and reports its error.
func (r *Runner) RunOnce(ctx context.Context) error {
	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	start := time.Now()
	err := r.task.Run(runCtx)
	took := time.Since(start)
	if err != nil {
		r.log.Error("sweep run failed", zap.Duration("duration", took), zap.Error(err))
		return err
	}
	r.log.Debug("sweep run complete", zap.Duration("duration", took))
	return nil
}
