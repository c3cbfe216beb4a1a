package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of periodic background work
type Job struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
	// RunAtStart runs the job once before the first tick.
	RunAtStart bool
}

// Scheduler runs jobs on their own tickers until stopped
type Scheduler struct {
	jobs   []Job
	log    *zap.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler for the given jobs
func New(log *zap.Logger, jobs ...Job) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{jobs: jobs, log: log}
}

// Start launches one loop per job; jobs with a non-positive interval are skipped
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, job := range s.jobs {
		if job.Interval <= 0 || job.Run == nil {
			s.log.Warn("Skipping scheduled job", zap.String("job", job.Name))
			continue
		}
		s.wg.Add(1)
		go s.loop(ctx, job)
	}
	s.log.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
}

// Stop cancels every loop and waits for running jobs, bounded by ctx
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		s.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) loop(ctx context.Context, job Job) {
	defer s.wg.Done()

	ticker := time.NewTicker(job.Interval)
	defer ticker.Stop()

	if job.RunAtStart {
		s.runOnce(ctx, job)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx, job)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context, job Job) {
	start := time.Now()
	err := job.Run(ctx)
	switch {
	case err == nil:
		s.log.Debug("Scheduled job finished", zap.String("job", job.Name), zap.Duration("took", time.Since(start)))
	case errors.Is(err, context.Canceled):
		s.log.Info("Scheduled job cancelled", zap.String("job", job.Name))
	default:
		s.log.Error("Scheduled job failed", zap.String("job", job.Name), zap.Error(err))
	}
}
