package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/caasmo/identity/config"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/queue/executor"
)

// jobTimeout bounds a single job execution.
const jobTimeout = 1 * time.Minute

// Scheduler claims due jobs from the queue on a fixed interval and runs
// them through the executor. It is the only background worker in the
// system; the deferred token-expiry tasks run here, decoupled from the
// requests that created them.
type Scheduler struct {
	configProvider *config.Provider
	db             db.DbQueue
	executor       executor.JobExecutor
	logger         *slog.Logger
	ctx            context.Context
	cancel         context.CancelFunc
	shutdownDone   chan struct{}
}

// NewScheduler creates a new scheduler with executor
func NewScheduler(provider *config.Provider, dbq db.DbQueue, exec executor.JobExecutor, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		configProvider: provider,
		db:             dbq,
		executor:       exec,
		logger:         logger,
		ctx:            ctx,
		cancel:         cancel,
		shutdownDone:   make(chan struct{}),
	}
}

// Start begins scheduler operation in a long running goroutine that claims
// and processes backend jobs every tick.
func (s *Scheduler) Start() {
	go func() {
		interval := s.configProvider.Get().Scheduler.Interval.Duration
		s.logger.Info("starting job scheduler", "interval", interval)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.ctx.Done():
				s.logger.Info("job scheduler received shutdown signal")
				close(s.shutdownDone)
				return
			case <-ticker.C:
				s.processJobs()
				// pick up interval changes from an atomic config update
				if next := s.configProvider.Get().Scheduler.Interval.Duration; next > 0 && next != interval {
					interval = next
					ticker.Reset(interval)
					s.logger.Info("job scheduler interval updated", "interval", interval)
				}
			}
		}
	}()
}

// Stop signals the scheduler to stop and waits for shutdown to complete or
// the context to be canceled, whichever comes first.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.logger.Info("stopping job scheduler")
	s.cancel()

	select {
	case <-s.shutdownDone:
		s.logger.Info("job scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Info("job scheduler shutdown timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) processJobs() {
	cfg := s.configProvider.Get().Scheduler

	jobs, err := s.db.Claim(cfg.MaxJobsPerTick)
	if err != nil {
		s.logger.Error("failed to claim jobs", "err", err)
		return
	}
	if len(jobs) == 0 {
		return
	}

	s.logger.Info("claimed jobs", "count", len(jobs))

	// Use the scheduler's context as parent so jobs receive the shutdown signal
	g, ctx := errgroup.WithContext(s.ctx)
	g.SetLimit(runtime.NumCPU() * cfg.ConcurrencyMultiplier)

	for _, job := range jobs {
		jobCopy := job
		g.Go(func() error {
			jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
			defer cancel()

			err := s.executeJob(jobCtx, *jobCopy)

			switch {
			case err == nil:
				if updateErr := s.db.MarkCompleted(jobCopy.ID); updateErr != nil {
					s.logger.Error("failed to mark job as completed", "job_id", jobCopy.ID, "err", updateErr)
				}
			case errors.Is(err, context.DeadlineExceeded):
				if updateErr := s.db.MarkFailed(jobCopy.ID, "job timeout: "+err.Error()); updateErr != nil {
					s.logger.Error("failed to mark job as timed out", "job_id", jobCopy.ID, "err", updateErr)
				}
			case errors.Is(err, context.Canceled):
				if updateErr := s.db.MarkFailed(jobCopy.ID, "scheduler shutdown: "+err.Error()); updateErr != nil {
					s.logger.Error("failed to mark job as interrupted", "job_id", jobCopy.ID, "err", updateErr)
				}
				s.logger.Info("job interrupted", "job_id", jobCopy.ID)
			default:
				if updateErr := s.db.MarkFailed(jobCopy.ID, err.Error()); updateErr != nil {
					s.logger.Error("failed to mark job as failed", "job_id", jobCopy.ID, "err", updateErr)
				}
			}

			return err
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) {
			s.logger.Info("job batch interrupted due to scheduler shutdown")
		} else {
			s.logger.Error("error executing batch jobs", "err", err)
		}
	}
}

func (s *Scheduler) executeJob(ctx context.Context, job db.Job) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.logger.Info("starting job execution",
		"job_id", job.ID,
		"job_type", job.JobType,
		"attempt", job.Attempts)

	return s.executor.Execute(ctx, job)
}
