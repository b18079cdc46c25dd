package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/caasmo/identity/config"
	"github.com/caasmo/identity/db"
	"github.com/caasmo/identity/db/mock"
)

type executorMock struct {
	mu       sync.Mutex
	executed []int64
	err      error
}

func (e *executorMock) Execute(ctx context.Context, job db.Job) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.executed = append(e.executed, job.ID)
	return e.err
}

func testProvider() *config.Provider {
	return config.NewProvider(config.NewDefaultConfig())
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProcessJobsMarksCompleted(t *testing.T) {
	var completed []int64
	mockDb := &mock.Db{
		ClaimFunc: func(limit int) ([]*db.Job, error) {
			return []*db.Job{{ID: 1, JobType: "t"}, {ID: 2, JobType: "t"}}, nil
		},
		MarkCompletedFunc: func(jobID int64) error {
			completed = append(completed, jobID)
			return nil
		},
		MarkFailedFunc: func(jobID int64, errMsg string) error {
			t.Errorf("MarkFailed(%d, %q) should not be called", jobID, errMsg)
			return nil
		},
	}

	exec := &executorMock{}
	s := NewScheduler(testProvider(), mockDb, exec, testLogger())
	s.processJobs()

	if len(exec.executed) != 2 {
		t.Fatalf("executed %d jobs, want 2", len(exec.executed))
	}
	if len(completed) != 2 {
		t.Fatalf("completed %d jobs, want 2", len(completed))
	}
}

func TestProcessJobsMarksFailed(t *testing.T) {
	var failed []int64
	var lastErr string
	mockDb := &mock.Db{
		ClaimFunc: func(limit int) ([]*db.Job, error) {
			return []*db.Job{{ID: 7, JobType: "t"}}, nil
		},
		MarkFailedFunc: func(jobID int64, errMsg string) error {
			failed = append(failed, jobID)
			lastErr = errMsg
			return nil
		},
	}

	exec := &executorMock{err: errors.New("boom")}
	s := NewScheduler(testProvider(), mockDb, exec, testLogger())
	s.processJobs()

	if len(failed) != 1 || failed[0] != 7 {
		t.Fatalf("failed jobs = %v, want [7]", failed)
	}
	if lastErr != "boom" {
		t.Errorf("last error = %q, want boom", lastErr)
	}
}

func TestProcessJobsClaimError(t *testing.T) {
	mockDb := &mock.Db{
		ClaimFunc: func(limit int) ([]*db.Job, error) {
			return nil, errors.New("db down")
		},
	}

	exec := &executorMock{}
	s := NewScheduler(testProvider(), mockDb, exec, testLogger())
	s.processJobs()

	if len(exec.executed) != 0 {
		t.Errorf("executed %d jobs, want 0", len(exec.executed))
	}
}

func TestStartStop(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Scheduler.Interval = config.Duration{Duration: 10 * time.Millisecond}
	provider := config.NewProvider(cfg)

	var mu sync.Mutex
	var claims int
	mockDb := &mock.Db{
		ClaimFunc: func(limit int) ([]*db.Job, error) {
			mu.Lock()
			defer mu.Unlock()
			claims++
			return []*db.Job{}, nil
		},
	}

	s := NewScheduler(provider, mockDb, &executorMock{}, testLogger())
	s.Start()
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if claims == 0 {
		t.Error("scheduler never ticked")
	}
}

func TestIntervalFollowsConfigUpdate(t *testing.T) {
	cfg := config.NewDefaultConfig()
	cfg.Scheduler.Interval = config.Duration{Duration: 5 * time.Millisecond}
	provider := config.NewProvider(cfg)

	var mu sync.Mutex
	var claims int
	mockDb := &mock.Db{
		ClaimFunc: func(limit int) ([]*db.Job, error) {
			mu.Lock()
			defer mu.Unlock()
			claims++
			return []*db.Job{}, nil
		},
	}

	s := NewScheduler(provider, mockDb, &executorMock{}, testLogger())
	s.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s.Stop(ctx)
	}()

	time.Sleep(25 * time.Millisecond)
	mu.Lock()
	before := claims
	mu.Unlock()
	if before == 0 {
		t.Fatal("scheduler never ticked at the initial interval")
	}

	slow := config.NewDefaultConfig()
	slow.Scheduler.Interval = config.Duration{Duration: 10 * time.Minute}
	provider.Update(slow)

	// the running ticker applies the new interval on its next tick
	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	settled := claims
	mu.Unlock()

	time.Sleep(100 * time.Millisecond)
	mu.Lock()
	after := claims
	mu.Unlock()
	if after != settled {
		t.Errorf("claims kept accruing after the interval update: %d -> %d", settled, after)
	}
}
