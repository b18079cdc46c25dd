package executor

import (
	"context"
	"fmt"

	"github.com/caasmo/identity/db"
)

// JobHandler processes a specific type of job
type JobHandler interface {
	Handle(ctx context.Context, job db.Job) error
}

// JobExecutor routes a claimed job to the handler registered for its type
type JobExecutor interface {
	Execute(ctx context.Context, job db.Job) error
}

// DefaultExecutor is our concrete implementation of JobExecutor
type DefaultExecutor struct {
	registry map[string]JobHandler // Maps job types to handlers
}

// NewExecutor creates an executor with the given handlers
func NewExecutor(handlers map[string]JobHandler) *DefaultExecutor {
	return &DefaultExecutor{
		registry: handlers,
	}
}

// Execute implements the JobExecutor interface
func (e *DefaultExecutor) Execute(ctx context.Context, job db.Job) error {
	handler, exists := e.registry[job.JobType]
	if !exists {
		return fmt.Errorf("no handler registered for job type: %s", job.JobType)
	}
	return handler.Handle(ctx, job)
}
