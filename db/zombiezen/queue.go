package zombiezen

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/caasmo/identity/db"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// newJobFromStmt creates a Job struct from a SQLite statement row.
func newJobFromStmt(stmt *sqlite.Stmt) (*db.Job, error) {
	createdAt, err := db.TimeParse(stmt.GetText("created_at"))
	if err != nil {
		return nil, fmt.Errorf("error parsing created_at time: %w", err)
	}

	updatedAt, err := db.TimeParse(stmt.GetText("updated_at"))
	if err != nil {
		return nil, fmt.Errorf("error parsing updated_at time: %w", err)
	}

	scheduledFor, err := db.TimeParse(stmt.GetText("scheduled_for"))
	if err != nil {
		return nil, fmt.Errorf("error parsing scheduled_for time: %w", err)
	}

	lockedAt, err := db.TimeParse(stmt.GetText("locked_at"))
	if err != nil {
		return nil, fmt.Errorf("error parsing locked_at time: %w", err)
	}

	completedAt, err := db.TimeParse(stmt.GetText("completed_at"))
	if err != nil {
		return nil, fmt.Errorf("error parsing completed_at time: %w", err)
	}

	return &db.Job{
		ID:           stmt.GetInt64("id"),
		JobType:      stmt.GetText("job_type"),
		Payload:      json.RawMessage(stmt.GetText("payload")),
		Status:       stmt.GetText("status"),
		Attempts:     int(stmt.GetInt64("attempts")),
		MaxAttempts:  int(stmt.GetInt64("max_attempts")),
		CreatedAt:    createdAt,
		UpdatedAt:    updatedAt,
		ScheduledFor: scheduledFor,
		LockedAt:     lockedAt,
		CompletedAt:  completedAt,
		LastError:    stmt.GetText("last_error"),
	}, nil
}

// InsertJob adds a new job to the queue. ScheduledFor defaults to now when
// zero, so immediate jobs and deferred jobs share one code path.
// The UNIQUE(job_type, payload) constraint is the deduplication mechanism:
// a second insert with an identical payload in the same cooldown bucket
// returns db.ErrConstraintUnique.
func (d *Db) InsertJob(job db.Job) error {
	if job.JobType == "" {
		return fmt.Errorf("%w: JobType", db.ErrMissingFields)
	}

	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("queue insert failed to get connection: %w", err)
	}
	defer d.pool.Put(conn)

	scheduledFor := job.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}

	err = sqlitex.Execute(conn, `INSERT INTO job_queue
		(job_type, payload, max_attempts, scheduled_for)
		VALUES (?, ?, ?, ?)`,
		&sqlitex.ExecOptions{
			Args: []interface{}{
				job.JobType,
				string(job.Payload),
				maxAttempts,
				scheduledFor.UTC().Format(db.TimeFormat),
			},
		})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintUnique {
			return db.ErrConstraintUnique
		}
		return fmt.Errorf("queue insert failed: %w", err)
	}
	return nil
}

// Claim atomically marks up to limit due jobs as processing and returns
// them. A job is due when its scheduled_for time has passed. Failed jobs
// are retried until max_attempts is reached.
func (d *Db) Claim(limit int) ([]*db.Job, error) {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return nil, fmt.Errorf("failed to get connection for claim: %w", err)
	}
	defer d.pool.Put(conn)

	var jobs []*db.Job
	err = sqlitex.Execute(conn,
		`UPDATE job_queue
		SET status = 'processing',
			locked_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			attempts = attempts + 1
		WHERE id IN (
			SELECT id
			FROM job_queue
			WHERE status IN ('pending', 'failed')
			AND attempts < max_attempts
			AND scheduled_for <= strftime('%Y-%m-%dT%H:%M:%SZ', 'now')
			ORDER BY scheduled_for ASC
			LIMIT ?
		)
		RETURNING id, job_type, payload, status, attempts, max_attempts, created_at, updated_at,
			scheduled_for, locked_at, completed_at, last_error`,
		&sqlitex.ExecOptions{
			ResultFunc: func(stmt *sqlite.Stmt) error {
				job, err := newJobFromStmt(stmt)
				if err != nil {
					return err
				}
				jobs = append(jobs, job)
				return nil
			},
			Args: []interface{}{limit},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*db.Job{}
	}
	return jobs, nil
}

// MarkCompleted marks a job as completed successfully.
func (d *Db) MarkCompleted(jobID int64) error {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("failed to get connection for mark completed: %w", err)
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE job_queue
		SET status = 'completed',
			completed_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			locked_at = '',
			last_error = ''
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []interface{}{jobID},
		})
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

// MarkFailed records a failed attempt. The job stays claimable until
// attempts reaches max_attempts.
func (d *Db) MarkFailed(jobID int64, errMsg string) error {
	conn, err := d.pool.Take(context.TODO())
	if err != nil {
		return fmt.Errorf("failed to get connection for mark failed: %w", err)
	}
	defer d.pool.Put(conn)

	err = sqlitex.Execute(conn,
		`UPDATE job_queue
		SET status = 'failed',
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			locked_at = '',
			last_error = ?
		WHERE id = ?`,
		&sqlitex.ExecOptions{
			Args: []interface{}{errMsg, jobID},
		})
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
