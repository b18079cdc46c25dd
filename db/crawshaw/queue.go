package crawshaw

import (
	"encoding/json"
	"fmt"
	"time"

	"crawshaw.io/sqlite"
	"crawshaw.io/sqlite/sqlitex"

	"github.com/caasmo/identity/db"
)

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

func (d *Db) InsertJob(job db.Job) error {
	if job.JobType == "" {
		return fmt.Errorf("%w: JobType", db.ErrMissingFields)
	}

	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	scheduledFor := job.ScheduledFor
	if scheduledFor.IsZero() {
		scheduledFor = time.Now()
	}

	maxAttempts := job.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = 3
	}

	err := sqlitex.Exec(conn, `INSERT INTO job_queue
		(job_type, payload, max_attempts, scheduled_for)
		VALUES (?, ?, ?, ?)`,
		nil,
		job.JobType, string(job.Payload), maxAttempts,
		scheduledFor.UTC().Format(db.TimeFormat))
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.SQLITE_CONSTRAINT_UNIQUE {
			return db.ErrConstraintUnique
		}
		return fmt.Errorf("queue insert failed: %w", err)
	}
	return nil
}

func (d *Db) Claim(limit int) ([]*db.Job, error) {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	var jobs []*db.Job
	fn := func(stmt *sqlite.Stmt) error {
		job, err := newJobFromStmt(stmt)
		if err != nil {
			return err
		}
		jobs = append(jobs, job)
		return nil
	}
	err := sqlitex.Exec(conn,
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
		fn, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim jobs: %w", err)
	}
	if jobs == nil {
		jobs = []*db.Job{}
	}
	return jobs, nil
}

func (d *Db) MarkCompleted(jobID int64) error {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	err := sqlitex.Exec(conn,
		`UPDATE job_queue
		SET status = 'completed',
			completed_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			locked_at = '',
			last_error = ''
		WHERE id = ?`, nil, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job completed: %w", err)
	}
	return nil
}

func (d *Db) MarkFailed(jobID int64, errMsg string) error {
	conn := d.pool.Get(nil)
	defer d.pool.Put(conn)

	err := sqlitex.Exec(conn,
		`UPDATE job_queue
		SET status = 'failed',
			updated_at = strftime('%Y-%m-%dT%H:%M:%SZ', 'now'),
			locked_at = '',
			last_error = ?
		WHERE id = ?`, nil, errMsg, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}
