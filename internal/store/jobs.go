package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("store: job not found")

// Job is one row of the jobs table.
type Job struct {
	ID              string    `db:"id" json:"job_id"`
	JobType         string    `db:"job_type" json:"job_type"`
	Status          string    `db:"status" json:"status"`
	Username        string    `db:"username" json:"username,omitempty"`
	Source          string    `db:"source" json:"source,omitempty"`
	ProgressCurrent int       `db:"progress_current" json:"progress_current"`
	ProgressTotal   int       `db:"progress_total" json:"progress_total"`
	ErrorMessage    string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// JobStore provides job CRUD over the SQLite database.
type JobStore struct {
	db *sqlx.DB
}

func NewJobStore(db *sqlx.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a pending job and returns its id (UUID v7, time-ordered).
func (s *JobStore) Create(ctx context.Context, jobType, username, source string) (string, error) {
	id := uuid.Must(uuid.NewV7()).String()
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (id, job_type, status, username, source, created_at, updated_at)
		VALUES (?, ?, 'pending', ?, ?, ?, ?)`,
		id, jobType, username, source, now, now)
	if err != nil {
		return "", fmt.Errorf("insert job: %w", err)
	}
	return id, nil
}

// Get returns a job by id.
func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	var job Job
	err := s.db.GetContext(ctx, &job, `SELECT * FROM jobs WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return &job, nil
}

// ListFilter narrows a List call. Zero values mean no filtering.
type ListFilter struct {
	JobType string
	Status  string
	Limit   int
}

// List returns recent jobs, newest first.
func (s *JobStore) List(ctx context.Context, f ListFilter) ([]Job, error) {
	query := `SELECT * FROM jobs WHERE 1=1`
	var args []any
	if f.JobType != "" {
		query += ` AND job_type = ?`
		args = append(args, f.JobType)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, f.Status)
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	jobs := []Job{}
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateStatus sets the job's status and error message.
func (s *JobStore) UpdateStatus(ctx context.Context, id, status, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET status = ?, error_message = ?, updated_at = ? WHERE id = ?`,
		status, errorMessage, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update job status: %w", err)
	}
	return checkFound(res)
}

// UpdateProgress sets the job's progress counters.
func (s *JobStore) UpdateProgress(ctx context.Context, id string, current, total int) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress_current = ?, progress_total = ?, updated_at = ? WHERE id = ?`,
		current, total, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return checkFound(res)
}

// Delete removes a job row.
func (s *JobStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return checkFound(res)
}

func checkFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
