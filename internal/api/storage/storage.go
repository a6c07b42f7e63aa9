package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/videogen/internal/api/domain"
	"github.com/cuongbtq/videogen/internal/api/model"
	"github.com/cuongbtq/videogen/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const jobColumns = `
	job_id, idempotency_key, prompt, aspect_ratio, negative_prompt,
	status, operation_id, result_uri, attempts, error_kind, error_message,
	created_at, updated_at, last_polled_at, completed_at
`

type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// CreateJob inserts job unless its idempotency key already exists. It returns
// the stored record and whether it was created by this call.
func (s *Storage) CreateJob(ctx context.Context, job *model.VideoJob) (*model.VideoJob, bool, error) {
	query := `
		INSERT INTO video_jobs (
			job_id, idempotency_key, prompt, aspect_ratio,
			negative_prompt, status, created_at, updated_at
		) VALUES (
			:job_id, :idempotency_key, :prompt, :aspect_ratio,
			:negative_prompt, :status, :created_at, :updated_at
		)
		ON CONFLICT (idempotency_key) DO NOTHING
	`

	result, err := s.db.NamedExecContext(ctx, query, job)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create job: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 1 {
		return job, true, nil
	}

	var existing model.VideoJob
	err = s.db.GetContext(ctx, &existing, `SELECT `+jobColumns+` FROM video_jobs WHERE idempotency_key = $1`, job.IdempotencyKey)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load job for idempotency key: %w", err)
	}

	return &existing, false, nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.VideoJob, error) {
	var job model.VideoJob

	err := s.db.GetContext(ctx, &job, `SELECT `+jobColumns+` FROM video_jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	Status   string
	PageSize int
	Cursor   *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 records so the caller can tell whether another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.VideoJob, error) {
	query := `SELECT ` + jobColumns + ` FROM video_jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []model.VideoJob
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// MarkJobFailed moves a job that never reached a worker to FAILED
func (s *Storage) MarkJobFailed(ctx context.Context, jobID, errorKind, errorMessage string) error {
	query := `
		UPDATE video_jobs
		SET status = $1,
			error_kind = $2,
			error_message = $3,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE job_id = $4 AND status = $5
	`

	_, err := s.db.ExecContext(ctx, query, domain.JobStatusFailed, errorKind, errorMessage, jobID, domain.JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}

	return nil
}
