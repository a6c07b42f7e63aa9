package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cuongbtq/videogen/internal/worker/domain"
	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the worker
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ClaimJob moves a PENDING job to RUNNING for workerID.
// Returns ErrJobAlreadyClaimed when the job is missing or not pending.
func (s *Storage) ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE video_jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING job_id, prompt, aspect_ratio, negative_prompt, status
	`

	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusRunning, workerID, jobID, domain.JobStatusPending)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed or not found",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobAlreadyClaimed
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	job.WorkerID = workerID

	s.logger.Info("Job claimed successfully",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
	)

	return &job, nil
}

// RecordProgress stores the vendor operation id and polling counters of a running job
func (s *Storage) RecordProgress(ctx context.Context, jobID string, progress domain.Progress) error {
	query := `
		UPDATE video_jobs
		SET operation_id = $1,
		    attempts = $2,
		    last_polled_at = $3,
		    updated_at = NOW()
		WHERE job_id = $4 AND status = $5
	`

	result, err := s.db.ExecContext(ctx, query,
		progress.OperationID, progress.Attempts, progress.LastPolledAt, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to record job progress: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job progress update - no rows affected (job may not be running)",
			slog.String("job_id", jobID),
		)
	}

	return nil
}

// FinishJob writes the terminal outcome of a running job
func (s *Storage) FinishJob(ctx context.Context, jobID string, outcome domain.Outcome) error {
	query := `
		UPDATE video_jobs
		SET status = $1,
		    operation_id = $2,
		    result_uri = $3,
		    attempts = $4,
		    error_kind = $5,
		    error_message = $6,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $7 AND status = $8
	`

	_, err := s.db.ExecContext(ctx, query,
		outcome.Status,
		outcome.OperationID,
		outcome.ResultURI,
		outcome.Attempts,
		outcome.ErrorKind,
		outcome.ErrorMessage,
		jobID,
		domain.JobStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("failed to finish job: %w", err)
	}

	s.logger.Info("Job status updated",
		slog.String("job_id", jobID),
		slog.String("status", outcome.Status),
	)

	return nil
}

// ReleaseJob returns a running job to PENDING so another delivery can pick it up
func (s *Storage) ReleaseJob(ctx context.Context, jobID string) error {
	query := `
		UPDATE video_jobs
		SET status = $1,
		    worker_id = NULL,
		    operation_id = '',
		    attempts = 0,
		    last_polled_at = NULL,
		    started_at = NULL,
		    updated_at = NOW()
		WHERE job_id = $2 AND status = $3
	`

	_, err := s.db.ExecContext(ctx, query, domain.JobStatusPending, jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to release job: %w", err)
	}

	s.logger.Info("Job released",
		slog.String("job_id", jobID),
	)

	return nil
}
