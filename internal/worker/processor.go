package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/videogen/internal/poller"
	"github.com/cuongbtq/videogen/internal/worker/domain"
)

// processJob claims a job, runs it against the vendor and stores the outcome.
// A nil return means the message can be acknowledged.
func (w *Worker) processJob(ctx context.Context, msg *domain.JobMessage) error {
	job, err := w.storage.ClaimJob(ctx, msg.JobID, w.workerID)
	if err != nil {
		if errors.Is(err, domain.ErrJobAlreadyClaimed) {
			return fmt.Errorf("job already claimed: %w", err)
		}
		// database errors are treated as transient
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	jobCtx := ctx
	if w.jobTimeout > 0 {
		var cancel context.CancelFunc
		jobCtx, cancel = context.WithTimeout(ctx, w.jobTimeout)
		defer cancel()
	}

	outcome := w.executeJob(jobCtx, job)

	if ctx.Err() != nil && outcome.Status != domain.JobStatusCompleted {
		// shutting down: hand the job back so it is started again from scratch
		return w.release(job.JobID, outcome)
	}

	// the outcome is stored even when the job deadline has passed
	finishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err := w.storage.FinishJob(finishCtx, job.JobID, outcome); err != nil {
		return domain.NewRetryableError(err)
	}

	w.logger.Info("Job finished",
		slog.String("job_id", job.JobID),
		slog.String("status", outcome.Status),
		slog.String("operation_id", outcome.OperationID),
		slog.Int("attempts", outcome.Attempts),
		slog.String("error_kind", outcome.ErrorKind),
	)

	return nil
}

// executeJob submits the job to the vendor and waits for the operation
func (w *Worker) executeJob(ctx context.Context, job *domain.Job) domain.Outcome {
	req := poller.Request{
		Prompt:         job.Prompt,
		AspectRatio:    job.AspectRatio,
		NegativePrompt: job.NegativePrompt,
		RequestID:      job.JobID,
	}

	pjob, err := w.generator.Submit(ctx, req)
	if err != nil {
		return failedOutcome(ctx, pjob, err)
	}

	uri, err := w.generator.AwaitCompletion(ctx, pjob, w.pollInterval, w.maxAttempts)
	if err != nil {
		return failedOutcome(ctx, pjob, err)
	}

	return domain.Outcome{
		Status:      domain.JobStatusCompleted,
		OperationID: pjob.ID,
		ResultURI:   uri,
		Attempts:    pjob.Attempts,
	}
}

// failedOutcome maps a poller error onto the stored job status. Only an
// exhausted attempt budget or the job's own deadline count as TIMED_OUT.
func failedOutcome(ctx context.Context, pjob *poller.Job, err error) domain.Outcome {
	outcome := domain.Outcome{
		Status:       domain.JobStatusFailed,
		ErrorKind:    poller.ErrorKind(err),
		ErrorMessage: err.Error(),
	}
	if pjob != nil {
		outcome.OperationID = pjob.ID
		outcome.Attempts = pjob.Attempts
	}

	var timeoutErr *poller.TimeoutError
	if errors.As(err, &timeoutErr) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		outcome.Status = domain.JobStatusTimedOut
		outcome.ErrorKind = poller.KindTimeout
	}

	return outcome
}

func (w *Worker) release(jobID string, outcome domain.Outcome) error {
	releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := w.storage.ReleaseJob(releaseCtx, jobID); err != nil {
		w.logger.Error("Failed to release job on shutdown",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
	}

	return domain.NewRetryableError(fmt.Errorf("job %s interrupted by shutdown: %s", jobID, outcome.ErrorMessage))
}
