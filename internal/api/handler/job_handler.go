package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/cuongbtq/videogen/internal/api/domain"
	"github.com/cuongbtq/videogen/internal/api/dto"
	"github.com/cuongbtq/videogen/internal/api/model"
	"github.com/cuongbtq/videogen/internal/api/storage"
	"github.com/cuongbtq/videogen/internal/poller"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// IdempotencyKeyHeader may carry the idempotency key instead of the body
const IdempotencyKeyHeader = "X-Idempotency-Key"

// CreateVideoJob handles POST /api/v1/video-jobs
// Stores a job record and queues it for a worker
func (h *VideoHandler) CreateVideoJob(c *gin.Context) {
	var req dto.CreateVideoJobRequest
	if err := h.bindIntake(c, &req); err != nil {
		h.logger.Warn("Invalid request body", slog.String("error", err.Error()))
		writeMessage(c, http.StatusBadRequest, poller.KindValidation, "Invalid request body")
		return
	}

	genReq := poller.Request{
		Prompt:         req.Prompt,
		AspectRatio:    req.AspectRatio,
		NegativePrompt: req.NegativePrompt,
	}
	if err := genReq.Validate(); err != nil {
		h.writeError(c, err)
		return
	}

	idempotencyKey := req.IdempotencyKey
	if idempotencyKey == "" {
		idempotencyKey = c.GetHeader(IdempotencyKeyHeader)
	}

	now := time.Now().UTC()
	job := &model.VideoJob{
		JobID:          uuid.New().String(),
		IdempotencyKey: idempotencyKey,
		Prompt:         req.Prompt,
		AspectRatio:    req.AspectRatio,
		NegativePrompt: req.NegativePrompt,
		Status:         domain.JobStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if job.IdempotencyKey == "" {
		job.IdempotencyKey = job.JobID
	}

	stored, created, err := h.store.CreateJob(c.Request.Context(), job)
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		writeMessage(c, http.StatusInternalServerError, poller.KindInternal, "Failed to create job")
		return
	}

	if !created {
		h.logger.Info("Idempotent replay of video job",
			slog.String("job_id", stored.JobID),
			slog.String("idempotency_key", stored.IdempotencyKey),
		)
		c.JSON(http.StatusOK, toJobDTO(stored))
		return
	}

	body, _ := json.Marshal(map[string]string{"job_id": stored.JobID})
	if err := h.publisher.PublishWithRetry(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Error("Failed to queue job",
			slog.String("job_id", stored.JobID),
			slog.String("error", err.Error()),
		)
		if markErr := h.store.MarkJobFailed(c.Request.Context(), stored.JobID, domain.ErrorKindQueue, err.Error()); markErr != nil {
			h.logger.Error("Failed to mark unqueued job as failed",
				slog.String("job_id", stored.JobID),
				slog.String("error", markErr.Error()),
			)
		}
		writeMessage(c, http.StatusServiceUnavailable, domain.ErrorKindQueue, "Failed to queue job")
		return
	}

	h.logger.Info("Video job queued", slog.String("job_id", stored.JobID))

	c.Header("Location", "/api/v1/video-jobs/"+stored.JobID)
	c.JSON(http.StatusAccepted, toJobDTO(stored))
}

// GetVideoJob handles GET /api/v1/video-jobs/:job_id
func (h *VideoHandler) GetVideoJob(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// GetVideoJobContent handles GET /api/v1/video-jobs/:job_id/content
// Streams the media of a completed job
func (h *VideoHandler) GetVideoJobContent(c *gin.Context) {
	job, ok := h.loadJob(c)
	if !ok {
		return
	}

	if job.Status != domain.JobStatusCompleted {
		c.JSON(http.StatusConflict, gin.H{
			"error":  dto.ErrorBody{Kind: "not_ready", Message: "job has no content in status " + job.Status},
			"status": job.Status,
		})
		return
	}

	artifact, err := h.generator.FetchArtifact(c.Request.Context(), job.ResultURI)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Header("X-Operation-Id", job.OperationID)
	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}

// ListVideoJobs handles GET /api/v1/video-jobs
// Lists jobs with optional status filter and cursor pagination
func (h *VideoHandler) ListVideoJobs(c *gin.Context) {
	var req dto.ListVideoJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Warn("Invalid query parameters", slog.String("error", err.Error()))
		writeMessage(c, http.StatusBadRequest, poller.KindValidation, "Invalid query parameters")
		return
	}

	req.Status = strings.ToUpper(req.Status)
	if req.Status != "" && !domain.IsValidStatus(req.Status) {
		writeMessage(c, http.StatusBadRequest, poller.KindValidation, "Invalid status filter")
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Warn("Invalid cursor", slog.String("error", err.Error()))
		writeMessage(c, http.StatusBadRequest, poller.KindValidation, "Invalid cursor")
		return
	}

	jobs, err := h.store.ListJobs(c.Request.Context(), storage.JobFilter{
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		writeMessage(c, http.StatusInternalServerError, poller.KindInternal, "Failed to list jobs")
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListVideoJobsResponse{Jobs: make([]dto.VideoJobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

func (h *VideoHandler) loadJob(c *gin.Context) (*model.VideoJob, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		writeMessage(c, http.StatusBadRequest, poller.KindValidation, "job_id must be a valid UUID")
		return nil, false
	}

	job, err := h.store.GetJobByID(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			writeMessage(c, http.StatusNotFound, "not_found", "Job not found")
			return nil, false
		}
		h.logger.Error("Failed to get job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		writeMessage(c, http.StatusInternalServerError, poller.KindInternal, "Failed to get job")
		return nil, false
	}

	return job, true
}

func toJobDTO(job *model.VideoJob) dto.VideoJobDTO {
	out := dto.VideoJobDTO{
		JobID:          job.JobID,
		IdempotencyKey: job.IdempotencyKey,
		Prompt:         job.Prompt,
		AspectRatio:    job.AspectRatio,
		NegativePrompt: job.NegativePrompt,
		Status:         job.Status,
		OperationID:    job.OperationID,
		Attempts:       job.Attempts,
		ErrorKind:      job.ErrorKind,
		ErrorMessage:   job.ErrorMessage,
		CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      job.UpdatedAt.Format(time.RFC3339),
	}
	if job.LastPolledAt != nil {
		out.LastPolledAt = job.LastPolledAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		out.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return out
}
