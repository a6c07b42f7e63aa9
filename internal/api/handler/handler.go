package handler

import (
	"context"
	"log/slog"

	"github.com/cuongbtq/videogen/internal/api/model"
	"github.com/cuongbtq/videogen/internal/api/storage"
	"github.com/cuongbtq/videogen/internal/poller"
)

// Generator runs video generations against the vendor
type Generator interface {
	Run(ctx context.Context, req poller.Request) (*poller.Job, *poller.Artifact, error)
	FetchArtifact(ctx context.Context, uri string) (*poller.Artifact, error)
}

// JobStore persists asynchronous video job records
type JobStore interface {
	CreateJob(ctx context.Context, job *model.VideoJob) (*model.VideoJob, bool, error)
	GetJobByID(ctx context.Context, jobID string) (*model.VideoJob, error)
	ListJobs(ctx context.Context, filter storage.JobFilter) ([]model.VideoJob, error)
	MarkJobFailed(ctx context.Context, jobID, errorKind, errorMessage string) error
}

// Publisher hands job ids to the worker queue
type Publisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// HealthChecker reports whether a backing service is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger         *slog.Logger
	Generator      Generator
	Store          JobStore
	Publisher      Publisher
	DB             HealthChecker
	MaxUploadBytes int64
}

// VideoHandler handles video generation HTTP requests
type VideoHandler struct {
	logger         *slog.Logger
	generator      Generator
	store          JobStore
	publisher      Publisher
	maxUploadBytes int64
}

// NewVideoHandler creates a new VideoHandler instance
func NewVideoHandler(deps *Dependencies) *VideoHandler {
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 32 << 20
	}

	return &VideoHandler{
		logger:         deps.Logger,
		generator:      deps.Generator,
		store:          deps.Store,
		publisher:      deps.Publisher,
		maxUploadBytes: maxUpload,
	}
}
