package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

const (
	// DefaultPollInterval is the delay before every status check
	DefaultPollInterval = 10 * time.Second

	// DefaultMaxAttempts bounds the number of status checks for one job
	DefaultMaxAttempts = 60
)

// OperationClient is the vendor long-running-operation API
type OperationClient interface {
	StartOperation(ctx context.Context, req Request) (string, error)
	GetOperation(ctx context.Context, name string) (*Operation, error)
	Download(ctx context.Context, uri string) (*Artifact, error)
}

// Observer receives a snapshot of a job after every status change and after
// every status check. It runs on the poll loop and must not block for long.
type Observer func(ctx context.Context, job Job)

// Config holds poller configuration
type Config struct {
	Client OperationClient
	Logger *slog.Logger
	Clock  Clock

	// Observer is optional
	Observer Observer

	APIKey       string
	Endpoint     string
	Model        string
	PollInterval time.Duration
	MaxAttempts  int
	RetryPolicy  RetryPolicy
}

// Poller drives submit, poll and fetch against the vendor for independent jobs.
// It holds no per-job state, so one Poller serves any number of concurrent jobs.
type Poller struct {
	client       OperationClient
	logger       *slog.Logger
	clock        Clock
	observer     Observer
	apiKey       string
	endpoint     string
	model        string
	pollInterval time.Duration
	maxAttempts  int
	retryPolicy  RetryPolicy
}

// New creates a Poller. Missing credentials are reported here, before any
// job can be submitted.
func New(cfg *Config) (*Poller, error) {
	if err := checkCredentials(cfg.APIKey, cfg.Endpoint, cfg.Model); err != nil {
		return nil, err
	}
	if cfg.Client == nil {
		return nil, fmt.Errorf("poller requires an operation client")
	}

	p := &Poller{
		client:       cfg.Client,
		logger:       cfg.Logger,
		clock:        cfg.Clock,
		observer:     cfg.Observer,
		apiKey:       cfg.APIKey,
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		pollInterval: cfg.PollInterval,
		maxAttempts:  cfg.MaxAttempts,
		retryPolicy:  cfg.RetryPolicy,
	}

	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.clock == nil {
		p.clock = RealClock()
	}
	if p.pollInterval <= 0 {
		p.pollInterval = DefaultPollInterval
	}
	if p.maxAttempts <= 0 {
		p.maxAttempts = DefaultMaxAttempts
	}
	if p.retryPolicy == "" {
		p.retryPolicy = RetryAll
	}

	return p, nil
}

func checkCredentials(apiKey, endpoint, model string) error {
	switch {
	case apiKey == "":
		return NewConfigurationError("api_key")
	case endpoint == "":
		return NewConfigurationError("endpoint")
	case model == "":
		return NewConfigurationError("model")
	}
	return nil
}

// Submit validates req and starts a vendor operation for it.
// On a rejected start call the returned job is already Failed.
func (p *Poller) Submit(ctx context.Context, req Request) (*Job, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := checkCredentials(p.apiKey, p.endpoint, p.model); err != nil {
		return nil, err
	}

	job := &Job{
		Status:    StatusSubmitted,
		Request:   req,
		CreatedAt: p.clock.Now(),
	}

	operationID, err := p.client.StartOperation(ctx, req)
	if err != nil {
		err = transportFailure(ctx, "start", err)
	} else if operationID == "" {
		err = &ProtocolError{Reason: "start operation response has no operation name"}
	}
	if err != nil {
		p.setStatus(ctx, job, StatusFailed)
		p.logFailure("Failed to start video operation", job, err)
		return job, err
	}

	job.ID = operationID
	p.setStatus(ctx, job, StatusPolling)

	p.logger.Info("Video operation started",
		slog.String("operation_id", job.ID),
		slog.String("request_id", req.RequestID),
		slog.String("model", p.model),
	)

	return job, nil
}

// AwaitCompletion polls the job's operation until it finishes, fails or runs
// out of attempts, and returns the artifact reference on success.
// Zero pollInterval or maxAttempts fall back to the poller configuration.
func (p *Poller) AwaitCompletion(ctx context.Context, job *Job, pollInterval time.Duration, maxAttempts int) (string, error) {
	if job.Status.IsTerminal() {
		return "", fmt.Errorf("%w: job %q is %s", ErrTerminalState, job.ID, job.Status)
	}
	if job.Status != StatusPolling {
		return "", fmt.Errorf("job %q has not been submitted", job.ID)
	}
	if pollInterval <= 0 {
		pollInterval = p.pollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = p.maxAttempts
	}

	for job.Attempts < maxAttempts {
		select {
		case <-ctx.Done():
			return "", p.fail(ctx, job, ctx.Err())
		case <-p.clock.After(pollInterval):
		}

		job.Attempts++
		job.LastPolledAt = p.clock.Now()

		op, err := p.client.GetOperation(ctx, job.ID)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return "", p.fail(ctx, job, ctxErr)
			}
			err = transportFailure(ctx, "status check", err)
			if !p.retryPolicy.ShouldRetry(err) {
				return "", p.fail(ctx, job, err)
			}
			p.logger.Warn("Status check failed, will retry",
				slog.String("operation_id", job.ID),
				slog.Int("attempt", job.Attempts),
				slog.Int("max_attempts", maxAttempts),
				slog.String("error", err.Error()),
			)
			p.setStatus(ctx, job, StatusPolling)
			continue
		}

		if !op.Done {
			p.logger.Debug("Video operation still running",
				slog.String("operation_id", job.ID),
				slog.Int("attempt", job.Attempts),
			)
			p.setStatus(ctx, job, StatusPolling)
			continue
		}

		switch {
		case op.VideoURI != "":
			job.ResultReference = op.VideoURI
			p.setStatus(ctx, job, StatusDone)
			p.logger.Info("Video operation completed",
				slog.String("operation_id", job.ID),
				slog.Int("attempts", job.Attempts),
			)
			return job.ResultReference, nil
		case op.Error != nil:
			return "", p.fail(ctx, job, &VendorOperationError{OperationID: job.ID, Detail: *op.Error})
		default:
			return "", p.fail(ctx, job, &ProtocolError{Reason: "operation reported done with neither a result nor an error"})
		}
	}

	p.setStatus(ctx, job, StatusTimedOut)
	err := &TimeoutError{OperationID: job.ID, Attempts: job.Attempts}
	p.logFailure("Video operation timed out", job, err)
	return "", err
}

// FetchArtifact downloads the media behind a finished job's reference
func (p *Poller) FetchArtifact(ctx context.Context, uri string) (*Artifact, error) {
	if uri == "" {
		return nil, &ValidationError{Field: "artifact reference", Err: errors.New("reference is empty")}
	}

	artifact, err := p.client.Download(ctx, uri)
	if err != nil {
		err = transportFailure(ctx, "artifact fetch", err)
		p.logger.Error("Failed to fetch artifact",
			slog.String("uri", uri),
			slog.String("error_kind", ErrorKind(err)),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	return artifact, nil
}

// Run submits req, waits for it with the configured bounds and fetches the
// finished media. The job is returned whenever one was created.
func (p *Poller) Run(ctx context.Context, req Request) (*Job, *Artifact, error) {
	job, err := p.Submit(ctx, req)
	if err != nil {
		return job, nil, err
	}

	uri, err := p.AwaitCompletion(ctx, job, 0, 0)
	if err != nil {
		return job, nil, err
	}

	artifact, err := p.FetchArtifact(ctx, uri)
	if err != nil {
		return job, nil, err
	}

	return job, artifact, nil
}

// PollInterval returns the configured delay between status checks
func (p *Poller) PollInterval() time.Duration {
	return p.pollInterval
}

// MaxAttempts returns the configured attempt bound
func (p *Poller) MaxAttempts() int {
	return p.maxAttempts
}

func (p *Poller) fail(ctx context.Context, job *Job, err error) error {
	p.setStatus(ctx, job, StatusFailed)
	p.logFailure("Video operation failed", job, err)
	return err
}

// setStatus applies a transition and notifies the observer. Illegal edges are
// programming errors in this package and are logged instead of applied.
func (p *Poller) setStatus(ctx context.Context, job *Job, next Status) {
	if err := job.transition(next); err != nil {
		p.logger.Error("Rejected job transition",
			slog.String("operation_id", job.ID),
			slog.String("error", err.Error()),
		)
		return
	}
	if p.observer != nil {
		p.observer(ctx, *job)
	}
}

func (p *Poller) logFailure(msg string, job *Job, err error) {
	kind := ErrorKind(err)
	level := slog.LevelWarn
	if kind == KindProtocol || kind == KindInternal {
		level = slog.LevelError
	}
	p.logger.Log(context.Background(), level, msg,
		slog.String("operation_id", job.ID),
		slog.String("request_id", job.Request.RequestID),
		slog.String("status", string(job.Status)),
		slog.Int("attempts", job.Attempts),
		slog.String("error_kind", kind),
		slog.String("error", err.Error()),
	)
}
