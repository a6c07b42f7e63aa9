package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/cuongbtq/videogen/internal/poller"
	"github.com/cuongbtq/videogen/internal/worker/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Broker delivers queued job messages
type Broker interface {
	Qos(prefetchCount int) error
	Consume(consumerTag string) (<-chan amqp.Delivery, error)
}

// JobStore persists worker-side job state
type JobStore interface {
	ClaimJob(ctx context.Context, jobID, workerID string) (*domain.Job, error)
	RecordProgress(ctx context.Context, jobID string, progress domain.Progress) error
	FinishJob(ctx context.Context, jobID string, outcome domain.Outcome) error
	ReleaseJob(ctx context.Context, jobID string) error
}

// Generator starts vendor operations and waits for them
type Generator interface {
	Submit(ctx context.Context, req poller.Request) (*poller.Job, error)
	AwaitCompletion(ctx context.Context, job *poller.Job, pollInterval time.Duration, maxAttempts int) (string, error)
}

// Config holds worker configuration
type Config struct {
	Logger        *slog.Logger
	Store         JobStore
	Broker        Broker
	Generator     Generator
	WorkerID      string
	Concurrency   int
	PrefetchCount int
	JobTimeout    time.Duration
	PollInterval  time.Duration
	MaxAttempts   int
}

// Worker consumes video jobs from the queue and drives them to completion
type Worker struct {
	logger        *slog.Logger
	storage       JobStore
	broker        Broker
	generator     Generator
	workerID      string
	concurrency   int
	prefetchCount int
	jobTimeout    time.Duration
	pollInterval  time.Duration
	maxAttempts   int
	jobsChan      chan *domain.JobMessage
	wg            sync.WaitGroup
	stopChan      chan struct{}
	stopOnce      sync.Once
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) (*Worker, error) {
	if cfg.Store == nil || cfg.Broker == nil || cfg.Generator == nil {
		return nil, errors.New("worker requires a store, a broker and a generator")
	}
	if cfg.Concurrency <= 0 {
		return nil, errors.New("worker concurrency must be positive")
	}

	prefetch := cfg.PrefetchCount
	if prefetch <= 0 {
		prefetch = cfg.Concurrency
	}

	return &Worker{
		logger:        cfg.Logger,
		storage:       cfg.Store,
		broker:        cfg.Broker,
		generator:     cfg.Generator,
		workerID:      cfg.WorkerID,
		concurrency:   cfg.Concurrency,
		prefetchCount: prefetch,
		jobTimeout:    cfg.JobTimeout,
		pollInterval:  cfg.PollInterval,
		maxAttempts:   cfg.MaxAttempts,
		jobsChan:      make(chan *domain.JobMessage),
		stopChan:      make(chan struct{}),
	}, nil
}

// Start subscribes to the queue, spawns the pool and blocks until ctx is canceled
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.String("worker_id", w.workerID),
		slog.Int("concurrency", w.concurrency),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	deliveries, err := w.setupConsumer()
	if err != nil {
		return err
	}

	w.spawnWorkerPool(ctx)

	dispatcherErr := make(chan error, 1)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		dispatcherErr <- w.startMessageDispatcher(ctx, deliveries)
	}()

	select {
	case <-ctx.Done():
		w.logger.Info("Worker context canceled, stopping...")
	case <-w.stopChan:
	case err := <-dispatcherErr:
		return err
	}

	return nil
}

// Stop signals the pool to stop and waits for in-flight jobs to be settled
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("Stopping worker...")
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// ProgressObserver returns a poller observer that records polling progress of
// worker jobs. Snapshots are matched to jobs through the request id.
func ProgressObserver(store JobStore, logger *slog.Logger) poller.Observer {
	return func(ctx context.Context, job poller.Job) {
		if job.Request.RequestID == "" || job.ID == "" {
			return
		}

		// a canceled poll still reports its last state
		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		progress := domain.Progress{
			OperationID: job.ID,
			Attempts:    job.Attempts,
		}
		if !job.LastPolledAt.IsZero() {
			polled := job.LastPolledAt.UTC()
			progress.LastPolledAt = &polled
		}

		if err := store.RecordProgress(writeCtx, job.Request.RequestID, progress); err != nil {
			logger.Warn("Failed to record job progress",
				slog.String("job_id", job.Request.RequestID),
				slog.String("operation_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
