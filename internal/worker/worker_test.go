package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/cuongbtq/videogen/internal/poller"
	"github.com/cuongbtq/videogen/internal/worker/domain"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// settlement is one Ack or Nack observed on a delivery
type settlement struct {
	tag     uint64
	ack     bool
	requeue bool
}

type recordingAcker struct {
	settled chan settlement
}

func newRecordingAcker() *recordingAcker {
	return &recordingAcker{settled: make(chan settlement, 16)}
}

func (a *recordingAcker) Ack(tag uint64, _ bool) error {
	a.settled <- settlement{tag: tag, ack: true}
	return nil
}

func (a *recordingAcker) Nack(tag uint64, _ bool, requeue bool) error {
	a.settled <- settlement{tag: tag, requeue: requeue}
	return nil
}

func (a *recordingAcker) Reject(tag uint64, requeue bool) error {
	a.settled <- settlement{tag: tag, requeue: requeue}
	return nil
}

func (a *recordingAcker) next(t *testing.T) settlement {
	t.Helper()
	select {
	case s := <-a.settled:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("delivery was never settled")
		return settlement{}
	}
}

type fakeBroker struct {
	deliveries chan amqp.Delivery
	prefetch   int
}

func (b *fakeBroker) Qos(prefetchCount int) error {
	b.prefetch = prefetchCount
	return nil
}

func (b *fakeBroker) Consume(string) (<-chan amqp.Delivery, error) {
	return b.deliveries, nil
}

// memoryStore keeps job rows in memory with the same status guards as the database
type memoryStore struct {
	mu       sync.Mutex
	jobs     map[string]*domain.Job
	progress map[string][]domain.Progress
	outcomes map[string]domain.Outcome
	released []string
	claimErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		jobs:     make(map[string]*domain.Job),
		progress: make(map[string][]domain.Progress),
		outcomes: make(map[string]domain.Outcome),
	}
}

func (s *memoryStore) add(prompt string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	s.jobs[id] = &domain.Job{JobID: id, Prompt: prompt, Status: domain.JobStatusPending}
	return id
}

func (s *memoryStore) ClaimJob(_ context.Context, jobID, workerID string) (*domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claimErr != nil {
		return nil, s.claimErr
	}
	job, ok := s.jobs[jobID]
	if !ok || job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobAlreadyClaimed
	}
	job.Status = domain.JobStatusRunning
	job.WorkerID = workerID
	claimed := *job
	return &claimed, nil
}

func (s *memoryStore) RecordProgress(_ context.Context, jobID string, progress domain.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.progress[jobID] = append(s.progress[jobID], progress)
	return nil
}

func (s *memoryStore) FinishJob(_ context.Context, jobID string, outcome domain.Outcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[jobID].Status = outcome.Status
	s.outcomes[jobID] = outcome
	return nil
}

func (s *memoryStore) ReleaseJob(_ context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs[jobID].Status = domain.JobStatusPending
	s.released = append(s.released, jobID)
	return nil
}

func (s *memoryStore) outcome(jobID string) (domain.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.outcomes[jobID]
	return o, ok
}

type mockGenerator struct {
	mock.Mock
}

func (m *mockGenerator) Submit(ctx context.Context, req poller.Request) (*poller.Job, error) {
	args := m.Called(ctx, req)
	job, _ := args.Get(0).(*poller.Job)
	return job, args.Error(1)
}

func (m *mockGenerator) AwaitCompletion(ctx context.Context, job *poller.Job, pollInterval time.Duration, maxAttempts int) (string, error) {
	args := m.Called(ctx, job, pollInterval, maxAttempts)
	return args.String(0), args.Error(1)
}

// scriptedClient reports "not done" a fixed number of times before finishing
type scriptedClient struct {
	mu         sync.Mutex
	pending    int
	videoURI   string
	opError    *poller.OperationError
	startCalls int
}

func (c *scriptedClient) StartOperation(context.Context, poller.Request) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.startCalls++
	return "operations/op-1", nil
}

func (c *scriptedClient) GetOperation(_ context.Context, name string) (*poller.Operation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending > 0 {
		c.pending--
		return &poller.Operation{Name: name}, nil
	}
	return &poller.Operation{Name: name, Done: true, VideoURI: c.videoURI, Error: c.opError}, nil
}

func (c *scriptedClient) Download(context.Context, string) (*poller.Artifact, error) {
	return nil, errors.New("not used by the worker")
}

func newTestWorker(t *testing.T, store JobStore, generator Generator, broker Broker) *Worker {
	t.Helper()
	w, err := NewWorker(&Config{
		Logger:       discardLogger(),
		Store:        store,
		Broker:       broker,
		Generator:    generator,
		WorkerID:     "worker-test",
		Concurrency:  2,
		JobTimeout:   5 * time.Second,
		PollInterval: time.Millisecond,
		MaxAttempts:  5,
	})
	require.NoError(t, err)
	return w
}

func delivery(acker amqp.Acknowledger, tag uint64, body string) amqp.Delivery {
	return amqp.Delivery{Acknowledger: acker, DeliveryTag: tag, Body: []byte(body)}
}

func TestNewWorker_Validation(t *testing.T) {
	_, err := NewWorker(&Config{Logger: discardLogger(), Concurrency: 1})
	assert.Error(t, err)

	_, err = NewWorker(&Config{
		Logger:    discardLogger(),
		Store:     newMemoryStore(),
		Broker:    &fakeBroker{},
		Generator: &mockGenerator{},
	})
	assert.Error(t, err)
}

func TestWorker_ProcessesJobEndToEnd(t *testing.T) {
	store := newMemoryStore()
	jobID := store.add("a cat surfing")

	client := &scriptedClient{pending: 2, videoURI: "https://files.example/v.mp4"}
	p, err := poller.New(&poller.Config{
		Client:   client,
		Logger:   discardLogger(),
		Observer: ProgressObserver(store, discardLogger()),
		APIKey:   "key",
		Endpoint: "https://vendor.example",
		Model:    "veo-test",
	})
	require.NoError(t, err)

	broker := &fakeBroker{deliveries: make(chan amqp.Delivery, 1)}
	w := newTestWorker(t, store, p, broker)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	acker := newRecordingAcker()
	broker.deliveries <- delivery(acker, 7, `{"job_id":"`+jobID+`"}`)

	s := acker.next(t)
	assert.True(t, s.ack)
	assert.Equal(t, uint64(7), s.tag)

	cancel()
	require.NoError(t, <-done)
	w.Stop()

	assert.Equal(t, 2, broker.prefetch)

	outcome, ok := store.outcome(jobID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusCompleted, outcome.Status)
	assert.Equal(t, "operations/op-1", outcome.OperationID)
	assert.Equal(t, "https://files.example/v.mp4", outcome.ResultURI)
	assert.Equal(t, 3, outcome.Attempts)
	assert.Equal(t, 1, client.startCalls)

	store.mu.Lock()
	progress := store.progress[jobID]
	store.mu.Unlock()
	require.NotEmpty(t, progress)
	assert.Equal(t, "operations/op-1", progress[len(progress)-1].OperationID)
	assert.Equal(t, 3, progress[len(progress)-1].Attempts)
	assert.NotNil(t, progress[len(progress)-1].LastPolledAt)
}

func TestWorker_RejectsMalformedMessages(t *testing.T) {
	broker := &fakeBroker{deliveries: make(chan amqp.Delivery, 2)}
	generator := &mockGenerator{}
	w := newTestWorker(t, newMemoryStore(), generator, broker)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = w.Start(ctx) }()

	acker := newRecordingAcker()
	broker.deliveries <- delivery(acker, 1, `not json`)
	broker.deliveries <- delivery(acker, 2, `{"job_id":"not-a-uuid"}`)

	for i := 0; i < 2; i++ {
		s := acker.next(t)
		assert.False(t, s.ack)
		assert.False(t, s.requeue)
	}

	cancel()
	w.Stop()
	generator.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestProcessJob_Outcomes(t *testing.T) {
	tests := []struct {
		name       string
		submitErr  error
		awaitURI   string
		awaitErr   error
		wantStatus string
		wantKind   string
	}{
		{
			name:       "completed",
			awaitURI:   "https://files.example/v.mp4",
			wantStatus: domain.JobStatusCompleted,
		},
		{
			name:       "vendor rejects start",
			submitErr:  &poller.VendorError{Op: "start", StatusCode: 400, Body: "bad prompt"},
			wantStatus: domain.JobStatusFailed,
			wantKind:   poller.KindVendor,
		},
		{
			name: "operation failed",
			awaitErr: &poller.VendorOperationError{
				OperationID: "operations/op-1",
				Detail:      poller.OperationError{Code: 3, Message: "unsafe"},
			},
			wantStatus: domain.JobStatusFailed,
			wantKind:   poller.KindVendorOperation,
		},
		{
			name:       "attempts exhausted",
			awaitErr:   &poller.TimeoutError{OperationID: "operations/op-1", Attempts: 5},
			wantStatus: domain.JobStatusTimedOut,
			wantKind:   poller.KindTimeout,
		},
		{
			name: "vendor call timed out on start",
			submitErr: &poller.TransportError{
				Op:  "start",
				Err: fmt.Errorf("awaiting headers: %w", context.DeadlineExceeded),
			},
			wantStatus: domain.JobStatusFailed,
			wantKind:   poller.KindVendor,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemoryStore()
			jobID := store.add("prompt")
			generator := &mockGenerator{}
			w := newTestWorker(t, store, generator, &fakeBroker{})

			pjob := &poller.Job{ID: "operations/op-1", Status: poller.StatusPolling, Attempts: 2}
			if tt.submitErr != nil {
				generator.On("Submit", mock.Anything, mock.Anything).
					Return(&poller.Job{Status: poller.StatusFailed}, tt.submitErr)
			} else {
				generator.On("Submit", mock.Anything, poller.Request{Prompt: "prompt", RequestID: jobID}).
					Return(pjob, nil)
				generator.On("AwaitCompletion", mock.Anything, pjob, time.Millisecond, 5).
					Return(tt.awaitURI, tt.awaitErr)
			}

			err := w.processJob(context.Background(), &domain.JobMessage{JobID: jobID})
			require.NoError(t, err)
			generator.AssertExpectations(t)

			outcome, ok := store.outcome(jobID)
			require.True(t, ok)
			assert.Equal(t, tt.wantStatus, outcome.Status)
			assert.Equal(t, tt.wantKind, outcome.ErrorKind)
			if tt.wantStatus == domain.JobStatusCompleted {
				assert.Equal(t, tt.awaitURI, outcome.ResultURI)
				assert.Empty(t, outcome.ErrorMessage)
			} else {
				assert.NotEmpty(t, outcome.ErrorMessage)
			}
		})
	}
}

func TestProcessJob_JobDeadlineTimesOut(t *testing.T) {
	store := newMemoryStore()
	jobID := store.add("prompt")
	generator := &mockGenerator{}
	w := newTestWorker(t, store, generator, &fakeBroker{})
	w.jobTimeout = 20 * time.Millisecond

	pjob := &poller.Job{ID: "operations/op-1", Status: poller.StatusPolling, Attempts: 1}
	generator.On("Submit", mock.Anything, mock.Anything).Return(pjob, nil)
	generator.On("AwaitCompletion", mock.Anything, pjob, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return("", context.DeadlineExceeded)

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: jobID})
	require.NoError(t, err)

	outcome, ok := store.outcome(jobID)
	require.True(t, ok)
	assert.Equal(t, domain.JobStatusTimedOut, outcome.Status)
	assert.Equal(t, poller.KindTimeout, outcome.ErrorKind)
	assert.Equal(t, "operations/op-1", outcome.OperationID)
}

func TestProcessJob_AlreadyClaimed(t *testing.T) {
	store := newMemoryStore()
	generator := &mockGenerator{}
	w := newTestWorker(t, store, generator, &fakeBroker{})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: uuid.NewString()})

	require.ErrorIs(t, err, domain.ErrJobAlreadyClaimed)
	assert.False(t, shouldRequeueJob(err))
	generator.AssertNotCalled(t, "Submit", mock.Anything, mock.Anything)
}

func TestProcessJob_ClaimFailureIsRetryable(t *testing.T) {
	store := newMemoryStore()
	store.claimErr = errors.New("connection reset")
	w := newTestWorker(t, store, &mockGenerator{}, &fakeBroker{})

	err := w.processJob(context.Background(), &domain.JobMessage{JobID: uuid.NewString()})

	require.Error(t, err)
	assert.True(t, shouldRequeueJob(err))
}

func TestProcessJob_ShutdownReleasesJob(t *testing.T) {
	store := newMemoryStore()
	jobID := store.add("prompt")
	generator := &mockGenerator{}
	w := newTestWorker(t, store, generator, &fakeBroker{})

	ctx, cancel := context.WithCancel(context.Background())
	pjob := &poller.Job{ID: "operations/op-1", Status: poller.StatusPolling}

	generator.On("Submit", mock.Anything, mock.Anything).Return(pjob, nil)
	generator.On("AwaitCompletion", mock.Anything, pjob, mock.Anything, mock.Anything).
		Run(func(mock.Arguments) { cancel() }).
		Return("", context.Canceled)

	err := w.processJob(ctx, &domain.JobMessage{JobID: jobID})

	require.Error(t, err)
	assert.True(t, shouldRequeueJob(err))

	_, finished := store.outcome(jobID)
	assert.False(t, finished)
	assert.Equal(t, []string{jobID}, store.released)
	assert.Equal(t, domain.JobStatusPending, store.jobs[jobID].Status)
}

func TestProgressObserver_IgnoresUnsubmittedJobs(t *testing.T) {
	store := newMemoryStore()
	observe := ProgressObserver(store, discardLogger())

	observe(context.Background(), poller.Job{Status: poller.StatusFailed, Request: poller.Request{RequestID: "job-1"}})
	observe(context.Background(), poller.Job{ID: "operations/op-1", Status: poller.StatusPolling})

	assert.Empty(t, store.progress)
}
