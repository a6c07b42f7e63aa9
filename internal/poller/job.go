package poller

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a generation job
type Status string

// Job status constants
const (
	StatusSubmitted Status = "SUBMITTED"
	StatusPolling   Status = "POLLING"
	StatusDone      Status = "DONE"
	StatusFailed    Status = "FAILED"
	StatusTimedOut  Status = "TIMED_OUT"
)

// allowedTransitions lists every edge of the job state machine.
// Terminal states have no outgoing edges.
var allowedTransitions = map[Status][]Status{
	StatusSubmitted: {StatusPolling, StatusFailed},
	StatusPolling:   {StatusPolling, StatusDone, StatusFailed, StatusTimedOut},
}

// IsTerminal reports whether no further transition can leave the status
func (s Status) IsTerminal() bool {
	return s == StatusDone || s == StatusFailed || s == StatusTimedOut
}

// CanTransition reports whether the state machine has an edge from s to next
func (s Status) CanTransition(next Status) bool {
	for _, to := range allowedTransitions[s] {
		if to == next {
			return true
		}
	}
	return false
}

// Request is the caller input for one video generation
type Request struct {
	Prompt         string
	AspectRatio    string
	NegativePrompt string

	// RequestID is an optional caller correlation id echoed back to observers.
	RequestID string
}

// Validate checks the request before anything is sent to the vendor
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return &ValidationError{Field: "prompt", Err: ErrEmptyPrompt}
	}
	return nil
}

// Job tracks one asynchronous generation request against the vendor.
// It is mutated only by the Poller that created it.
type Job struct {
	ID              string
	Status          Status
	Request         Request
	ResultReference string
	Attempts        int
	CreatedAt       time.Time
	LastPolledAt    time.Time
}

// transition moves the job along one state machine edge
func (j *Job) transition(next Status) error {
	if j.Status.IsTerminal() {
		return fmt.Errorf("%w: job %q is %s", ErrTerminalState, j.ID, j.Status)
	}
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("invalid job transition %s -> %s", j.Status, next)
	}
	j.Status = next
	return nil
}

// Operation is the vendor's view of a long-running operation
type Operation struct {
	Name     string
	Done     bool
	VideoURI string
	Error    *OperationError
}

// OperationError is the error payload a vendor attaches to a finished operation
type OperationError struct {
	Code    int
	Status  string
	Message string
}

// Artifact is the binary media produced by a finished job
type Artifact struct {
	Data        []byte
	ContentType string
}
