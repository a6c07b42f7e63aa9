package domain

import (
	"errors"
)

// Video job record statuses
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
	JobStatusTimedOut  = "TIMED_OUT"
)

// ErrorKindQueue marks a job that could not be handed to the worker queue
const ErrorKindQueue = "queue"

var (
	ErrJobNotFound = errors.New("job not found")
)

// IsValidStatus reports whether status is one of the record statuses
func IsValidStatus(status string) bool {
	switch status {
	case JobStatusPending, JobStatusRunning, JobStatusCompleted, JobStatusFailed, JobStatusTimedOut:
		return true
	}
	return false
}
