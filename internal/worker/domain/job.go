package domain

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Job represents a video job claimed by a worker
type Job struct {
	JobID          string `db:"job_id"`
	Prompt         string `db:"prompt"`
	AspectRatio    string `db:"aspect_ratio"`
	NegativePrompt string `db:"negative_prompt"`
	Status         string `db:"status"`
	WorkerID       string `db:"worker_id"`
}

// Progress is the polling state recorded while a job runs
type Progress struct {
	OperationID  string
	Attempts     int
	LastPolledAt *time.Time
}

// Outcome is the terminal result written when a job finishes
type Outcome struct {
	Status       string
	OperationID  string
	ResultURI    string
	Attempts     int
	ErrorKind    string
	ErrorMessage string
}

// JobMessage represents a job message from RabbitMQ
type JobMessage struct {
	JobID    string        `json:"job_id"`
	Delivery amqp.Delivery `json:"-"`
}
