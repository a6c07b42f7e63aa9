package model

import "time"

type VideoJob struct {
	JobID          string     `db:"job_id"`
	IdempotencyKey string     `db:"idempotency_key"`
	Prompt         string     `db:"prompt"`
	AspectRatio    string     `db:"aspect_ratio"`
	NegativePrompt string     `db:"negative_prompt"`
	Status         string     `db:"status"`
	OperationID    string     `db:"operation_id"`
	ResultURI      string     `db:"result_uri"`
	Attempts       int        `db:"attempts"`
	ErrorKind      string     `db:"error_kind"`
	ErrorMessage   string     `db:"error_message"`
	CreatedAt      time.Time  `db:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at"`
	LastPolledAt   *time.Time `db:"last_polled_at"`
	CompletedAt    *time.Time `db:"completed_at"`
}
