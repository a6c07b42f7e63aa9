package dto

// GenerateVideoRequest is accepted as JSON or as a multipart/urlencoded form
type GenerateVideoRequest struct {
	Prompt         string `json:"prompt" form:"prompt"`
	AspectRatio    string `json:"aspect_ratio" form:"aspect_ratio"`
	NegativePrompt string `json:"negative_prompt" form:"negative_prompt"`
}

type CreateVideoJobRequest struct {
	IdempotencyKey string `json:"idempotency_key" form:"idempotency_key"`
	Prompt         string `json:"prompt" form:"prompt"`
	AspectRatio    string `json:"aspect_ratio" form:"aspect_ratio"`
	NegativePrompt string `json:"negative_prompt" form:"negative_prompt"`
}

type ListVideoJobsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListVideoJobsResponse struct {
	Jobs       []VideoJobDTO `json:"jobs"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

type VideoJobDTO struct {
	JobID          string `json:"job_id"`
	IdempotencyKey string `json:"idempotency_key"`
	Prompt         string `json:"prompt"`
	AspectRatio    string `json:"aspect_ratio,omitempty"`
	NegativePrompt string `json:"negative_prompt,omitempty"`
	Status         string `json:"status"`
	OperationID    string `json:"operation_id,omitempty"`
	Attempts       int    `json:"attempts"`
	ErrorKind      string `json:"error_kind,omitempty"`
	ErrorMessage   string `json:"error_message,omitempty"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
	LastPolledAt   string `json:"last_polled_at,omitempty"`
	CompletedAt    string `json:"completed_at,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}
