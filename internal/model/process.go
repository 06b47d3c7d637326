package model

import "time"

// ProcessStartRequest starts a single-document processing job. Either a
// previously uploaded document or inline text must be supplied.
type ProcessStartRequest struct {
	FileName   string `json:"fileName" validate:"required,max=255"`
	DocumentID string `json:"documentId" validate:"omitempty,uuid"`
	Text       string `json:"text" validate:"omitempty,max=5000000"`
	ChunkSize  int    `json:"chunkSize" validate:"omitempty,min=500,max=2000"`
	Overlap    int    `json:"overlap" validate:"omitempty,min=0,max=200"`
}

// ProcessStartResponse acknowledges a queued job.
type ProcessStartResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProcessStatusResponse is the polling view of a job. IsActive is derived on
// every read, never stored.
type ProcessStatusResponse struct {
	JobID            string     `json:"jobId"`
	FileName         string     `json:"fileName"`
	Status           JobStatus  `json:"status"`
	ProcessedChunks  int        `json:"processedChunks"`
	TotalChunks      int        `json:"totalChunks"`
	FailedChunks     int        `json:"failedChunks"`
	Progress         int        `json:"progress"`
	IsActive         bool       `json:"isActive"`
	CreditsUsed      int        `json:"creditsUsed"`
	CreditsRemaining int        `json:"creditsRemaining"`
	Result           *JobResult `json:"result,omitempty"`
	ErrorMessage     string     `json:"errorMessage,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	CompletedAt      *time.Time `json:"completedAt,omitempty"`
}

// UpdateStatusRequest is the external status update body. Identification is
// by jobId or fileName; at least one must be present.
type UpdateStatusRequest struct {
	JobID            string     `json:"jobId" validate:"omitempty,uuid"`
	FileName         string     `json:"fileName" validate:"omitempty,max=255"`
	Status           JobStatus  `json:"status" validate:"omitempty,oneof=uploading processing complete error cancelled"`
	ProcessedChunks  *int       `json:"processedChunks" validate:"omitempty,min=0"`
	TotalChunks      *int       `json:"totalChunks" validate:"omitempty,min=0"`
	CreditsUsed      *int       `json:"creditsUsed" validate:"omitempty,min=0"`
	CreditsRemaining *int       `json:"creditsRemaining" validate:"omitempty,min=0"`
	Result           *JobResult `json:"result"`
	ErrorMessage     string     `json:"errorMessage"`
}

// UpdateStatusResponse acknowledges an external status update.
type UpdateStatusResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

// CancelResponse acknowledges a cancellation. Cancel is idempotent, so
// Success is true even when the job was already terminal.
type CancelResponse struct {
	Success bool      `json:"success"`
	JobID   string    `json:"jobId"`
	Status  JobStatus `json:"status"`
}
