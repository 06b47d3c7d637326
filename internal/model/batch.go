package model

import "time"

// BatchStartRequest starts processing for a list of documents with a bounded
// worker pool.
type BatchStartRequest struct {
	Documents   []BatchDocument `json:"documents" validate:"required,min=1,max=50,dive"`
	Concurrency int             `json:"concurrency" validate:"omitempty,min=1,max=10"`
	ChunkSize   int             `json:"chunkSize" validate:"omitempty,min=500,max=2000"`
	Overlap     int             `json:"overlap" validate:"omitempty,min=0,max=200"`
}

// BatchDocument is one entry of a batch request.
type BatchDocument struct {
	FileName   string `json:"fileName" validate:"required,max=255"`
	DocumentID string `json:"documentId" validate:"omitempty,uuid"`
	Text       string `json:"text" validate:"omitempty,max=5000000"`
}

// BatchStartResponse acknowledges a queued batch.
type BatchStartResponse struct {
	BatchID        string    `json:"batchId"`
	Status         JobStatus `json:"status"`
	TotalDocuments int       `json:"totalDocuments"`
	JobIDs         []string  `json:"jobIds"`
	CreatedAt      time.Time `json:"createdAt"`
}

// BatchStatusResponse is the polling view of a batch.
type BatchStatusResponse struct {
	BatchID             string           `json:"batchId"`
	Status              JobStatus        `json:"status"`
	TotalDocuments      int              `json:"totalDocuments"`
	SuccessfulDocuments int              `json:"successfulDocuments"`
	TotalClauses        int              `json:"totalClauses"`
	TotalVariants       int              `json:"totalVariants"`
	Documents           []DocumentResult `json:"documents"`
	CreatedAt           time.Time        `json:"createdAt"`
	CompletedAt         *time.Time       `json:"completedAt,omitempty"`
}
