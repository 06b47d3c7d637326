package model

import "time"

// ProcessingJob is the authoritative record of one document processing job.
// The durable store owns it; everything else (cache, HTTP responses) is a
// projection of this struct.
type ProcessingJob struct {
	ID                 string     `json:"id"`
	UserID             string     `json:"userId"`
	FileName           string     `json:"fileName"`
	DocumentID         string     `json:"documentId,omitempty"`
	BatchID            string     `json:"batchId,omitempty"`
	Status             JobStatus  `json:"status"`
	ProcessedChunks    int        `json:"processedChunks"`
	TotalChunks        int        `json:"totalChunks"`
	FailedChunks       int        `json:"failedChunks"`
	Progress           int        `json:"progress"`
	LastProgressChange time.Time  `json:"lastProgressChange"`
	CreditsUsed        int        `json:"creditsUsed"`
	CreditsRemaining   int        `json:"creditsRemaining"`
	Result             *JobResult `json:"result,omitempty"`
	ErrorMessage       string     `json:"errorMessage,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	CompletedAt        *time.Time `json:"completedAt,omitempty"`
}

// JobResult references the assembled output artifact. Populated only when
// Status == complete.
type JobResult struct {
	FileName   string                 `json:"fileName"`
	FileURL    string                 `json:"fileUrl,omitempty"`
	EntryCount int                    `json:"entryCount"`
	Counts     map[Classification]int `json:"counts,omitempty"`
}

// JobPatch is a field-wise partial update to a ProcessingJob. Nil fields are
// left untouched; the store applies last-write-wins per field except for
// ProcessedChunks, which is monotonic.
type JobPatch struct {
	Status           *JobStatus
	ProcessedChunks  *int
	TotalChunks      *int
	FailedChunks     *int
	CreditsUsed      *int
	CreditsRemaining *int
	Result           *JobResult
	ErrorMessage     *string
}

// BatchJob groups a set of ProcessingJobs sharing one batchId.
type BatchJob struct {
	ID                  string           `json:"id"`
	UserID              string           `json:"userId"`
	Status              JobStatus        `json:"status"`
	JobIDs              []string         `json:"jobIds"`
	TotalDocuments      int              `json:"totalDocuments"`
	SuccessfulDocuments int              `json:"successfulDocuments"`
	TotalClauses        int              `json:"totalClauses"`
	TotalVariants       int              `json:"totalVariants"`
	Documents           []DocumentResult `json:"documents,omitempty"`
	CreatedAt           time.Time        `json:"createdAt"`
	CompletedAt         *time.Time       `json:"completedAt,omitempty"`
}

// DocumentResult is the per-document outcome inside a batch. A failed
// document is recorded here and never aborts its siblings.
type DocumentResult struct {
	JobID            string `json:"jobId"`
	FileName         string `json:"fileName"`
	Completed        bool   `json:"completed"`
	Success          bool   `json:"success"`
	Error            string `json:"error,omitempty"`
	ExtractedClauses int    `json:"extractedClauses"`
	GeneratedVariants int   `json:"generatedVariants"`
}

// Task type names for the asynq queues
const (
	TaskTypeProcess = "process:document"
	TaskTypeBatch   = "batch:documents"
)

// ProcessTaskPayload is the asynq payload for a single-document job.
type ProcessTaskPayload struct {
	JobID      string `json:"jobId"`
	UserID     string `json:"userId"`
	FileName   string `json:"fileName"`
	DocumentID string `json:"documentId,omitempty"`
	// Inline text takes precedence over DocumentID when set.
	Text      string `json:"text,omitempty"`
	ChunkSize int    `json:"chunkSize"`
	Overlap   int    `json:"overlap"`
}

// BatchTaskPayload is the asynq payload for a batch of documents.
type BatchTaskPayload struct {
	BatchID     string               `json:"batchId"`
	UserID      string               `json:"userId"`
	Concurrency int                  `json:"concurrency"`
	Documents   []ProcessTaskPayload `json:"documents"`
}
