package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
	"github.com/ericlam1114/datasynthetix-api/internal/websocket"
)

var (
	// ErrNotFound mirrors the store sentinel so handlers only import service.
	ErrNotFound = store.ErrNotFound
	// ErrForbidden means the job exists but belongs to another user.
	ErrForbidden = errors.New("job belongs to another user")
	// ErrMissingIdentifier means neither jobId nor fileName was supplied.
	ErrMissingIdentifier = errors.New("jobId or fileName is required")
	// ErrMissingSource means a start request carried neither a document
	// reference nor inline text.
	ErrMissingSource = errors.New("documentId or text is required")
	// ErrNotComplete means a result was requested before the job finished.
	ErrNotComplete = errors.New("job is not complete")
)

// ProcessService manages single-document processing jobs: creation, status
// polling, external status updates and cancellation.
type ProcessService struct {
	store       store.JobStore
	asynqClient *asynq.Client
	hub         *websocket.Hub
	cfg         *config.Config
	now         func() time.Time
}

func NewProcessService(jobStore store.JobStore, asynqClient *asynq.Client, hub *websocket.Hub, cfg *config.Config) *ProcessService {
	return &ProcessService{
		store:       jobStore,
		asynqClient: asynqClient,
		hub:         hub,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Start creates a job record and queues the processing task.
func (s *ProcessService) Start(ctx context.Context, userID string, req *model.ProcessStartRequest) (*model.ProcessStartResponse, error) {
	if req.DocumentID == "" && req.Text == "" {
		return nil, ErrMissingSource
	}

	jobID := uuid.New().String()
	now := s.now()

	job := &model.ProcessingJob{
		ID:               jobID,
		UserID:           userID,
		FileName:         req.FileName,
		DocumentID:       req.DocumentID,
		Status:           model.JobStatusUploading,
		CreditsRemaining: s.cfg.Processing.StartingCredits,
		CreatedAt:        now,
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save job: %w", err)
	}

	payload := model.ProcessTaskPayload{
		JobID:      jobID,
		UserID:     userID,
		FileName:   req.FileName,
		DocumentID: req.DocumentID,
		Text:       req.Text,
		ChunkSize:  req.ChunkSize,
		Overlap:    req.Overlap,
	}
	if err := s.enqueueProcess(payload); err != nil {
		return nil, err
	}

	return &model.ProcessStartResponse{
		JobID:     jobID,
		Status:    job.Status,
		CreatedAt: now,
	}, nil
}

// enqueueProcess queues a document task. A nil asynq client (tests, or a
// deployment without workers) skips the queue; the job stays in uploading
// until an external status update moves it.
func (s *ProcessService) enqueueProcess(payload model.ProcessTaskPayload) error {
	if s.asynqClient == nil {
		log.Printf("process: no task queue configured, job %s not enqueued", payload.JobID)
		return nil
	}

	task, err := model.NewProcessTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("process"),
		asynq.MaxRetry(2),
		asynq.Timeout(s.cfg.Processing.DocumentTimeout),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// GetStatus resolves a job by ID or filename and returns the polling view.
// isActive is derived on every read from the stall threshold.
func (s *ProcessService) GetStatus(ctx context.Context, userID, jobID, fileName string) (*model.ProcessStatusResponse, error) {
	job, err := s.resolveJob(ctx, userID, jobID, fileName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) && s.cfg.Processing.SimulateMissingJobs && jobID != "" {
			return s.createPlaceholder(ctx, userID, jobID)
		}
		return nil, err
	}
	if s.cfg.Processing.SimulateMissingJobs && job.DocumentID == placeholderDocumentID && !job.Status.IsTerminal() {
		return s.advancePlaceholder(ctx, job)
	}
	return s.statusResponse(job), nil
}

// UpdateStatus applies an external progress/status update. The store enforces
// the monotonic and terminal-state rules; a rejected field is silently
// dropped there and the stored record is what we report back.
func (s *ProcessService) UpdateStatus(ctx context.Context, userID string, req *model.UpdateStatusRequest) (*model.UpdateStatusResponse, error) {
	job, err := s.resolveJob(ctx, userID, req.JobID, req.FileName)
	if err != nil {
		return nil, err
	}

	patch := model.JobPatch{
		ProcessedChunks:  req.ProcessedChunks,
		TotalChunks:      req.TotalChunks,
		CreditsUsed:      req.CreditsUsed,
		CreditsRemaining: req.CreditsRemaining,
		Result:           req.Result,
	}
	if req.Status != "" {
		status := req.Status
		patch.Status = &status
	}
	if req.ErrorMessage != "" {
		msg := req.ErrorMessage
		patch.ErrorMessage = &msg
	}

	updated, err := s.store.UpdateJob(ctx, job.ID, patch)
	if err != nil {
		return nil, fmt.Errorf("failed to update job: %w", err)
	}

	if s.hub != nil {
		s.hub.BroadcastProgress(updated)
	}

	return &model.UpdateStatusResponse{Success: true, JobID: updated.ID}, nil
}

// Cancel cancels a job. Cancelling an already-terminal job succeeds without
// changing the record.
func (s *ProcessService) Cancel(ctx context.Context, userID, jobID string) (*model.CancelResponse, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}

	cancelled, err := s.store.CancelJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	if s.hub != nil && cancelled.Status == model.JobStatusCancelled {
		s.hub.BroadcastProgress(cancelled)
	}

	return &model.CancelResponse{
		Success: true,
		JobID:   cancelled.ID,
		Status:  cancelled.Status,
	}, nil
}

// GetResult returns the output artifact reference of a completed job.
func (s *ProcessService) GetResult(ctx context.Context, userID, jobID string) (*model.JobResult, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}
	if job.Status != model.JobStatusComplete || job.Result == nil {
		return nil, ErrNotComplete
	}
	return job.Result, nil
}

func (s *ProcessService) resolveJob(ctx context.Context, userID, jobID, fileName string) (*model.ProcessingJob, error) {
	var job *model.ProcessingJob
	var err error
	switch {
	case jobID != "":
		job, err = s.store.GetJob(ctx, jobID)
	case fileName != "":
		job, err = s.store.GetJobByFileName(ctx, userID, fileName)
	default:
		return nil, ErrMissingIdentifier
	}
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, ErrForbidden
	}
	return job, nil
}

func (s *ProcessService) statusResponse(job *model.ProcessingJob) *model.ProcessStatusResponse {
	return &model.ProcessStatusResponse{
		JobID:            job.ID,
		FileName:         job.FileName,
		Status:           job.Status,
		ProcessedChunks:  job.ProcessedChunks,
		TotalChunks:      job.TotalChunks,
		FailedChunks:     job.FailedChunks,
		Progress:         job.Progress,
		IsActive:         s.isActive(job),
		CreditsUsed:      job.CreditsUsed,
		CreditsRemaining: job.CreditsRemaining,
		Result:           job.Result,
		ErrorMessage:     job.ErrorMessage,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
}

// isActive reports whether the job is still making progress. A processing job
// whose progress has not moved within the stall threshold reads as inactive
// even though its status is unchanged.
func (s *ProcessService) isActive(job *model.ProcessingJob) bool {
	switch job.Status {
	case model.JobStatusUploading:
		return true
	case model.JobStatusProcessing:
		return s.now().Sub(job.LastProgressChange) <= s.cfg.Processing.StallThreshold
	default:
		return false
	}
}

// Placeholder jobs exist so local frontend development can poll against a
// backend with no worker running. Gated by config and never enabled in
// production.
const (
	placeholderDocumentID = "placeholder"
	placeholderChunks     = 10
)

func (s *ProcessService) createPlaceholder(ctx context.Context, userID, jobID string) (*model.ProcessStatusResponse, error) {
	log.Printf("process: synthesizing placeholder job %s for user %s", jobID, userID)
	job := &model.ProcessingJob{
		ID:               jobID,
		UserID:           userID,
		FileName:         "placeholder.pdf",
		DocumentID:       placeholderDocumentID,
		Status:           model.JobStatusProcessing,
		TotalChunks:      placeholderChunks,
		CreditsRemaining: s.cfg.Processing.StartingCredits,
		CreatedAt:        s.now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to save placeholder job: %w", err)
	}
	return s.statusResponse(job), nil
}

// advancePlaceholder moves a placeholder forward one chunk per three seconds
// of wall time; the store's monotonic rule keeps concurrent polls consistent.
func (s *ProcessService) advancePlaceholder(ctx context.Context, job *model.ProcessingJob) (*model.ProcessStatusResponse, error) {
	processed := int(s.now().Sub(job.CreatedAt) / (3 * time.Second))
	if processed >= placeholderChunks {
		processed = placeholderChunks
	}
	patch := model.JobPatch{ProcessedChunks: &processed}
	if processed == placeholderChunks {
		complete := model.JobStatusComplete
		patch.Status = &complete
	}
	updated, err := s.store.UpdateJob(ctx, job.ID, patch)
	if err != nil {
		return nil, err
	}
	return s.statusResponse(updated), nil
}
