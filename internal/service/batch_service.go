package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
)

// BatchService manages multi-document batches. A batch creates one job per
// document up front and queues a single batch task; the worker runs the
// documents through a bounded pool.
type BatchService struct {
	store       store.JobStore
	asynqClient *asynq.Client
	cfg         *config.Config
	now         func() time.Time
}

func NewBatchService(jobStore store.JobStore, asynqClient *asynq.Client, cfg *config.Config) *BatchService {
	return &BatchService{
		store:       jobStore,
		asynqClient: asynqClient,
		cfg:         cfg,
		now:         time.Now,
	}
}

// Start creates the batch record plus one job per document and queues the
// batch task.
func (s *BatchService) Start(ctx context.Context, userID string, req *model.BatchStartRequest) (*model.BatchStartResponse, error) {
	for _, doc := range req.Documents {
		if doc.DocumentID == "" && doc.Text == "" {
			return nil, fmt.Errorf("%w: document %q", ErrMissingSource, doc.FileName)
		}
	}

	concurrency := req.Concurrency
	if concurrency <= 0 {
		concurrency = s.cfg.Processing.BatchConcurrency
	}

	batchID := uuid.New().String()
	now := s.now()

	payloads := make([]model.ProcessTaskPayload, 0, len(req.Documents))
	jobIDs := make([]string, 0, len(req.Documents))
	for _, doc := range req.Documents {
		jobID := uuid.New().String()
		job := &model.ProcessingJob{
			ID:               jobID,
			UserID:           userID,
			FileName:         doc.FileName,
			DocumentID:       doc.DocumentID,
			BatchID:          batchID,
			Status:           model.JobStatusUploading,
			CreditsRemaining: s.cfg.Processing.StartingCredits,
			CreatedAt:        now,
		}
		if err := s.store.CreateJob(ctx, job); err != nil {
			return nil, fmt.Errorf("failed to save job for %q: %w", doc.FileName, err)
		}
		jobIDs = append(jobIDs, jobID)
		payloads = append(payloads, model.ProcessTaskPayload{
			JobID:      jobID,
			UserID:     userID,
			FileName:   doc.FileName,
			DocumentID: doc.DocumentID,
			Text:       doc.Text,
			ChunkSize:  req.ChunkSize,
			Overlap:    req.Overlap,
		})
	}

	batch := &model.BatchJob{
		ID:             batchID,
		UserID:         userID,
		Status:         model.JobStatusProcessing,
		JobIDs:         jobIDs,
		TotalDocuments: len(req.Documents),
		CreatedAt:      now,
	}
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("failed to save batch: %w", err)
	}

	if err := s.enqueueBatch(model.BatchTaskPayload{
		BatchID:     batchID,
		UserID:      userID,
		Concurrency: concurrency,
		Documents:   payloads,
	}); err != nil {
		return nil, err
	}

	return &model.BatchStartResponse{
		BatchID:        batchID,
		Status:         batch.Status,
		TotalDocuments: batch.TotalDocuments,
		JobIDs:         jobIDs,
		CreatedAt:      now,
	}, nil
}

func (s *BatchService) enqueueBatch(payload model.BatchTaskPayload) error {
	if s.asynqClient == nil {
		log.Printf("batch: no task queue configured, batch %s not enqueued", payload.BatchID)
		return nil
	}

	task, err := model.NewBatchTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	_, err = s.asynqClient.Enqueue(task,
		asynq.Queue("batch"),
		asynq.MaxRetry(1),
		asynq.Timeout(s.cfg.Processing.BatchTimeout),
		asynq.Retention(24*time.Hour),
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	return nil
}

// GetStatus returns the polling view of a batch.
func (s *BatchService) GetStatus(ctx context.Context, userID, batchID string) (*model.BatchStatusResponse, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.UserID != userID {
		return nil, ErrForbidden
	}

	return &model.BatchStatusResponse{
		BatchID:             batch.ID,
		Status:              batch.Status,
		TotalDocuments:      batch.TotalDocuments,
		SuccessfulDocuments: batch.SuccessfulDocuments,
		TotalClauses:        batch.TotalClauses,
		TotalVariants:       batch.TotalVariants,
		Documents:           batch.Documents,
		CreatedAt:           batch.CreatedAt,
		CompletedAt:         batch.CompletedAt,
	}, nil
}
