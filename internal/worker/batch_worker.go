package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
)

// DocumentRunner runs one document job to a terminal state. Satisfied by
// ProcessWorker.
type DocumentRunner interface {
	RunDocument(ctx context.Context, payload model.ProcessTaskPayload) error
}

// BatchWorker fans a batch out over a bounded worker pool. A failed document
// records its error on its own job and never stops the siblings.
type BatchWorker struct {
	store  store.JobStore
	runner DocumentRunner
	cfg    *config.Config
	now    func() time.Time
}

func NewBatchWorker(jobStore store.JobStore, runner DocumentRunner, cfg *config.Config) *BatchWorker {
	return &BatchWorker{
		store:  jobStore,
		runner: runner,
		cfg:    cfg,
		now:    time.Now,
	}
}

// ProcessTask handles a queued batch task.
func (w *BatchWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.BatchTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return w.RunBatch(ctx, payload)
}

// RunBatch processes every document in the batch with at most Concurrency
// running at once, then aggregates the per-document outcomes onto the batch
// record.
func (w *BatchWorker) RunBatch(ctx context.Context, payload model.BatchTaskPayload) error {
	batchID := payload.BatchID
	log.Printf("worker: starting batch %s (%d documents)", batchID, len(payload.Documents))

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Processing.BatchTimeout)
	defer cancel()

	concurrency := payload.Concurrency
	if concurrency <= 0 {
		concurrency = w.cfg.Processing.BatchConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, doc := range payload.Documents {
		doc := doc
		g.Go(func() error {
			// Document failures land on the document's own job record; only
			// a nil return keeps the pool draining the remaining documents.
			if err := w.runner.RunDocument(gctx, doc); err != nil {
				log.Printf("worker: batch %s document %s failed: %v", batchID, doc.FileName, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return w.finalizeBatch(context.WithoutCancel(ctx), payload)
}

// finalizeBatch reads every document job back and writes the aggregate onto
// the batch record.
func (w *BatchWorker) finalizeBatch(ctx context.Context, payload model.BatchTaskPayload) error {
	batch, err := w.store.GetBatch(ctx, payload.BatchID)
	if err != nil {
		return fmt.Errorf("failed to read batch %s: %w", payload.BatchID, err)
	}

	documents := make([]model.DocumentResult, 0, len(payload.Documents))
	successful := 0
	totalClauses := 0
	totalVariants := 0

	for _, doc := range payload.Documents {
		result := model.DocumentResult{JobID: doc.JobID, FileName: doc.FileName}

		job, err := w.store.GetJob(ctx, doc.JobID)
		if err != nil {
			result.Error = "job record missing"
			documents = append(documents, result)
			continue
		}

		result.Completed = job.Status.IsTerminal()
		result.Success = job.Status == model.JobStatusComplete
		result.Error = job.ErrorMessage
		if job.Result != nil {
			result.ExtractedClauses = job.Result.EntryCount
			result.GeneratedVariants = job.Result.EntryCount
			totalClauses += job.Result.EntryCount
			totalVariants += job.Result.EntryCount
		}
		if result.Success {
			successful++
		}
		documents = append(documents, result)
	}

	batch.Documents = documents
	batch.SuccessfulDocuments = successful
	batch.TotalClauses = totalClauses
	batch.TotalVariants = totalVariants
	if successful > 0 {
		batch.Status = model.JobStatusComplete
	} else {
		batch.Status = model.JobStatusError
	}
	completedAt := w.now()
	batch.CompletedAt = &completedAt

	if err := w.store.UpdateBatch(ctx, batch); err != nil {
		return fmt.Errorf("failed to save batch %s: %w", payload.BatchID, err)
	}

	log.Printf("worker: batch %s finished (%d/%d successful)", payload.BatchID, successful, len(payload.Documents))
	return nil
}
