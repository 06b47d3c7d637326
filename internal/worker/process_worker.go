package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"path/filepath"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/ericlam1114/datasynthetix-api/internal/chunker"
	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/extract"
	"github.com/ericlam1114/datasynthetix-api/internal/jsonl"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/pipeline"
	"github.com/ericlam1114/datasynthetix-api/internal/service"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
	"github.com/ericlam1114/datasynthetix-api/internal/websocket"
)

// ProcessWorker runs single-document jobs: extract text, chunk it, feed each
// chunk through the three-stage pipeline in index order, and assemble the
// JSONL artifact.
type ProcessWorker struct {
	store     store.JobStore
	documents *service.DocumentService
	extractor extract.TextExtractor
	pipeline  *pipeline.Pipeline
	hub       *websocket.Hub
	cfg       *config.Config
}

func NewProcessWorker(jobStore store.JobStore, documents *service.DocumentService, extractor extract.TextExtractor, p *pipeline.Pipeline, hub *websocket.Hub, cfg *config.Config) *ProcessWorker {
	return &ProcessWorker{
		store:     jobStore,
		documents: documents,
		extractor: extractor,
		pipeline:  p,
		hub:       hub,
		cfg:       cfg,
	}
}

// ProcessTask handles a queued document task.
func (w *ProcessWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.ProcessTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", err)
	}
	return w.RunDocument(ctx, payload)
}

// RunDocument executes the full lifecycle of one document job. Chunk-level
// failures are recorded and skipped; only a job that produces no output at
// all ends in the error state.
func (w *ProcessWorker) RunDocument(ctx context.Context, payload model.ProcessTaskPayload) error {
	jobID := payload.JobID
	log.Printf("worker: starting document job %s (%s)", jobID, payload.FileName)

	ctx, cancel := context.WithTimeout(ctx, w.cfg.Processing.DocumentTimeout)
	defer cancel()

	w.patchJob(ctx, jobID, statusPatch(model.JobStatusProcessing))

	text, err := w.resolveText(ctx, payload)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Text extraction failed: %v", err))
		return err
	}

	chunkSize := payload.ChunkSize
	if chunkSize == 0 {
		chunkSize = w.cfg.Processing.ChunkSize
	}
	overlap := payload.Overlap
	if overlap == 0 {
		overlap = w.cfg.Processing.Overlap
	}

	chunks := chunker.Split(text, chunkSize, overlap)
	if len(chunks) == 0 {
		err := fmt.Errorf("document %q produced no chunks", payload.FileName)
		w.failJob(ctx, jobID, err.Error())
		return err
	}

	total := len(chunks)
	w.patchJob(ctx, jobID, model.JobPatch{TotalChunks: &total})

	builder := jsonl.NewBuilder()
	failed := 0

	for i, chunk := range chunks {
		cancelled, err := w.jobCancelled(ctx, jobID)
		if err != nil {
			return err
		}
		if cancelled {
			log.Printf("worker: job %s cancelled after %d/%d chunks", jobID, i, total)
			return nil
		}

		result, err := w.runChunk(ctx, chunk)
		if err != nil {
			// Parent deadline or external cancellation: the whole job stops.
			if ctx.Err() != nil {
				w.failJob(ctx, jobID, "Document processing timed out")
				return ctx.Err()
			}
			// Chunk deadline: record the failure, keep going.
			log.Printf("worker: job %s chunk %d timed out: %v", jobID, chunk.Index, err)
			failed++
		} else if !result.Success {
			log.Printf("worker: job %s chunk %d failed at %s stage: %s", jobID, chunk.Index, result.FailedStage, result.Error)
			failed++
		} else {
			builder.Add(jsonl.Record{
				Text:           result.Variant,
				Classification: result.Classification,
				Source:         strings.Join(result.Extracted, " "),
				FileName:       payload.FileName,
				ChunkIndex:     chunk.Index,
			})
		}

		w.recordProgress(ctx, jobID, i+1, failed)
	}

	cancelled, err := w.jobCancelled(ctx, jobID)
	if err != nil {
		return err
	}
	if cancelled {
		log.Printf("worker: job %s cancelled before completion", jobID)
		return nil
	}

	if builder.Len() == 0 {
		err := fmt.Errorf("all %d chunks failed", total)
		w.failJob(ctx, jobID, err.Error())
		return err
	}

	result, err := w.storeResult(ctx, payload, builder)
	if err != nil {
		w.failJob(ctx, jobID, fmt.Sprintf("Failed to store result: %v", err))
		return err
	}

	complete := model.JobStatusComplete
	job := w.patchJob(ctx, jobID, model.JobPatch{Status: &complete, Result: result})
	if w.hub != nil && job != nil {
		w.hub.BroadcastComplete(jobID, result)
	}
	log.Printf("worker: document job %s complete (%d entries, %d failed chunks)", jobID, result.EntryCount, failed)
	return nil
}

// runChunk runs one chunk under its own deadline.
func (w *ProcessWorker) runChunk(ctx context.Context, chunk model.DocumentChunk) (*pipeline.ChunkResult, error) {
	chunkCtx, cancel := context.WithTimeout(ctx, w.cfg.Processing.ChunkTimeout)
	defer cancel()
	return w.pipeline.RunChunk(chunkCtx, chunk)
}

func (w *ProcessWorker) resolveText(ctx context.Context, payload model.ProcessTaskPayload) (string, error) {
	if payload.Text != "" {
		return payload.Text, nil
	}
	data, err := w.documents.LoadDocument(ctx, payload.UserID, payload.DocumentID, payload.FileName)
	if err != nil {
		return "", err
	}
	return w.extractor.ExtractText(ctx, data, payload.FileName)
}

func (w *ProcessWorker) storeResult(ctx context.Context, payload model.ProcessTaskPayload, builder *jsonl.Builder) (*model.JobResult, error) {
	data, err := builder.Bytes()
	if err != nil {
		return nil, err
	}

	resultName := resultFileName(payload.FileName)
	fileURL, err := w.documents.StoreResult(ctx, payload.UserID, payload.JobID, resultName, data)
	if err != nil {
		return nil, err
	}

	return &model.JobResult{
		FileName:   resultName,
		FileURL:    fileURL,
		EntryCount: builder.Len(),
		Counts:     builder.Counts(),
	}, nil
}

// recordProgress writes chunk counters after each chunk. The store rejects
// non-monotonic values, so a retried task replaying earlier chunks can't move
// progress backwards.
func (w *ProcessWorker) recordProgress(ctx context.Context, jobID string, processed, failed int) {
	used := processed * w.cfg.Processing.CreditsPerChunk
	remaining := w.cfg.Processing.StartingCredits - used
	if remaining < 0 {
		remaining = 0
	}
	job := w.patchJob(ctx, jobID, model.JobPatch{
		ProcessedChunks:  &processed,
		FailedChunks:     &failed,
		CreditsUsed:      &used,
		CreditsRemaining: &remaining,
	})
	if w.hub != nil && job != nil {
		w.hub.BroadcastProgress(job)
	}
}

func (w *ProcessWorker) jobCancelled(ctx context.Context, jobID string) (bool, error) {
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}
	return job.Status == model.JobStatusCancelled, nil
}

func (w *ProcessWorker) patchJob(ctx context.Context, jobID string, patch model.JobPatch) *model.ProcessingJob {
	job, err := w.store.UpdateJob(ctx, jobID, patch)
	if err != nil {
		log.Printf("worker: failed to update job %s: %v", jobID, err)
		return nil
	}
	return job
}

// failJob marks a job errored. The write uses a detached context so a job
// that failed on deadline can still record why.
func (w *ProcessWorker) failJob(ctx context.Context, jobID, message string) {
	errStatus := model.JobStatusError
	w.patchJob(context.WithoutCancel(ctx), jobID, model.JobPatch{Status: &errStatus, ErrorMessage: &message})
	if w.hub != nil {
		w.hub.BroadcastError(jobID, "PROCESSING_FAILED", message)
	}
}

func statusPatch(status model.JobStatus) model.JobPatch {
	return model.JobPatch{Status: &status}
}

func resultFileName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	if base == "" {
		base = "output"
	}
	return base + ".jsonl"
}
