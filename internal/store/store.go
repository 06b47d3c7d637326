package store

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// ErrNotFound is returned when no job or batch exists for the given ID.
var ErrNotFound = errors.New("job not found")

// JobStore is the single authoritative job state store. Implementations are
// durable (Redis or per-job JSON files); CachedStore layers a short-TTL read
// cache on top. The durable record always wins over any cached view.
type JobStore interface {
	CreateJob(ctx context.Context, job *model.ProcessingJob) error
	GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error)
	// GetJobByFileName resolves the most recent job a user started for a
	// file. Lookups are always scoped to the owning user.
	GetJobByFileName(ctx context.Context, userID, fileName string) (*model.ProcessingJob, error)
	// UpdateJob applies a field-wise patch and returns the stored record.
	UpdateJob(ctx context.Context, jobID string, patch model.JobPatch) (*model.ProcessingJob, error)
	// CancelJob is idempotent: cancelling a terminal job is a no-op success.
	CancelJob(ctx context.Context, jobID string) (*model.ProcessingJob, error)
	DeleteJob(ctx context.Context, jobID string) error

	CreateBatch(ctx context.Context, batch *model.BatchJob) error
	GetBatch(ctx context.Context, batchID string) (*model.BatchJob, error)
	UpdateBatch(ctx context.Context, batch *model.BatchJob) error
}

// applyPatch merges a patch into a job under the store's consistency rules:
//
//   - terminal records are frozen; a late completion racing a cancel is
//     dropped here (cancelled wins)
//   - processedChunks is monotonic; a lower value is rejected and logged
//   - lastProgressChange moves only when processedChunks actually changes
//   - progress is always recomputed, never trusted from the patch
//   - completion normalizes processedChunks to totalChunks
//
// It returns false when nothing changed.
func applyPatch(job *model.ProcessingJob, patch model.JobPatch, now time.Time) bool {
	if job.Status.IsTerminal() {
		if patch.Status != nil && *patch.Status != job.Status {
			log.Printf("store: job %s is %s, dropping late transition to %s", job.ID, job.Status, *patch.Status)
		}
		return false
	}

	changed := false

	if patch.TotalChunks != nil && *patch.TotalChunks >= 0 && *patch.TotalChunks != job.TotalChunks {
		job.TotalChunks = *patch.TotalChunks
		changed = true
	}

	if patch.ProcessedChunks != nil {
		v := *patch.ProcessedChunks
		if job.TotalChunks > 0 && v > job.TotalChunks {
			v = job.TotalChunks
		}
		switch {
		case v < job.ProcessedChunks:
			log.Printf("store: job %s rejecting non-monotonic processedChunks %d < %d", job.ID, v, job.ProcessedChunks)
		case v > job.ProcessedChunks:
			job.ProcessedChunks = v
			job.LastProgressChange = now
			changed = true
		}
	}

	if patch.FailedChunks != nil && *patch.FailedChunks != job.FailedChunks {
		job.FailedChunks = *patch.FailedChunks
		changed = true
	}
	if patch.CreditsUsed != nil && *patch.CreditsUsed != job.CreditsUsed {
		job.CreditsUsed = *patch.CreditsUsed
		changed = true
	}
	if patch.CreditsRemaining != nil && *patch.CreditsRemaining != job.CreditsRemaining {
		job.CreditsRemaining = *patch.CreditsRemaining
		changed = true
	}
	if patch.Result != nil {
		job.Result = patch.Result
		changed = true
	}
	if patch.ErrorMessage != nil && *patch.ErrorMessage != job.ErrorMessage {
		job.ErrorMessage = *patch.ErrorMessage
		changed = true
	}

	if patch.Status != nil && *patch.Status != job.Status {
		if validTransition(job.Status, *patch.Status) {
			job.Status = *patch.Status
			changed = true
			if job.Status.IsTerminal() {
				t := now
				job.CompletedAt = &t
			}
			// A completed job always reads 100%; the UI must never see a
			// complete job below totalChunks.
			if job.Status == model.JobStatusComplete {
				job.ProcessedChunks = job.TotalChunks
			}
		} else {
			log.Printf("store: job %s rejecting invalid transition %s -> %s", job.ID, job.Status, *patch.Status)
		}
	}

	job.Progress = computeProgress(job)
	return changed
}

func validTransition(from, to model.JobStatus) bool {
	switch from {
	case model.JobStatusUploading:
		return to == model.JobStatusProcessing || to == model.JobStatusComplete ||
			to == model.JobStatusError || to == model.JobStatusCancelled
	case model.JobStatusProcessing:
		return to == model.JobStatusComplete || to == model.JobStatusError ||
			to == model.JobStatusCancelled
	default:
		return false
	}
}

// computeProgress derives the percentage from chunk counts on every update;
// progress is never stored as independent truth.
func computeProgress(job *model.ProcessingJob) int {
	if job.Status == model.JobStatusComplete {
		return 100
	}
	if job.TotalChunks <= 0 {
		return 0
	}
	return int(math.Round(float64(job.ProcessedChunks) / float64(job.TotalChunks) * 100))
}

// cloneJob returns an independent copy so callers can't mutate stored state.
func cloneJob(job *model.ProcessingJob) *model.ProcessingJob {
	if job == nil {
		return nil
	}
	out := *job
	if job.Result != nil {
		res := *job.Result
		if job.Result.Counts != nil {
			res.Counts = make(map[model.Classification]int, len(job.Result.Counts))
			for k, v := range job.Result.Counts {
				res.Counts[k] = v
			}
		}
		out.Result = &res
	}
	if job.CompletedAt != nil {
		t := *job.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}

func cloneBatch(batch *model.BatchJob) *model.BatchJob {
	if batch == nil {
		return nil
	}
	out := *batch
	out.JobIDs = append([]string(nil), batch.JobIDs...)
	out.Documents = append([]model.DocumentResult(nil), batch.Documents...)
	if batch.CompletedAt != nil {
		t := *batch.CompletedAt
		out.CompletedAt = &t
	}
	return &out
}
