package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

func intPtr(v int) *int                          { return &v }
func statusPtr(s model.JobStatus) *model.JobStatus { return &s }

// newTestStore returns a FileStore with a controllable clock.
func newTestStore(t *testing.T, pruneAge time.Duration) (*FileStore, *time.Time) {
	t.Helper()
	s, err := NewFileStore(t.TempDir(), pruneAge)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	return s, &now
}

func seedJob(t *testing.T, s *FileStore, id string, total int) *model.ProcessingJob {
	t.Helper()
	job := &model.ProcessingJob{
		ID:          id,
		UserID:      "user-1",
		FileName:    "policy.pdf",
		Status:      model.JobStatusProcessing,
		TotalChunks: total,
	}
	if err := s.CreateJob(context.Background(), job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	return job
}

func TestUpdateJob_MonotonicProgress(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 10)
	ctx := context.Background()

	job, err := s.UpdateJob(ctx, "job-1", model.JobPatch{ProcessedChunks: intPtr(5)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.ProcessedChunks != 5 || job.Progress != 50 {
		t.Fatalf("expected 5/50%%, got %d/%d%%", job.ProcessedChunks, job.Progress)
	}

	// A stale, lower write must be rejected.
	job, err = s.UpdateJob(ctx, "job-1", model.JobPatch{ProcessedChunks: intPtr(3)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.ProcessedChunks != 5 {
		t.Errorf("non-monotonic write applied: processedChunks = %d", job.ProcessedChunks)
	}

	// Equal value is a no-op, not an error.
	job, err = s.UpdateJob(ctx, "job-1", model.JobPatch{ProcessedChunks: intPtr(5)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.ProcessedChunks != 5 {
		t.Errorf("expected processedChunks 5, got %d", job.ProcessedChunks)
	}
}

func TestUpdateJob_LastProgressChangeOnlyOnRealProgress(t *testing.T) {
	s, now := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 10)
	ctx := context.Background()

	*now = now.Add(10 * time.Second)
	job, err := s.UpdateJob(ctx, "job-1", model.JobPatch{ProcessedChunks: intPtr(4)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	progressedAt := job.LastProgressChange
	if !progressedAt.Equal(*now) {
		t.Fatalf("lastProgressChange not updated on real progress")
	}

	// Repeated identical writes must not move the stall clock.
	*now = now.Add(time.Minute)
	job, err = s.UpdateJob(ctx, "job-1", model.JobPatch{ProcessedChunks: intPtr(4)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if !job.LastProgressChange.Equal(progressedAt) {
		t.Errorf("lastProgressChange moved without progress: %v -> %v", progressedAt, job.LastProgressChange)
	}
}

func TestUpdateJob_CompletionNormalizesChunkCounts(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 10)
	ctx := context.Background()

	if _, err := s.UpdateJob(ctx, "job-1", model.JobPatch{ProcessedChunks: intPtr(8)}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	job, err := s.UpdateJob(ctx, "job-1", model.JobPatch{Status: statusPtr(model.JobStatusComplete)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.ProcessedChunks != 10 {
		t.Errorf("completion did not normalize processedChunks: got %d", job.ProcessedChunks)
	}
	if job.Progress != 100 {
		t.Errorf("completed job reports %d%%", job.Progress)
	}
	if job.CompletedAt == nil {
		t.Error("completedAt not set on completion")
	}
}

func TestUpdateJob_ClampsProcessedToTotal(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 10)

	job, err := s.UpdateJob(context.Background(), "job-1", model.JobPatch{ProcessedChunks: intPtr(25)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.ProcessedChunks != 10 || job.Progress != 100 {
		t.Errorf("expected clamp to 10/100%%, got %d/%d%%", job.ProcessedChunks, job.Progress)
	}
}

func TestUpdateJob_ProgressRounds(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 3)

	job, err := s.UpdateJob(context.Background(), "job-1", model.JobPatch{ProcessedChunks: intPtr(1)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.Progress != 33 {
		t.Errorf("expected 33%%, got %d%%", job.Progress)
	}

	job, err = s.UpdateJob(context.Background(), "job-1", model.JobPatch{ProcessedChunks: intPtr(2)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.Progress != 67 {
		t.Errorf("expected 67%%, got %d%%", job.Progress)
	}
}

func TestCancelJob_Idempotent(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 10)
	ctx := context.Background()

	first, err := s.CancelJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("CancelJob: %v", err)
	}
	if first.Status != model.JobStatusCancelled {
		t.Fatalf("expected cancelled, got %s", first.Status)
	}

	second, err := s.CancelJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("second CancelJob: %v", err)
	}
	if second.Status != model.JobStatusCancelled {
		t.Errorf("second cancel changed status to %s", second.Status)
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Errorf("second cancel moved completedAt")
	}
}

func TestUpdateJob_CancelledWinsOverLateCompletion(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 10)
	ctx := context.Background()

	if _, err := s.CancelJob(ctx, "job-1"); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	// A worker finishing after the cancel must not resurrect the job.
	job, err := s.UpdateJob(ctx, "job-1", model.JobPatch{
		Status:          statusPtr(model.JobStatusComplete),
		ProcessedChunks: intPtr(10),
	})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.Status != model.JobStatusCancelled {
		t.Errorf("late completion overwrote cancel: status = %s", job.Status)
	}
}

func TestUpdateJob_InvalidTransitionRejected(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	seedJob(t, s, "job-1", 10)

	job, err := s.UpdateJob(context.Background(), "job-1", model.JobPatch{Status: statusPtr(model.JobStatusUploading)})
	if err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}
	if job.Status != model.JobStatusProcessing {
		t.Errorf("processing -> uploading applied: %s", job.Status)
	}
}

func TestUpdateJob_PrunesOldTerminalJobs(t *testing.T) {
	s, now := newTestStore(t, time.Hour)
	seedJob(t, s, "old-job", 5)
	ctx := context.Background()

	if _, err := s.UpdateJob(ctx, "old-job", model.JobPatch{Status: statusPtr(model.JobStatusComplete)}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	// Two hours later a write to another job triggers the prune pass.
	*now = now.Add(2 * time.Hour)
	seedJob(t, s, "new-job", 5)
	if _, err := s.UpdateJob(ctx, "new-job", model.JobPatch{ProcessedChunks: intPtr(1)}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	if _, err := s.GetJob(ctx, "old-job"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected pruned job to be gone, got err = %v", err)
	}
	if _, err := s.GetJob(ctx, "new-job"); err != nil {
		t.Errorf("active job pruned: %v", err)
	}
}

func TestGetJobByFileName_ReturnsLatest(t *testing.T) {
	s, now := newTestStore(t, time.Hour)
	ctx := context.Background()

	seedJob(t, s, "job-old", 5)
	*now = now.Add(time.Minute)
	seedJob(t, s, "job-new", 5)

	job, err := s.GetJobByFileName(ctx, "user-1", "policy.pdf")
	if err != nil {
		t.Fatalf("GetJobByFileName: %v", err)
	}
	if job.ID != "job-new" {
		t.Errorf("expected latest job, got %s", job.ID)
	}

	if _, err := s.GetJobByFileName(ctx, "user-2", "policy.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("lookup leaked across users: err = %v", err)
	}
}

func TestGetJob_NotFound(t *testing.T) {
	s, _ := newTestStore(t, time.Hour)
	if _, err := s.GetJob(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
