package store

import (
	"context"
	"testing"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// countingStore counts durable reads so the cache tests can observe hits.
type countingStore struct {
	JobStore
	getCalls int
}

func (c *countingStore) GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	c.getCalls++
	return c.JobStore.GetJob(ctx, jobID)
}

func newCachedTestStore(t *testing.T) (*CachedStore, *countingStore, *time.Time) {
	t.Helper()
	fs, err := NewFileStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	inner := &countingStore{JobStore: fs}
	cached := NewCachedStore(inner, 5*time.Second)
	now := time.Date(2026, 1, 15, 10, 0, 0, 0, time.UTC)
	cached.now = func() time.Time { return now }
	return cached, inner, &now
}

func TestCachedStore_ServesFromCacheWithinTTL(t *testing.T) {
	cached, inner, now := newCachedTestStore(t)
	ctx := context.Background()

	if err := cached.CreateJob(ctx, &model.ProcessingJob{ID: "job-1", Status: model.JobStatusProcessing, TotalChunks: 4}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	// Create primed the cache, so polls inside the TTL never hit the
	// durable store.
	for i := 0; i < 10; i++ {
		if _, err := cached.GetJob(ctx, "job-1"); err != nil {
			t.Fatalf("GetJob: %v", err)
		}
	}
	if inner.getCalls != 0 {
		t.Errorf("expected 0 durable reads inside TTL, got %d", inner.getCalls)
	}

	*now = now.Add(6 * time.Second)
	if _, err := cached.GetJob(ctx, "job-1"); err != nil {
		t.Fatalf("GetJob after TTL: %v", err)
	}
	if inner.getCalls != 1 {
		t.Errorf("expected 1 durable read after TTL expiry, got %d", inner.getCalls)
	}
}

func TestCachedStore_WritesRefreshCache(t *testing.T) {
	cached, inner, _ := newCachedTestStore(t)
	ctx := context.Background()

	if err := cached.CreateJob(ctx, &model.ProcessingJob{ID: "job-1", Status: model.JobStatusProcessing, TotalChunks: 4}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	processed := 2
	if _, err := cached.UpdateJob(ctx, "job-1", model.JobPatch{ProcessedChunks: &processed}); err != nil {
		t.Fatalf("UpdateJob: %v", err)
	}

	// The cached view must reflect the write immediately.
	job, err := cached.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.ProcessedChunks != 2 || job.Progress != 50 {
		t.Errorf("stale cached view after write: %d/%d%%", job.ProcessedChunks, job.Progress)
	}
	if inner.getCalls != 0 {
		t.Errorf("expected no durable read, got %d", inner.getCalls)
	}
}

func TestCachedStore_InvalidateForcesDurableRead(t *testing.T) {
	cached, inner, _ := newCachedTestStore(t)
	ctx := context.Background()

	if err := cached.CreateJob(ctx, &model.ProcessingJob{ID: "job-1", Status: model.JobStatusProcessing, TotalChunks: 4}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	cached.Invalidate("job-1")
	if _, err := cached.GetJob(ctx, "job-1"); err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if inner.getCalls != 1 {
		t.Errorf("expected durable read after invalidate, got %d", inner.getCalls)
	}
}

func TestCachedStore_ReturnsCopies(t *testing.T) {
	cached, _, _ := newCachedTestStore(t)
	ctx := context.Background()

	if err := cached.CreateJob(ctx, &model.ProcessingJob{ID: "job-1", Status: model.JobStatusProcessing, TotalChunks: 4}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	job, _ := cached.GetJob(ctx, "job-1")
	job.ProcessedChunks = 99

	fresh, _ := cached.GetJob(ctx, "job-1")
	if fresh.ProcessedChunks == 99 {
		t.Error("caller mutation leaked into cached state")
	}
}
