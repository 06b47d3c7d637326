package store

import (
	"context"
	"sync"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// CachedStore wraps a durable JobStore with a short-TTL read cache so the
// status endpoint can absorb aggressive pollers without a durable read per
// request. Writes go straight through and refresh the cached entry; the
// durable record is always authoritative.
type CachedStore struct {
	inner JobStore
	ttl   time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
	now   func() time.Time
}

type cacheEntry struct {
	job       *model.ProcessingJob
	fetchedAt time.Time
}

func NewCachedStore(inner JobStore, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 5 * time.Second
	}
	return &CachedStore{
		inner: inner,
		ttl:   ttl,
		cache: make(map[string]cacheEntry),
		now:   time.Now,
	}
}

func (s *CachedStore) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	if err := s.inner.CreateJob(ctx, job); err != nil {
		return err
	}
	s.put(job)
	return nil
}

func (s *CachedStore) GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	entry, ok := s.cache[jobID]
	if ok && s.now().Sub(entry.fetchedAt) < s.ttl {
		job := cloneJob(entry.job)
		s.mu.Unlock()
		return job, nil
	}
	s.mu.Unlock()

	job, err := s.inner.GetJob(ctx, jobID)
	if err != nil {
		if err == ErrNotFound {
			s.Invalidate(jobID)
		}
		return nil, err
	}
	s.put(job)
	return job, nil
}

// GetJobByFileName is never cached: the filename-to-job binding can move to
// a newer job at any time, and status polling goes by job ID anyway.
func (s *CachedStore) GetJobByFileName(ctx context.Context, userID, fileName string) (*model.ProcessingJob, error) {
	return s.inner.GetJobByFileName(ctx, userID, fileName)
}

func (s *CachedStore) UpdateJob(ctx context.Context, jobID string, patch model.JobPatch) (*model.ProcessingJob, error) {
	job, err := s.inner.UpdateJob(ctx, jobID, patch)
	if err != nil {
		return nil, err
	}
	s.put(job)
	return job, nil
}

func (s *CachedStore) CancelJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	job, err := s.inner.CancelJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	s.put(job)
	return job, nil
}

func (s *CachedStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.inner.DeleteJob(ctx, jobID); err != nil {
		return err
	}
	s.Invalidate(jobID)
	return nil
}

// Invalidate drops a job from the cache so the next read hits the durable
// store.
func (s *CachedStore) Invalidate(jobID string) {
	s.mu.Lock()
	delete(s.cache, jobID)
	s.mu.Unlock()
}

func (s *CachedStore) put(job *model.ProcessingJob) {
	s.mu.Lock()
	s.cache[job.ID] = cacheEntry{job: cloneJob(job), fetchedAt: s.now()}
	s.mu.Unlock()
}

func (s *CachedStore) CreateBatch(ctx context.Context, batch *model.BatchJob) error {
	return s.inner.CreateBatch(ctx, batch)
}

func (s *CachedStore) GetBatch(ctx context.Context, batchID string) (*model.BatchJob, error) {
	return s.inner.GetBatch(ctx, batchID)
}

func (s *CachedStore) UpdateBatch(ctx context.Context, batch *model.BatchJob) error {
	return s.inner.UpdateBatch(ctx, batch)
}
