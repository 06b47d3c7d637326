package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// activeTTL bounds how long a non-terminal job record may linger; a job
// that never reaches a terminal state still expires eventually.
const activeTTL = 24 * time.Hour

// RedisStore is the Redis-backed durable store. Each job is one JSON blob
// under job:<id>; a per-user filename index supports lookups by file.
// Pruning of terminal records is TTL-based: writing a terminal state
// shortens the key's TTL to the prune age.
type RedisStore struct {
	redis    *redis.Client
	pruneAge time.Duration
	now      func() time.Time
}

func NewRedisStore(redisClient *redis.Client, pruneAge time.Duration) *RedisStore {
	if pruneAge <= 0 {
		pruneAge = time.Hour
	}
	return &RedisStore{redis: redisClient, pruneAge: pruneAge, now: time.Now}
}

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func fileIndexKey(userID, fileName string) string {
	return fmt.Sprintf("jobindex:%s:%s", userID, fileName)
}

func batchKey(batchID string) string {
	return fmt.Sprintf("batch:%s", batchID)
}

func (s *RedisStore) ttlFor(job *model.ProcessingJob) time.Duration {
	if job.Status.IsTerminal() {
		return s.pruneAge
	}
	return activeTTL
}

func (s *RedisStore) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	if job.LastProgressChange.IsZero() {
		job.LastProgressChange = job.CreatedAt
	}
	job.Progress = computeProgress(job)

	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, s.ttlFor(job))
	pipe.Set(ctx, fileIndexKey(job.UserID, job.FileName), job.ID, activeTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.ID, err)
	}
	return nil
}

func (s *RedisStore) GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read job %s: %w", jobID, err)
	}

	var job model.ProcessingJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("corrupt job record %s: %w", jobID, err)
	}
	return &job, nil
}

func (s *RedisStore) GetJobByFileName(ctx context.Context, userID, fileName string) (*model.ProcessingJob, error) {
	jobID, err := s.redis.Get(ctx, fileIndexKey(userID, fileName)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve job for %q: %w", fileName, err)
	}
	return s.GetJob(ctx, jobID)
}

// UpdateJob applies the patch inside a WATCH transaction so two racing
// stage-completion callbacks can't interleave a stale read with a write;
// the monotonic processedChunks rule in applyPatch then resolves ordering.
func (s *RedisStore) UpdateJob(ctx context.Context, jobID string, patch model.JobPatch) (*model.ProcessingJob, error) {
	key := jobKey(jobID)
	var updated *model.ProcessingJob

	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		var job model.ProcessingJob
		if err := json.Unmarshal(data, &job); err != nil {
			return fmt.Errorf("corrupt job record %s: %w", jobID, err)
		}

		if !applyPatch(&job, patch, s.now()) {
			updated = &job
			return nil
		}

		out, err := json.Marshal(&job)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, out, s.ttlFor(&job))
			return nil
		})
		if err == nil {
			updated = &job
		}
		return err
	}

	// Retry a bounded number of times on write conflicts.
	for i := 0; i < 5; i++ {
		err := s.redis.Watch(ctx, txn, key)
		if err == nil {
			return updated, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("failed to update job %s: too many write conflicts", jobID)
}

func (s *RedisStore) CancelJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	job, err := s.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}
	cancelled := model.JobStatusCancelled
	return s.UpdateJob(ctx, jobID, model.JobPatch{Status: &cancelled})
}

func (s *RedisStore) DeleteJob(ctx context.Context, jobID string) error {
	if err := s.redis.Del(ctx, jobKey(jobID)).Err(); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

func (s *RedisStore) CreateBatch(ctx context.Context, batch *model.BatchJob) error {
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = s.now()
	}
	return s.saveBatch(ctx, batch)
}

func (s *RedisStore) GetBatch(ctx context.Context, batchID string) (*model.BatchJob, error) {
	data, err := s.redis.Get(ctx, batchKey(batchID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read batch %s: %w", batchID, err)
	}

	var batch model.BatchJob
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("corrupt batch record %s: %w", batchID, err)
	}
	return &batch, nil
}

func (s *RedisStore) UpdateBatch(ctx context.Context, batch *model.BatchJob) error {
	return s.saveBatch(ctx, batch)
}

func (s *RedisStore) saveBatch(ctx context.Context, batch *model.BatchJob) error {
	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to marshal batch %s: %w", batch.ID, err)
	}
	ttl := activeTTL
	if batch.Status.IsTerminal() {
		ttl = s.pruneAge
	}
	if err := s.redis.Set(ctx, batchKey(batch.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save batch %s: %w", batch.ID, err)
	}
	return nil
}
