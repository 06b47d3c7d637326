package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// FileStore is the file-backed durable store: one JSON file per job under
// <dir>/jobs and per batch under <dir>/batches. It serves deployments
// without Redis and the test suite. Writes go through a single mutex, which
// also provides the atomic monotonic-increment protection on
// processedChunks.
type FileStore struct {
	dir      string
	pruneAge time.Duration
	mu       sync.Mutex
	now      func() time.Time
}

func NewFileStore(dir string, pruneAge time.Duration) (*FileStore, error) {
	for _, sub := range []string{"jobs", "batches"} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	if pruneAge <= 0 {
		pruneAge = time.Hour
	}
	return &FileStore{dir: dir, pruneAge: pruneAge, now: time.Now}, nil
}

// SetClock overrides the store's time source. Tests only.
func (s *FileStore) SetClock(now func() time.Time) {
	s.now = now
}

func (s *FileStore) jobPath(jobID string) string {
	return filepath.Join(s.dir, "jobs", jobID+".json")
}

func (s *FileStore) batchPath(batchID string) string {
	return filepath.Join(s.dir, "batches", batchID+".json")
}

func (s *FileStore) CreateJob(ctx context.Context, job *model.ProcessingJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now()
	}
	if job.LastProgressChange.IsZero() {
		job.LastProgressChange = job.CreatedAt
	}
	job.Progress = computeProgress(job)
	return s.writeJob(job)
}

func (s *FileStore) GetJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readJob(jobID)
}

func (s *FileStore) GetJobByFileName(ctx context.Context, userID, fileName string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, "jobs"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan job store: %w", err)
	}

	var latest *model.ProcessingJob
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		job, err := s.readJob(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			continue
		}
		if job.UserID != userID || job.FileName != fileName {
			continue
		}
		if latest == nil || job.CreatedAt.After(latest.CreatedAt) {
			latest = job
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *FileStore) UpdateJob(ctx context.Context, jobID string, patch model.JobPatch) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.readJob(jobID)
	if err != nil {
		return nil, err
	}

	if applyPatch(job, patch, s.now()) {
		if err := s.writeJob(job); err != nil {
			return nil, err
		}
		s.pruneLocked()
	}
	return job, nil
}

func (s *FileStore) CancelJob(ctx context.Context, jobID string) (*model.ProcessingJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, err := s.readJob(jobID)
	if err != nil {
		return nil, err
	}
	if job.Status.IsTerminal() {
		return job, nil
	}

	cancelled := model.JobStatusCancelled
	applyPatch(job, model.JobPatch{Status: &cancelled}, s.now())
	if err := s.writeJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func (s *FileStore) DeleteJob(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.jobPath(jobID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete job %s: %w", jobID, err)
	}
	return nil
}

func (s *FileStore) CreateBatch(ctx context.Context, batch *model.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if batch.CreatedAt.IsZero() {
		batch.CreatedAt = s.now()
	}
	return s.writeBatch(batch)
}

func (s *FileStore) GetBatch(ctx context.Context, batchID string) (*model.BatchJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.batchPath(batchID))
	if err != nil {
		if os.IsNotExist(err) {
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

func (s *FileStore) UpdateBatch(ctx context.Context, batch *model.BatchJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeBatch(batch)
}

// readJob expects s.mu held.
func (s *FileStore) readJob(jobID string) (*model.ProcessingJob, error) {
	data, err := os.ReadFile(s.jobPath(jobID))
	if err != nil {
		if os.IsNotExist(err) {
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

// writeJob expects s.mu held. The record is written to a temp file and
// renamed so a crash never leaves a half-written job.
func (s *FileStore) writeJob(job *model.ProcessingJob) error {
	data, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal job %s: %w", job.ID, err)
	}
	tmp := s.jobPath(job.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write job %s: %w", job.ID, err)
	}
	return os.Rename(tmp, s.jobPath(job.ID))
}

func (s *FileStore) writeBatch(batch *model.BatchJob) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal batch %s: %w", batch.ID, err)
	}
	tmp := s.batchPath(batch.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write batch %s: %w", batch.ID, err)
	}
	return os.Rename(tmp, s.batchPath(batch.ID))
}

// pruneLocked removes terminal job records older than pruneAge so the store
// never grows without bound. Runs on every successful write; expects s.mu
// held.
func (s *FileStore) pruneLocked() {
	entries, err := os.ReadDir(filepath.Join(s.dir, "jobs"))
	if err != nil {
		return
	}
	cutoff := s.now().Add(-s.pruneAge)
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		jobID := strings.TrimSuffix(entry.Name(), ".json")
		job, err := s.readJob(jobID)
		if err != nil {
			continue
		}
		if !job.Status.IsTerminal() || job.CompletedAt == nil {
			continue
		}
		if job.CompletedAt.Before(cutoff) {
			if err := os.Remove(s.jobPath(jobID)); err == nil {
				log.Printf("store: pruned terminal job %s (%s, completed %s)", jobID, job.Status, job.CompletedAt.Format(time.RFC3339))
			}
		}
	}
}
