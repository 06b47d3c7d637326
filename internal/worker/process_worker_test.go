package worker

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/extract"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/pipeline"
	"github.com/ericlam1114/datasynthetix-api/internal/service"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
)

// brokenCompleter fails every chat call so all pipeline stages error.
type brokenCompleter struct{}

func (brokenCompleter) ChatCompletion(ctx context.Context, modelName, system, user string) (string, error) {
	return "", errors.New("inference endpoint unavailable")
}

func (brokenCompleter) IsConfigured() bool { return true }

func workerConfig() *config.Config {
	return &config.Config{
		Processing: config.ProcessingConfig{
			ChunkSize:        1000,
			Overlap:          100,
			ChunkTimeout:     time.Minute,
			DocumentTimeout:  10 * time.Minute,
			BatchTimeout:     30 * time.Minute,
			BatchConcurrency: 2,
			CreditsPerChunk:  1,
			StartingCredits:  1000,
		},
	}
}

func newTestWorker(t *testing.T, p *pipeline.Pipeline) (*ProcessWorker, *store.FileStore) {
	t.Helper()
	fs, err := store.NewFileStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	docs := service.NewDocumentService(nil, t.TempDir())
	w := NewProcessWorker(fs, docs, extract.NewDocconvExtractor(), p, nil, workerConfig())
	return w, fs
}

func seedJob(t *testing.T, fs *store.FileStore, jobID, userID, fileName string) {
	t.Helper()
	err := fs.CreateJob(context.Background(), &model.ProcessingJob{
		ID:       jobID,
		UserID:   userID,
		FileName: fileName,
		Status:   model.JobStatusUploading,
	})
	if err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
}

func TestRunDocument_CompletesWithArtifact(t *testing.T) {
	w, fs := newTestWorker(t, pipeline.New(nil, config.AIConfig{}))
	ctx := context.Background()
	seedJob(t, fs, "job-1", "user-1", "policy.pdf")

	// ~2500 runes with default chunking gives three chunks.
	text := strings.Repeat("Employees must complete annual safety training. ", 55)
	err := w.RunDocument(ctx, model.ProcessTaskPayload{
		JobID:    "job-1",
		UserID:   "user-1",
		FileName: "policy.pdf",
		Text:     text,
	})
	if err != nil {
		t.Fatalf("RunDocument: %v", err)
	}

	job, err := fs.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.Status != model.JobStatusComplete {
		t.Fatalf("expected complete, got %s (%s)", job.Status, job.ErrorMessage)
	}
	if job.Progress != 100 || job.ProcessedChunks != job.TotalChunks {
		t.Errorf("completion not normalized: %d/%d %d%%", job.ProcessedChunks, job.TotalChunks, job.Progress)
	}
	if job.TotalChunks < 2 {
		t.Errorf("expected multiple chunks, got %d", job.TotalChunks)
	}
	if job.Result == nil {
		t.Fatal("no result recorded")
	}
	if job.Result.FileName != "policy.jsonl" {
		t.Errorf("unexpected result file %q", job.Result.FileName)
	}
	if job.Result.EntryCount != job.TotalChunks {
		t.Errorf("expected %d entries, got %d", job.TotalChunks, job.Result.EntryCount)
	}
	if job.CreditsUsed != job.TotalChunks {
		t.Errorf("expected %d credits used, got %d", job.TotalChunks, job.CreditsUsed)
	}
}

func TestRunDocument_AllChunksFailedIsError(t *testing.T) {
	w, fs := newTestWorker(t, pipeline.New(brokenCompleter{}, config.AIConfig{}))
	ctx := context.Background()
	seedJob(t, fs, "job-1", "user-1", "policy.pdf")

	err := w.RunDocument(ctx, model.ProcessTaskPayload{
		JobID:    "job-1",
		UserID:   "user-1",
		FileName: "policy.pdf",
		Text:     "Employees must complete annual safety training.",
	})
	if err == nil {
		t.Fatal("expected error when every chunk fails")
	}

	job, _ := fs.GetJob(ctx, "job-1")
	if job.Status != model.JobStatusError {
		t.Errorf("expected error status, got %s", job.Status)
	}
	if job.ErrorMessage == "" {
		t.Error("no error message recorded")
	}
	if job.FailedChunks == 0 {
		t.Error("failed chunks not counted")
	}
}

func TestRunDocument_MissingDocumentIsError(t *testing.T) {
	w, fs := newTestWorker(t, pipeline.New(nil, config.AIConfig{}))
	ctx := context.Background()
	seedJob(t, fs, "job-1", "user-1", "missing.pdf")

	err := w.RunDocument(ctx, model.ProcessTaskPayload{
		JobID:      "job-1",
		UserID:     "user-1",
		FileName:   "missing.pdf",
		DocumentID: "no-such-document",
	})
	if err == nil {
		t.Fatal("expected error for missing document")
	}

	job, _ := fs.GetJob(ctx, "job-1")
	if job.Status != model.JobStatusError {
		t.Errorf("expected error status, got %s", job.Status)
	}
}

func TestRunDocument_CancelledJobStopsWork(t *testing.T) {
	w, fs := newTestWorker(t, pipeline.New(nil, config.AIConfig{}))
	ctx := context.Background()
	seedJob(t, fs, "job-1", "user-1", "policy.pdf")

	if _, err := fs.CancelJob(ctx, "job-1"); err != nil {
		t.Fatalf("CancelJob: %v", err)
	}

	err := w.RunDocument(ctx, model.ProcessTaskPayload{
		JobID:    "job-1",
		UserID:   "user-1",
		FileName: "policy.pdf",
		Text:     "Employees must complete annual safety training.",
	})
	if err != nil {
		t.Fatalf("RunDocument on cancelled job: %v", err)
	}

	job, _ := fs.GetJob(ctx, "job-1")
	if job.Status != model.JobStatusCancelled {
		t.Errorf("cancelled job resurrected to %s", job.Status)
	}
	if job.ProcessedChunks != 0 {
		t.Errorf("cancelled job still processed %d chunks", job.ProcessedChunks)
	}
}
