package worker

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ericlam1114/datasynthetix-api/internal/config"
	"github.com/ericlam1114/datasynthetix-api/internal/extract"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
	"github.com/ericlam1114/datasynthetix-api/internal/pipeline"
	"github.com/ericlam1114/datasynthetix-api/internal/service"
	"github.com/ericlam1114/datasynthetix-api/internal/store"
)

func TestRunBatch_PartialFailure(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cfg := workerConfig()
	docs := service.NewDocumentService(nil, t.TempDir())
	runner := NewProcessWorker(fs, docs, extract.NewDocconvExtractor(), pipeline.New(nil, config.AIConfig{}), nil, cfg)
	bw := NewBatchWorker(fs, runner, cfg)
	ctx := context.Background()

	// Five documents; the third references a document that was never
	// uploaded, so it fails while the others complete.
	var payloads []model.ProcessTaskPayload
	for i := 1; i <= 5; i++ {
		jobID := fmt.Sprintf("job-%d", i)
		fileName := fmt.Sprintf("doc-%d.pdf", i)
		seedJob(t, fs, jobID, "user-1", fileName)

		p := model.ProcessTaskPayload{
			JobID:    jobID,
			UserID:   "user-1",
			FileName: fileName,
		}
		if i == 3 {
			p.DocumentID = "no-such-document"
		} else {
			p.Text = "Employees must complete annual safety training."
		}
		payloads = append(payloads, p)
	}

	batch := &model.BatchJob{
		ID:             "batch-1",
		UserID:         "user-1",
		Status:         model.JobStatusProcessing,
		TotalDocuments: 5,
	}
	if err := fs.CreateBatch(ctx, batch); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	err = bw.RunBatch(ctx, model.BatchTaskPayload{
		BatchID:     "batch-1",
		UserID:      "user-1",
		Concurrency: 2,
		Documents:   payloads,
	})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	got, err := fs.GetBatch(ctx, "batch-1")
	if err != nil {
		t.Fatalf("GetBatch: %v", err)
	}
	if got.Status != model.JobStatusComplete {
		t.Errorf("expected batch complete despite one failure, got %s", got.Status)
	}
	if got.SuccessfulDocuments != 4 {
		t.Errorf("expected 4 successful documents, got %d", got.SuccessfulDocuments)
	}
	if got.CompletedAt == nil {
		t.Error("completedAt not set")
	}
	if len(got.Documents) != 5 {
		t.Fatalf("expected 5 document results, got %d", len(got.Documents))
	}

	for _, doc := range got.Documents {
		if doc.FileName == "doc-3.pdf" {
			if doc.Success {
				t.Error("failed document reported successful")
			}
			if doc.Error == "" {
				t.Error("failed document has no error")
			}
		} else if !doc.Success || !doc.Completed {
			t.Errorf("document %s did not complete: %+v", doc.FileName, doc)
		}
	}

	// The failed document's own job carries the error state.
	job3, _ := fs.GetJob(ctx, "job-3")
	if job3.Status != model.JobStatusError {
		t.Errorf("expected job-3 in error state, got %s", job3.Status)
	}
}

func TestRunBatch_AllFailedIsError(t *testing.T) {
	fs, err := store.NewFileStore(t.TempDir(), time.Hour)
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	cfg := workerConfig()
	docs := service.NewDocumentService(nil, t.TempDir())
	runner := NewProcessWorker(fs, docs, extract.NewDocconvExtractor(), pipeline.New(nil, config.AIConfig{}), nil, cfg)
	bw := NewBatchWorker(fs, runner, cfg)
	ctx := context.Background()

	seedJob(t, fs, "job-1", "user-1", "doc-1.pdf")
	if err := fs.CreateBatch(ctx, &model.BatchJob{ID: "batch-1", UserID: "user-1", Status: model.JobStatusProcessing, TotalDocuments: 1}); err != nil {
		t.Fatalf("CreateBatch: %v", err)
	}

	err = bw.RunBatch(ctx, model.BatchTaskPayload{
		BatchID: "batch-1",
		UserID:  "user-1",
		Documents: []model.ProcessTaskPayload{
			{JobID: "job-1", UserID: "user-1", FileName: "doc-1.pdf", DocumentID: "no-such-document"},
		},
	})
	if err != nil {
		t.Fatalf("RunBatch: %v", err)
	}

	got, _ := fs.GetBatch(ctx, "batch-1")
	if got.Status != model.JobStatusError {
		t.Errorf("expected batch error when every document fails, got %s", got.Status)
	}
	if got.SuccessfulDocuments != 0 {
		t.Errorf("expected 0 successful documents, got %d", got.SuccessfulDocuments)
	}
}
