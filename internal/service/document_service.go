package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/ericlam1114/datasynthetix-api/internal/client"
	"github.com/ericlam1114/datasynthetix-api/internal/model"
)

// DocumentService stores source documents and result artifacts. With object
// storage configured everything goes to the bucket; otherwise files land
// under the local data directory so development works without credentials.
type DocumentService struct {
	storage client.StorageClient
	dataDir string
	now     func() time.Time
}

func NewDocumentService(storage client.StorageClient, dataDir string) *DocumentService {
	return &DocumentService{
		storage: storage,
		dataDir: dataDir,
		now:     time.Now,
	}
}

func documentKey(userID, documentID, fileName string) string {
	return fmt.Sprintf("documents/%s/%s/%s", userID, documentID, fileName)
}

func resultKey(userID, jobID, fileName string) string {
	return fmt.Sprintf("results/%s/%s/%s", userID, jobID, fileName)
}

// Upload stores a source document and returns its reference. The returned
// DocumentID is what processing requests use to address the file.
func (s *DocumentService) Upload(ctx context.Context, userID, fileName, contentType string, body io.Reader, size int64) (*model.UploadDocumentResponse, error) {
	documentID := uuid.New().String()
	key := documentKey(userID, documentID, fileName)

	fileURL, err := s.put(ctx, key, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to store document %q: %w", fileName, err)
	}

	return &model.UploadDocumentResponse{
		DocumentID:  documentID,
		FileName:    fileName,
		FileURL:     fileURL,
		ContentType: contentType,
		Size:        size,
		CreatedAt:   s.now(),
	}, nil
}

// LoadDocument fetches a stored document's bytes for processing.
func (s *DocumentService) LoadDocument(ctx context.Context, userID, documentID, fileName string) ([]byte, error) {
	key := documentKey(userID, documentID, fileName)

	if s.storage == nil {
		data, err := os.ReadFile(s.localPath(key))
		if err != nil {
			return nil, fmt.Errorf("failed to read document %q: %w", key, err)
		}
		return data, nil
	}
	return s.storage.Download(ctx, key)
}

// StoreResult persists a finished job's JSONL artifact and returns its URL.
func (s *DocumentService) StoreResult(ctx context.Context, userID, jobID, fileName string, data []byte) (string, error) {
	key := resultKey(userID, jobID, fileName)
	url, err := s.put(ctx, key, bytes.NewReader(data), "application/jsonl")
	if err != nil {
		return "", fmt.Errorf("failed to store result %q: %w", fileName, err)
	}
	return url, nil
}

// GetResultURL returns a time-limited link to a result artifact.
func (s *DocumentService) GetResultURL(ctx context.Context, userID, jobID, fileName string, expiry time.Duration) (string, error) {
	key := resultKey(userID, jobID, fileName)
	if s.storage == nil {
		return s.localPath(key), nil
	}
	return s.storage.GetSignedURL(ctx, key, expiry)
}

// DeleteDocument removes a stored source document.
func (s *DocumentService) DeleteDocument(ctx context.Context, userID, documentID, fileName string) error {
	key := documentKey(userID, documentID, fileName)
	if s.storage == nil {
		if err := os.Remove(s.localPath(key)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to delete document %q: %w", key, err)
		}
		return nil
	}
	return s.storage.Delete(ctx, key)
}

func (s *DocumentService) put(ctx context.Context, key string, body io.Reader, contentType string) (string, error) {
	if s.storage == nil {
		path := s.localPath(key)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return "", err
		}
		f, err := os.Create(path)
		if err != nil {
			return "", err
		}
		defer f.Close()
		if _, err := io.Copy(f, body); err != nil {
			return "", err
		}
		return path, nil
	}
	return s.storage.Upload(ctx, key, body, contentType)
}

func (s *DocumentService) localPath(key string) string {
	return filepath.Join(s.dataDir, filepath.FromSlash(key))
}
