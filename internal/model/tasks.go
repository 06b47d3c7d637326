package model

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// NewProcessTask builds the asynq task for a single-document job.
func NewProcessTask(payload ProcessTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal process payload: %w", err)
	}
	return asynq.NewTask(TaskTypeProcess, data), nil
}

// NewBatchTask builds the asynq task for a batch of documents.
func NewBatchTask(payload BatchTaskPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal batch payload: %w", err)
	}
	return asynq.NewTask(TaskTypeBatch, data), nil
}
