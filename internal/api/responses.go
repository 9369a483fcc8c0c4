package api

import (
	"time"

	"github.com/duraq/duraq/internal/store"
)

type EnqueueTaskResponse struct {
	TaskID   string `json:"task_id"`
	Enqueued bool   `json:"enqueued"`
}

type DeadletterItemResponse struct {
	TaskID         string    `json:"task_id"`
	AttemptCount   int       `json:"attempt_count"`
	MaxAttempts    int       `json:"max_attempts"`
	FinalError     string    `json:"final_error"`
	DeadletteredAt time.Time `json:"deadlettered_at"`
}

type DeadletterListResponse struct {
	Items []DeadletterItemResponse `json:"items"`
}

type RequeueResponse struct {
	Requeued int `json:"requeued"`
}

func deadletterItem(entry store.DeadletterEntry) DeadletterItemResponse {
	return DeadletterItemResponse{
		TaskID:         entry.Task.TaskID,
		AttemptCount:   entry.Task.AttemptCount,
		MaxAttempts:    entry.Task.MaxAttempts,
		FinalError:     entry.FinalError,
		DeadletteredAt: entry.DeadletteredAt,
	}
}
