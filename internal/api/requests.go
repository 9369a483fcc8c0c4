package api

type EnqueueTaskRequest struct {
	TaskID      string         `json:"task_id"`
	TaskType    string         `json:"task_type,omitempty"`
	Payload     map[string]any `json:"payload"`
	MaxAttempts int            `json:"max_attempts,omitempty"`
}

type RequeueRequest struct {
	TaskID string `json:"task_id,omitempty"`
}
