package models

import "time"

// Outbox task types.
const (
	TaskRealtime     = "realtime"
	TaskLedgerUpsert = "ledger_upsert"
)

// Outbox task statuses.
const (
	TaskPending    = "pending"
	TaskProcessing = "processing"
	TaskRetry      = "retry"
	TaskCompleted  = "completed"
	TaskFailed     = "failed"
)

// OutboxTask is a side effect recorded in the same transaction as the state change.
type OutboxTask struct {
	ID          int64      `json:"id"`
	TaskType    string     `json:"task_type"`
	AggregateID int64      `json:"aggregate_id"`
	Payload     string     `json:"payload"`
	Status      string     `json:"status"`
	RetryCount  int        `json:"retry_count"`
	LastError   *string    `json:"last_error"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at"`
	NextRetryAt *time.Time `json:"next_retry_at"`
}

// IdempotencyRecord stores the first response produced for an Idempotency-Key.
type IdempotencyRecord struct {
	Key        string    `json:"key"`
	UserID     int64     `json:"user_id"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	Body       []byte    `json:"body"`
	Completed  bool      `json:"completed"`
	CreatedAt  time.Time `json:"created_at"`
}
