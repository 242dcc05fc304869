package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskCompletionSweep re-evaluates completion for every open production order.
	TaskCompletionSweep = "production:completion-sweep"
	// TaskIdempotencyCleanup purges expired idempotency keys.
	TaskIdempotencyCleanup = "production:idempotency-cleanup"
)

// CompletionSweepPayload records why a sweep was requested.
type CompletionSweepPayload struct {
	Reason string `json:"reason"`
}

// NewCompletionSweepTask constructs a completion sweep task.
func NewCompletionSweepTask(reason string) (*asynq.Task, error) {
	data, err := json.Marshal(CompletionSweepPayload{Reason: reason})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCompletionSweep, data), nil
}

// IdempotencyCleanupPayload overrides the configured retention when positive.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs a cleanup task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}
