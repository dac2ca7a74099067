package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskDiscrepancyScan flags inventory positions in impossible states.
	TaskDiscrepancyScan = "inventory:discrepancy_scan"
	// TaskIdempotencyCleanup prunes processed idempotency keys.
	TaskIdempotencyCleanup = "inventory:idempotency_cleanup"
)

// DiscrepancyScanPayload narrows the scan to one location when set.
type DiscrepancyScanPayload struct {
	LocationID int64 `json:"location_id,omitempty"`
}

// NewDiscrepancyScanTask constructs an Asynq task.
func NewDiscrepancyScanTask(payload DiscrepancyScanPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskDiscrepancyScan, data), nil
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskIdempotencyCleanup, nil)
}
