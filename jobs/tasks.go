package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockScan is the task type for the low-stock scan.
	TaskStockScan = "stock:scan"
)

// Stock scan triggers.
const (
	ReasonScheduled = "scheduled"
	ReasonReception = "reception"
)

// StockScanPayload describes why a scan was requested.
type StockScanPayload struct {
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
}

// NewStockScanTask constructs an Asynq task.
func NewStockScanTask(reason string, at time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(StockScanPayload{Reason: reason, RequestedAt: at.UTC()})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockScan, data), nil
}
