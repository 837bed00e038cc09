package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLedgerFlush writes every cached ledger entity back to the store.
	TaskLedgerFlush = "ledger:flush"
	// TaskLedgerExport runs an incremental CSV export.
	TaskLedgerExport = "ledger:export"
)

// TriggerPayload records who asked for a run.
type TriggerPayload struct {
	Reason string `json:"reason,omitempty"`
}

func (p TriggerPayload) reason() string {
	if p.Reason == "" {
		return "scheduled"
	}
	return p.Reason
}

// NewFlushTask constructs a ledger flush task.
func NewFlushTask(payload TriggerPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerFlush, data), nil
}

// NewExportTask constructs a ledger export task.
func NewExportTask(payload TriggerPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerExport, data), nil
}

func decodeTrigger(t *asynq.Task) (TriggerPayload, error) {
	var payload TriggerPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
