package notification

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// TaskTypeDeliverLog is the asynq task type for delivering one pending log.
const TaskTypeDeliverLog = "notification:deliver"

// DeliverLogPayload is the serialized payload for a deliver task.
type DeliverLogPayload struct {
	LogID string `json:"log_id"`
}

// NewDeliverLogTask creates an asynq task for delivering a pending log.
func NewDeliverLogTask(logID string) (*asynq.Task, error) {
	payload, err := json.Marshal(DeliverLogPayload{LogID: logID})
	if err != nil {
		return nil, fmt.Errorf("marshaling task payload: %w", err)
	}
	return asynq.NewTask(TaskTypeDeliverLog, payload), nil
}

// ParseDeliverLogPayload deserializes the task payload.
func ParseDeliverLogPayload(data []byte) (*DeliverLogPayload, error) {
	var p DeliverLogPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshaling task payload: %w", err)
	}
	return &p, nil
}
