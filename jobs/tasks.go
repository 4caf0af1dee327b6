// Package jobs hosts the asynq task definitions and worker runtime.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskConsolidateRefresh recalculates consolidation snapshots.
	TaskConsolidateRefresh = "consol:refresh"
)

// ConsolidateRefreshPayload configures the scope of one refresh run.
// TenantID 0 means every active tenant; an empty Month means the current
// calendar month at execution time.
type ConsolidateRefreshPayload struct {
	TenantID int64  `json:"tenant_id"`
	Month    string `json:"month"`
}

// NewConsolidateRefreshTask creates an Asynq task for refreshing snapshots.
func NewConsolidateRefreshTask(tenantID int64, month string) (*asynq.Task, error) {
	payload := ConsolidateRefreshPayload{TenantID: tenantID, Month: month}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskConsolidateRefresh, body, asynq.Queue(QueueDefault)), nil
}
