// Package cli bundles operational helpers for managing background jobs.
package cli

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/fabrica-erp/fabrica/jobs"
)

// TaskEnqueuer is the enqueue capability of an asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// QueueInspector is the observability capability of an asynq.Inspector.
type QueueInspector interface {
	GetQueueInfo(qname string) (*asynq.QueueInfo, error)
	ListScheduledTasks(qname string, opts ...asynq.ListOption) ([]*asynq.TaskInfo, error)
}

// Dial opens an Asynq client and inspector against one Redis endpoint.
func Dial(redisAddr string) (*asynq.Client, *asynq.Inspector) {
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	return asynq.NewClient(opts), asynq.NewInspector(opts)
}

// QueueStats summarises the default queue state.
type QueueStats struct {
	Queue     string   `json:"queue"`
	Pending   int      `json:"pending"`
	Active    int      `json:"active"`
	Scheduled int      `json:"scheduled"`
	Retry     int      `json:"retry"`
	Upcoming  []string `json:"upcoming,omitempty"`
}

func queueStats(inspector QueueInspector) (QueueStats, error) {
	info, err := inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Retry = info.Retry
	}
	scheduled, err := inspector.ListScheduledTasks(jobs.QueueDefault, asynq.PageSize(5), asynq.Page(1))
	if err != nil {
		return QueueStats{}, err
	}
	for _, task := range scheduled {
		stats.Upcoming = append(stats.Upcoming, task.ID)
	}
	return stats, nil
}
