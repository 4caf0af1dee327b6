package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hibiken/asynq"

	"github.com/fabrica-erp/fabrica/internal/shared"
	"github.com/fabrica-erp/fabrica/jobs"
)

// ConsolOpsCLI exposes operational commands for the consolidation jobs.
type ConsolOpsCLI struct {
	enqueuer  TaskEnqueuer
	inspector QueueInspector
}

// NewConsolOpsCLI constructs the command helper from an enqueue and an
// inspect capability, normally an asynq.Client and asynq.Inspector.
func NewConsolOpsCLI(enqueuer TaskEnqueuer, inspector QueueInspector) *ConsolOpsCLI {
	return &ConsolOpsCLI{enqueuer: enqueuer, inspector: inspector}
}

// RefreshOptions scopes one ad-hoc refresh enqueue.
type RefreshOptions struct {
	TenantID   int64
	Month      string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// RefreshSummary is the machine-readable result of RefreshCommand.
type RefreshSummary struct {
	TaskID   string `json:"task_id"`
	Queue    string `json:"queue"`
	TenantID int64  `json:"tenant_id"`
	Month    string `json:"month"`
}

// RefreshCommand enqueues a snapshot refresh for one tenant, or every active
// tenant when TenantID is zero. An empty month means the current calendar
// month at execution time. Returns a process exit code.
func (c *ConsolOpsCLI) RefreshCommand(ctx context.Context, opts RefreshOptions) int {
	if c == nil || c.enqueuer == nil {
		fmt.Fprintln(opts.Stderr, "consol cli: client not configured")
		return 1
	}
	if opts.Month != "" {
		if err := shared.ValidateMonth(opts.Month); err != nil {
			fmt.Fprintf(opts.Stderr, "invalid month %q: expected YYYY-MM\n", opts.Month)
			return 1
		}
	}
	task, err := jobs.NewConsolidateRefreshTask(opts.TenantID, opts.Month)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "build refresh task: %v\n", err)
		return 1
	}
	info, err := c.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(3))
	if err != nil {
		fmt.Fprintf(opts.Stderr, "enqueue refresh: %v\n", err)
		return 2
	}
	summary := RefreshSummary{TaskID: info.ID, Queue: info.Queue, TenantID: opts.TenantID, Month: opts.Month}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(summary)
		return 0
	}
	scope := fmt.Sprintf("tenant %d", summary.TenantID)
	if summary.TenantID == 0 {
		scope = "all active tenants"
	}
	month := summary.Month
	if month == "" {
		month = "current month"
	}
	fmt.Fprintf(opts.Stdout, "enqueued task %s on queue %s (%s, %s)\n", summary.TaskID, summary.Queue, scope, month)
	return 0
}

// QueueOptions controls the queue inspection output.
type QueueOptions struct {
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// QueueCommand reports pending/active/scheduled/retry counts for the default
// queue along with the next scheduled task ids. Returns a process exit code.
func (c *ConsolOpsCLI) QueueCommand(_ context.Context, opts QueueOptions) int {
	if c == nil || c.inspector == nil {
		fmt.Fprintln(opts.Stderr, "consol cli: inspector not configured")
		return 1
	}
	stats, err := queueStats(c.inspector)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "inspect queue: %v\n", err)
		return 2
	}
	if opts.JSONOutput {
		_ = json.NewEncoder(opts.Stdout).Encode(stats)
		return 0
	}
	fmt.Fprintf(opts.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	for _, id := range stats.Upcoming {
		fmt.Fprintf(opts.Stdout, "  scheduled: %s\n", id)
	}
	return 0
}
