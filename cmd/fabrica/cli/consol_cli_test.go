package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/fabrica-erp/fabrica/jobs"
)

type stubEnqueuer struct {
	task *asynq.Task
	opts []asynq.Option
	err  error
}

func (s *stubEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.task = task
	s.opts = opts
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{ID: "task-1", Queue: jobs.QueueDefault, Type: task.Type()}, nil
}

type stubInspector struct {
	info      *asynq.QueueInfo
	scheduled []*asynq.TaskInfo
	err       error
}

func (s *stubInspector) GetQueueInfo(string) (*asynq.QueueInfo, error) {
	return s.info, s.err
}

func (s *stubInspector) ListScheduledTasks(string, ...asynq.ListOption) ([]*asynq.TaskInfo, error) {
	return s.scheduled, nil
}

func TestRefreshCommandEnqueuesTask(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	cli := NewConsolOpsCLI(enqueuer, &stubInspector{})
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)

	exitCode := cli.RefreshCommand(context.Background(), RefreshOptions{
		TenantID:   7,
		Month:      "2026-06",
		JSONOutput: true,
		Stdout:     stdout,
		Stderr:     stderr,
	})

	require.Zero(t, exitCode)
	require.Empty(t, stderr.String())

	var summary RefreshSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "task-1", summary.TaskID)
	require.Equal(t, jobs.QueueDefault, summary.Queue)
	require.Equal(t, int64(7), summary.TenantID)
	require.Equal(t, "2026-06", summary.Month)

	require.NotNil(t, enqueuer.task)
	require.Equal(t, jobs.TaskConsolidateRefresh, enqueuer.task.Type())
	var payload jobs.ConsolidateRefreshPayload
	require.NoError(t, json.Unmarshal(enqueuer.task.Payload(), &payload))
	require.Equal(t, int64(7), payload.TenantID)
	require.Equal(t, "2026-06", payload.Month)
}

func TestRefreshCommandAllTenantsCurrentMonth(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	cli := NewConsolOpsCLI(enqueuer, &stubInspector{})
	stdout := new(bytes.Buffer)

	exitCode := cli.RefreshCommand(context.Background(), RefreshOptions{Stdout: stdout, Stderr: new(bytes.Buffer)})

	require.Zero(t, exitCode)
	require.Contains(t, stdout.String(), "all active tenants")
	require.Contains(t, stdout.String(), "current month")

	var payload jobs.ConsolidateRefreshPayload
	require.NoError(t, json.Unmarshal(enqueuer.task.Payload(), &payload))
	require.Zero(t, payload.TenantID)
	require.Empty(t, payload.Month)
}

func TestRefreshCommandRejectsInvalidMonth(t *testing.T) {
	enqueuer := &stubEnqueuer{}
	cli := NewConsolOpsCLI(enqueuer, &stubInspector{})
	stderr := new(bytes.Buffer)

	exitCode := cli.RefreshCommand(context.Background(), RefreshOptions{
		Month:  "June 2026",
		Stdout: new(bytes.Buffer),
		Stderr: stderr,
	})

	require.Equal(t, 1, exitCode)
	require.Contains(t, stderr.String(), "invalid month")
	require.Nil(t, enqueuer.task)
}

func TestRefreshCommandReportsEnqueueFailure(t *testing.T) {
	enqueuer := &stubEnqueuer{err: errors.New("redis down")}
	cli := NewConsolOpsCLI(enqueuer, &stubInspector{})
	stderr := new(bytes.Buffer)

	exitCode := cli.RefreshCommand(context.Background(), RefreshOptions{
		TenantID: 7,
		Month:    "2026-06",
		Stdout:   new(bytes.Buffer),
		Stderr:   stderr,
	})

	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "redis down")
}

func TestQueueCommandReportsStats(t *testing.T) {
	inspector := &stubInspector{
		info: &asynq.QueueInfo{Queue: jobs.QueueDefault, Pending: 2, Active: 1, Scheduled: 3, Retry: 1},
		scheduled: []*asynq.TaskInfo{
			{ID: "sched-1", Queue: jobs.QueueDefault, Type: jobs.TaskConsolidateRefresh},
		},
	}
	cli := NewConsolOpsCLI(&stubEnqueuer{}, inspector)
	stdout := new(bytes.Buffer)

	exitCode := cli.QueueCommand(context.Background(), QueueOptions{JSONOutput: true, Stdout: stdout, Stderr: new(bytes.Buffer)})

	require.Zero(t, exitCode)
	var stats QueueStats
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &stats))
	require.Equal(t, jobs.QueueDefault, stats.Queue)
	require.Equal(t, 2, stats.Pending)
	require.Equal(t, 1, stats.Active)
	require.Equal(t, 3, stats.Scheduled)
	require.Equal(t, 1, stats.Retry)
	require.Equal(t, []string{"sched-1"}, stats.Upcoming)
}

func TestQueueCommandReportsInspectorFailure(t *testing.T) {
	cli := NewConsolOpsCLI(&stubEnqueuer{}, &stubInspector{err: errors.New("redis down")})
	stderr := new(bytes.Buffer)

	exitCode := cli.QueueCommand(context.Background(), QueueOptions{Stdout: new(bytes.Buffer), Stderr: stderr})

	require.Equal(t, 2, exitCode)
	require.Contains(t, stderr.String(), "redis down")
}
