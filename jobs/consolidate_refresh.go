package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/fabrica-erp/fabrica/internal/consol"
	jobmetrics "github.com/fabrica-erp/fabrica/internal/jobs"
	"github.com/fabrica-erp/fabrica/internal/shared"
)

// systemActorID stamps scheduler-initiated recalculations.
const systemActorID = 0

// Recalculator rebuilds the consolidation snapshot for one tenant and month.
type Recalculator interface {
	Recalculate(ctx context.Context, tenantID int64, month string, userID int64, force bool) (consol.Snapshot, error)
}

// TenantSource lists the tenants eligible for the scheduled refresh.
type TenantSource interface {
	ActiveTenantIDs(ctx context.Context) ([]int64, error)
}

// ConsolidateRefreshJob coordinates the refresh workflow.
type ConsolidateRefreshJob struct {
	Service Recalculator
	Tenants TenantSource
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewConsolidateRefreshJob constructs the job handler.
func NewConsolidateRefreshJob(service Recalculator, tenants TenantSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *ConsolidateRefreshJob {
	return &ConsolidateRefreshJob{
		Service: service,
		Tenants: tenants,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the consolidate refresh job. Closed periods are skipped
// without retrying: the scheduler never overrides a period lock.
func (j *ConsolidateRefreshJob) Handle(ctx context.Context, task *asynq.Task) (err error) {
	if j == nil || j.Service == nil || j.Tenants == nil {
		return errors.New("consolidate refresh: dependencies not configured")
	}
	var payload ConsolidateRefreshPayload
	if uerr := json.Unmarshal(task.Payload(), &payload); uerr != nil {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskConsolidateRefresh)
	defer func() {
		err = tracker.End(err)
	}()

	// Every run gets its own correlation id so log lines from one sweep can
	// be grouped even when the scheduler and manual triggers overlap.
	logger := j.log().With(slog.String("run_id", uuid.NewString()))

	month := payload.Month
	if month == "" {
		month = shared.CurrentMonth(j.now())
	}
	if verr := shared.ValidateMonth(month); verr != nil {
		logger.Error("invalid month", slog.String("month", month), slog.Any("error", verr))
		return asynq.SkipRetry
	}

	tenantIDs := []int64{payload.TenantID}
	if payload.TenantID <= 0 {
		ids, lerr := j.Tenants.ActiveTenantIDs(ctx)
		if lerr != nil {
			logger.Error("list tenants", slog.Any("error", lerr))
			return lerr
		}
		tenantIDs = ids
	}
	if len(tenantIDs) == 0 {
		logger.Info("no active tenants to refresh", slog.String("month", month))
		return nil
	}

	start := j.now()
	refreshed := 0
	skipped := 0
	for _, tenantID := range tenantIDs {
		if _, rerr := j.Service.Recalculate(ctx, tenantID, month, systemActorID, false); rerr != nil {
			if errors.Is(rerr, consol.ErrPeriodClosed) {
				skipped++
				logger.Info("period closed, skipping", slog.Int64("tenant_id", tenantID), slog.String("month", month))
				continue
			}
			logger.Error("recalculate", slog.Int64("tenant_id", tenantID), slog.String("month", month), slog.Any("error", rerr))
			return rerr
		}
		refreshed++
	}

	logger.Info("refreshed consolidation snapshots",
		slog.String("month", month),
		slog.Int("tenants", refreshed),
		slog.Int("skipped", skipped),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ConsolidateRefreshJob) metrics() *jobmetrics.Metrics {
	if j != nil && j.Metrics != nil {
		return j.Metrics
	}
	return jobmetrics.NewMetrics(nil)
}

func (j *ConsolidateRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskConsolidateRefresh))
	}
	return slog.Default().With(slog.String("job", TaskConsolidateRefresh))
}

func (j *ConsolidateRefreshJob) now() time.Time {
	if j != nil && j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

// WithClock overrides the internal clock for deterministic tests.
func (j *ConsolidateRefreshJob) WithClock(clock func() time.Time) {
	if j != nil && clock != nil {
		j.clock = clock
	}
}
