package consol

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/fabrica-erp/fabrica/internal/integration"
	"github.com/fabrica-erp/fabrica/internal/observability"
	"github.com/fabrica-erp/fabrica/internal/shared"
)

// SnapshotStore defines the required persistence behaviour for the service.
type SnapshotStore interface {
	Get(ctx context.Context, tenantID int64, month string) (Snapshot, error)
	Upsert(ctx context.Context, snap Snapshot) (Snapshot, error)
}

// SalesSource provides the typed sales summary. Sales is the one domain read
// through its concrete shape because it feeds the revenue breakdown rather
// than a cost component.
type SalesSource interface {
	Summarize(ctx context.Context, tenantID int64, month string) (integration.SalesSummary, error)
}

// Service orchestrates snapshot reads and the monthly recalculation.
type Service struct {
	store   SnapshotStore
	costs   []integration.Reader
	sales   SalesSource
	cache   *Cache
	logger  *slog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService constructs a consolidation service instance. costs must hold the
// five cost-domain readers; sales is wired separately.
func NewService(store SnapshotStore, costs []integration.Reader, sales SalesSource, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		costs:  costs,
		sales:  sales,
		logger: logger,
		now:    time.Now,
	}
}

// WithCache enables the Redis read-path cache.
func (s *Service) WithCache(cache *Cache) {
	s.cache = cache
}

// WithClock overrides the clock for deterministic tests.
func (s *Service) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithMetrics enables recalculation outcome counters.
func (s *Service) WithMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// GetSnapshot serves the cached consolidation for (tenantID, month). This is
// the fast path: it never recomputes, and a month that was never consolidated
// returns the empty snapshot rather than an error.
func (s *Service) GetSnapshot(ctx context.Context, tenantID int64, month string) (Snapshot, error) {
	if tenantID <= 0 {
		return Snapshot{}, errors.New("consol: tenant id required")
	}
	if err := shared.ValidateMonth(month); err != nil {
		return Snapshot{}, err
	}
	if snap, ok := s.cache.Get(ctx, tenantID, month); ok {
		return snap, nil
	}
	snap, err := s.store.Get(ctx, tenantID, month)
	if err != nil {
		return Snapshot{}, err
	}
	if snap.Exists {
		s.cache.Set(ctx, snap)
	}
	return snap, nil
}

// Recalculate fans out to all six integration readers concurrently, derives
// the monthly totals and replaces the snapshot in place. When the period is
// closed and force is false it fails with ErrPeriodClosed before touching any
// upstream source. Running it twice with unchanged upstream data yields
// identical monetary fields; only CalculatedAt moves.
func (s *Service) Recalculate(ctx context.Context, tenantID int64, month string, userID int64, force bool) (Snapshot, error) {
	if tenantID <= 0 {
		return Snapshot{}, errors.New("consol: tenant id required")
	}
	if err := shared.ValidateMonth(month); err != nil {
		return Snapshot{}, err
	}

	existing, err := s.store.Get(ctx, tenantID, month)
	if err != nil {
		return Snapshot{}, err
	}
	if existing.Exists && existing.IsClosed && !force {
		s.count("locked")
		return Snapshot{}, ErrPeriodClosed
	}

	summaries := make([]integration.Summary, len(s.costs))
	var salesSummary integration.SalesSummary

	g, gctx := errgroup.WithContext(ctx)
	for i, reader := range s.costs {
		i, reader := i, reader
		g.Go(func() error {
			summary, err := reader.Read(gctx, tenantID, month)
			if err != nil {
				return fmt.Errorf("consol: read %s: %w", reader.Name(), err)
			}
			summaries[i] = summary
			return nil
		})
	}
	g.Go(func() error {
		summary, err := s.sales.Summarize(gctx, tenantID, month)
		if err != nil {
			return fmt.Errorf("consol: read %s: %w", integration.DomainSales, err)
		}
		salesSummary = summary
		return nil
	})
	if err := g.Wait(); err != nil {
		s.count("upstream_error")
		return Snapshot{}, err
	}

	snap := Snapshot{
		TenantID:      tenantID,
		Month:         month,
		Details:       make(map[string]any, len(s.costs)+1),
		IsClosed:      existing.IsClosed,
		CalculatedAt:  s.now().UTC(),
		CalculatedBy:  userID,
		SchemaVersion: SchemaVersion,
	}
	for i, reader := range s.costs {
		if err := snap.Costs.set(reader.Name(), summaries[i].Total); err != nil {
			return Snapshot{}, err
		}
		snap.Details[reader.Name()] = summaries[i].Details
	}
	snap.Details[integration.DomainSales] = salesSummary

	snap.Revenue = RevenueBreakdown{
		SalesRevenue: salesSummary.TotalRevenue,
		SalesCOGS:    salesSummary.TotalCost,
		GrossMargin:  salesSummary.GrossMargin,
	}
	snap.TotalCost = snap.Costs.Sum()
	snap.TotalRevenue = snap.Revenue.SalesRevenue
	snap.NetResult = snap.TotalRevenue.Sub(snap.TotalCost)

	stored, err := s.store.Upsert(ctx, snap)
	if err != nil {
		s.count("store_error")
		return Snapshot{}, err
	}
	s.cache.Bump(ctx)
	s.cache.Set(ctx, stored)
	s.count("ok")

	if s.logger != nil {
		s.logger.Info("consolidation recalculated",
			slog.Int64("tenant_id", tenantID),
			slog.String("month", month),
			slog.Int64("user_id", userID),
			slog.Bool("force", force),
			slog.String("net_result", stored.NetResult.String()),
		)
	}
	return stored, nil
}

func (s *Service) count(outcome string) {
	if s.metrics != nil {
		s.metrics.RecordRecalculation(outcome)
	}
}

// set routes a reader total into its breakdown component by domain name.
func (b *CostBreakdown) set(domain string, amount decimal.Decimal) error {
	switch domain {
	case integration.DomainPayroll:
		b.Payroll = amount
	case integration.DomainPurchases:
		b.Purchases = amount
	case integration.DomainIndirect:
		b.Indirect = amount
	case integration.DomainProduction:
		b.Production = amount
	case integration.DomainMaintenance:
		b.Maintenance = amount
	default:
		return fmt.Errorf("consol: unregistered cost domain %q", domain)
	}
	return nil
}
