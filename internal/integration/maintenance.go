package integration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica/internal/shared"
)

// MaintenanceSummary reports cost breakdowns already computed by the
// maintenance subsystem. No costing happens here.
type MaintenanceSummary struct {
	TotalCost      decimal.Decimal `json:"total_cost"`
	LaborCost      decimal.Decimal `json:"labor_cost"`
	PartsCost      decimal.Decimal `json:"parts_cost"`
	ThirdPartyCost decimal.Decimal `json:"third_party_cost"`
	WorkOrderCount int             `json:"work_order_count"`
}

// MaintenanceReader aggregates maintenance work orders for a tenant and month.
type MaintenanceReader struct {
	pool *pgxpool.Pool
}

// NewMaintenanceReader constructs the reader.
func NewMaintenanceReader(pool *pgxpool.Pool) *MaintenanceReader {
	return &MaintenanceReader{pool: pool}
}

// Name identifies the maintenance domain.
func (r *MaintenanceReader) Name() string { return DomainMaintenance }

// Read returns the maintenance cost rollup plus breakdown detail.
func (r *MaintenanceReader) Read(ctx context.Context, tenantID int64, month string) (Summary, error) {
	detail, err := r.Summarize(ctx, tenantID, month)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Total: detail.TotalCost, Details: detail}, nil
}

// Summarize aggregates closed work orders within the month.
func (r *MaintenanceReader) Summarize(ctx context.Context, tenantID int64, month string) (MaintenanceSummary, error) {
	start, end, err := shared.MonthBounds(month)
	if err != nil {
		return MaintenanceSummary{}, err
	}
	const query = `
		SELECT COALESCE(SUM(labor_cost), 0)::text,
		       COALESCE(SUM(parts_cost), 0)::text,
		       COALESCE(SUM(third_party_cost), 0)::text,
		       COUNT(*)
		FROM maintenance_work_orders
		WHERE tenant_id = $1
		  AND closed_at >= $2 AND closed_at < $3
		  AND status = 'CLOSED'
	`
	var labor, parts, thirdParty string
	var count int
	if err := r.pool.QueryRow(ctx, query, tenantID, start, end).Scan(&labor, &parts, &thirdParty, &count); err != nil {
		return MaintenanceSummary{}, fmt.Errorf("integration: maintenance summary: %w", err)
	}
	summary := MaintenanceSummary{WorkOrderCount: count}
	if summary.LaborCost, err = parseAmount(labor); err != nil {
		return MaintenanceSummary{}, err
	}
	if summary.PartsCost, err = parseAmount(parts); err != nil {
		return MaintenanceSummary{}, err
	}
	if summary.ThirdPartyCost, err = parseAmount(thirdParty); err != nil {
		return MaintenanceSummary{}, err
	}
	summary.TotalCost = summary.LaborCost.Add(summary.PartsCost).Add(summary.ThirdPartyCost)
	return summary, nil
}
