package consol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrUnknownTenant indicates the snapshot references a tenant that does not
// exist.
var ErrUnknownTenant = errors.New("consol: unknown tenant")

// Repository persists consolidation snapshots keyed by (tenant_id, month).
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const snapshotColumns = `
	tenant_id, month,
	payroll_cost::text, purchases_cost::text, indirect_cost::text,
	production_cost::text, maintenance_cost::text,
	sales_revenue::text, sales_cogs::text, gross_margin::text,
	total_cost::text, total_revenue::text, net_result::text,
	details, is_closed, calculated_at, calculated_by, schema_version`

// Get loads the snapshot for (tenantID, month). A missing row is not an
// error: the zero-valued empty snapshot is returned with Exists=false.
func (r *Repository) Get(ctx context.Context, tenantID int64, month string) (Snapshot, error) {
	query := `SELECT` + snapshotColumns + `
		FROM consolidation_snapshots
		WHERE tenant_id = $1 AND month = $2`
	row := r.pool.QueryRow(ctx, query, tenantID, month)
	snap, err := scanSnapshot(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EmptySnapshot(tenantID, month), nil
		}
		return Snapshot{}, fmt.Errorf("consol: get snapshot: %w", err)
	}
	return snap, nil
}

// Upsert replaces the snapshot in place, preserving the stored is_closed
// flag: recalculation never implicitly locks or unlocks a period. The single
// statement keeps concurrent recalculations last-write-wins with no torn row.
func (r *Repository) Upsert(ctx context.Context, snap Snapshot) (Snapshot, error) {
	details, err := json.Marshal(snap.Details)
	if err != nil {
		return Snapshot{}, fmt.Errorf("consol: marshal details: %w", err)
	}
	const query = `
		INSERT INTO consolidation_snapshots (
			tenant_id, month,
			payroll_cost, purchases_cost, indirect_cost,
			production_cost, maintenance_cost,
			sales_revenue, sales_cogs, gross_margin,
			total_cost, total_revenue, net_result,
			details, is_closed, calculated_at, calculated_by, schema_version
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE, $15, $16, $17)
		ON CONFLICT (tenant_id, month) DO UPDATE SET
			payroll_cost = EXCLUDED.payroll_cost,
			purchases_cost = EXCLUDED.purchases_cost,
			indirect_cost = EXCLUDED.indirect_cost,
			production_cost = EXCLUDED.production_cost,
			maintenance_cost = EXCLUDED.maintenance_cost,
			sales_revenue = EXCLUDED.sales_revenue,
			sales_cogs = EXCLUDED.sales_cogs,
			gross_margin = EXCLUDED.gross_margin,
			total_cost = EXCLUDED.total_cost,
			total_revenue = EXCLUDED.total_revenue,
			net_result = EXCLUDED.net_result,
			details = EXCLUDED.details,
			calculated_at = EXCLUDED.calculated_at,
			calculated_by = EXCLUDED.calculated_by,
			schema_version = EXCLUDED.schema_version
		RETURNING is_closed`
	err = r.pool.QueryRow(ctx, query,
		snap.TenantID, snap.Month,
		snap.Costs.Payroll.String(), snap.Costs.Purchases.String(), snap.Costs.Indirect.String(),
		snap.Costs.Production.String(), snap.Costs.Maintenance.String(),
		snap.Revenue.SalesRevenue.String(), snap.Revenue.SalesCOGS.String(), snap.Revenue.GrossMargin.String(),
		snap.TotalCost.String(), snap.TotalRevenue.String(), snap.NetResult.String(),
		details, snap.CalculatedAt, snap.CalculatedBy, snap.SchemaVersion,
	).Scan(&snap.IsClosed)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return Snapshot{}, ErrUnknownTenant
		}
		return Snapshot{}, fmt.Errorf("consol: upsert snapshot: %w", err)
	}
	snap.Exists = true
	return snap, nil
}

// ActiveTenantIDs lists tenants eligible for the scheduled refresh.
func (r *Repository) ActiveTenantIDs(ctx context.Context) ([]int64, error) {
	const query = `SELECT id FROM tenants WHERE is_active ORDER BY id`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("consol: list active tenants: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("consol: scan tenant id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("consol: tenant rows: %w", err)
	}
	return ids, nil
}

func scanSnapshot(row pgx.Row) (Snapshot, error) {
	var snap Snapshot
	var payroll, purchases, indirect, production, maintenance string
	var revenue, cogs, margin, totalCost, totalRevenue, netResult string
	var details []byte
	if err := row.Scan(
		&snap.TenantID, &snap.Month,
		&payroll, &purchases, &indirect, &production, &maintenance,
		&revenue, &cogs, &margin,
		&totalCost, &totalRevenue, &netResult,
		&details, &snap.IsClosed, &snap.CalculatedAt, &snap.CalculatedBy, &snap.SchemaVersion,
	); err != nil {
		return Snapshot{}, err
	}
	var err error
	if snap.Costs, err = scanCosts(payroll, purchases, indirect, production, maintenance); err != nil {
		return Snapshot{}, err
	}
	if snap.Revenue.SalesRevenue, err = parseNumeric(revenue); err != nil {
		return Snapshot{}, err
	}
	if snap.Revenue.SalesCOGS, err = parseNumeric(cogs); err != nil {
		return Snapshot{}, err
	}
	if snap.Revenue.GrossMargin, err = parseNumeric(margin); err != nil {
		return Snapshot{}, err
	}
	if snap.TotalCost, err = parseNumeric(totalCost); err != nil {
		return Snapshot{}, err
	}
	if snap.TotalRevenue, err = parseNumeric(totalRevenue); err != nil {
		return Snapshot{}, err
	}
	if snap.NetResult, err = parseNumeric(netResult); err != nil {
		return Snapshot{}, err
	}
	if len(details) > 0 {
		if err := json.Unmarshal(details, &snap.Details); err != nil {
			return Snapshot{}, fmt.Errorf("consol: unmarshal details: %w", err)
		}
	}
	snap.Exists = true
	return snap, nil
}

func scanCosts(payroll, purchases, indirect, production, maintenance string) (CostBreakdown, error) {
	var b CostBreakdown
	var err error
	if b.Payroll, err = parseNumeric(payroll); err != nil {
		return b, err
	}
	if b.Purchases, err = parseNumeric(purchases); err != nil {
		return b, err
	}
	if b.Indirect, err = parseNumeric(indirect); err != nil {
		return b, err
	}
	if b.Production, err = parseNumeric(production); err != nil {
		return b, err
	}
	if b.Maintenance, err = parseNumeric(maintenance); err != nil {
		return b, err
	}
	return b, nil
}

func parseNumeric(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("consol: parse numeric %q: %w", raw, err)
	}
	return d, nil
}
