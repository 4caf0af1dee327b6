package integration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica/internal/shared"
)

// ProducedItem is one product's output for the month. HasRecipe is false when
// no active costing recipe existed, meaning InputCost silently reads as zero.
type ProducedItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	InputCost   decimal.Decimal `json:"input_cost"`
	HasRecipe   bool            `json:"has_recipe"`
}

// ProductionSummary reports finished production orders for the month.
type ProductionSummary struct {
	TotalProductionCost decimal.Decimal `json:"total_production_cost"`
	UnitsProduced       decimal.Decimal `json:"units_produced"`
	ByProduct           []ProducedItem  `json:"by_product"`
}

// ProductionReader aggregates production output for a tenant and month.
type ProductionReader struct {
	pool *pgxpool.Pool
}

// NewProductionReader constructs the reader.
func NewProductionReader(pool *pgxpool.Pool) *ProductionReader {
	return &ProductionReader{pool: pool}
}

// Name identifies the production domain.
func (r *ProductionReader) Name() string { return DomainProduction }

// Read returns the production input cost rollup plus per-product detail.
func (r *ProductionReader) Read(ctx context.Context, tenantID int64, month string) (Summary, error) {
	detail, err := r.Summarize(ctx, tenantID, month)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Total: detail.TotalProductionCost, Details: detail}, nil
}

// Summarize aggregates completed production orders within the month.
func (r *ProductionReader) Summarize(ctx context.Context, tenantID int64, month string) (ProductionSummary, error) {
	start, end, err := shared.MonthBounds(month)
	if err != nil {
		return ProductionSummary{}, err
	}
	const query = `
		SELECT po.product_id,
		       p.name,
		       COALESCE(SUM(po.quantity_produced), 0)::text,
		       COALESCE(SUM(po.input_cost), 0)::text,
		       BOOL_OR(po.recipe_id IS NOT NULL)
		FROM production_orders po
		JOIN products p ON p.id = po.product_id
		WHERE po.tenant_id = $1
		  AND po.completed_at >= $2 AND po.completed_at < $3
		  AND po.status = 'COMPLETED'
		GROUP BY po.product_id, p.name
		ORDER BY p.name
	`
	rows, err := r.pool.Query(ctx, query, tenantID, start, end)
	if err != nil {
		return ProductionSummary{}, fmt.Errorf("integration: production summary: %w", err)
	}
	defer rows.Close()

	summary := ProductionSummary{ByProduct: []ProducedItem{}}
	for rows.Next() {
		var item ProducedItem
		var quantity, cost string
		if err := rows.Scan(&item.ProductID, &item.ProductName, &quantity, &cost, &item.HasRecipe); err != nil {
			return ProductionSummary{}, fmt.Errorf("integration: production scan: %w", err)
		}
		if item.Quantity, err = parseAmount(quantity); err != nil {
			return ProductionSummary{}, err
		}
		if item.InputCost, err = parseAmount(cost); err != nil {
			return ProductionSummary{}, err
		}
		summary.ByProduct = append(summary.ByProduct, item)
		summary.TotalProductionCost = summary.TotalProductionCost.Add(item.InputCost)
		summary.UnitsProduced = summary.UnitsProduced.Add(item.Quantity)
	}
	if err := rows.Err(); err != nil {
		return ProductionSummary{}, fmt.Errorf("integration: production rows: %w", err)
	}
	return summary, nil
}

// MonthsWithHistory lists month keys that have any production activity,
// newest first. The margins UI uses it for period navigation.
func (r *ProductionReader) MonthsWithHistory(ctx context.Context, tenantID int64) ([]string, error) {
	const query = `
		SELECT DISTINCT to_char(completed_at AT TIME ZONE 'UTC', 'YYYY-MM')
		FROM production_orders
		WHERE tenant_id = $1 AND status = 'COMPLETED'
		ORDER BY 1 DESC
	`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("integration: production months: %w", err)
	}
	defer rows.Close()

	months := []string{}
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, fmt.Errorf("integration: production months scan: %w", err)
		}
		months = append(months, month)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("integration: production months rows: %w", err)
	}
	return months, nil
}
