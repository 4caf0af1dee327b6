package integration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica/internal/shared"
)

// SoldProduct is one product's sales for the month, keyed by product name
// because the sales subsystem shares no identifier with production.
type SoldProduct struct {
	ProductName string          `json:"product_name"`
	Quantity    decimal.Decimal `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Cost        decimal.Decimal `json:"cost"`
}

// SalesSummary reports revenue and COGS from confirmed invoices.
type SalesSummary struct {
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	GrossMargin  decimal.Decimal `json:"gross_margin"`
	ByProduct    []SoldProduct   `json:"by_product"`
}

// SalesReader aggregates confirmed sales invoices for a tenant and month.
type SalesReader struct {
	pool *pgxpool.Pool
}

// NewSalesReader constructs the reader.
func NewSalesReader(pool *pgxpool.Pool) *SalesReader {
	return &SalesReader{pool: pool}
}

// Name identifies the sales domain.
func (r *SalesReader) Name() string { return DomainSales }

// Read returns the revenue rollup plus per-product detail.
func (r *SalesReader) Read(ctx context.Context, tenantID int64, month string) (Summary, error) {
	detail, err := r.Summarize(ctx, tenantID, month)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Total: detail.TotalRevenue, Details: detail}, nil
}

// Summarize aggregates confirmed or emitted invoice lines within the month.
func (r *SalesReader) Summarize(ctx context.Context, tenantID int64, month string) (SalesSummary, error) {
	start, end, err := shared.MonthBounds(month)
	if err != nil {
		return SalesSummary{}, err
	}
	const query = `
		SELECT il.product_name,
		       COALESCE(SUM(il.quantity), 0)::text,
		       COALESCE(SUM(il.line_total), 0)::text,
		       COALESCE(SUM(il.line_cost), 0)::text
		FROM sales_invoice_lines il
		JOIN sales_invoices i ON i.id = il.invoice_id
		WHERE i.tenant_id = $1
		  AND i.invoice_date >= $2 AND i.invoice_date < $3
		  AND i.status IN ('CONFIRMED', 'EMITTED')
		GROUP BY il.product_name
		ORDER BY SUM(il.line_total) DESC
	`
	rows, err := r.pool.Query(ctx, query, tenantID, start, end)
	if err != nil {
		return SalesSummary{}, fmt.Errorf("integration: sales summary: %w", err)
	}
	defer rows.Close()

	summary := SalesSummary{ByProduct: []SoldProduct{}}
	for rows.Next() {
		var line SoldProduct
		var quantity, revenue, cost string
		if err := rows.Scan(&line.ProductName, &quantity, &revenue, &cost); err != nil {
			return SalesSummary{}, fmt.Errorf("integration: sales scan: %w", err)
		}
		if line.Quantity, err = parseAmount(quantity); err != nil {
			return SalesSummary{}, err
		}
		if line.Revenue, err = parseAmount(revenue); err != nil {
			return SalesSummary{}, err
		}
		if line.Cost, err = parseAmount(cost); err != nil {
			return SalesSummary{}, err
		}
		summary.ByProduct = append(summary.ByProduct, line)
		summary.TotalRevenue = summary.TotalRevenue.Add(line.Revenue)
		summary.TotalCost = summary.TotalCost.Add(line.Cost)
	}
	if err := rows.Err(); err != nil {
		return SalesSummary{}, fmt.Errorf("integration: sales rows: %w", err)
	}
	summary.GrossMargin = summary.TotalRevenue.Sub(summary.TotalCost)
	return summary, nil
}
