package integration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica/internal/shared"
)

// SupplierTotal is the per-supplier drill-down line for purchases.
type SupplierTotal struct {
	SupplierID   int64           `json:"supplier_id"`
	SupplierName string          `json:"supplier_name"`
	Total        decimal.Decimal `json:"total"`
}

// PurchasesSummary reports direct purchase receipts. Receipts flagged as
// indirect belong to the indirect domain and are excluded here, as are
// cancelled receipts.
type PurchasesSummary struct {
	TotalPurchases decimal.Decimal `json:"total_purchases"`
	ReceiptCount   int             `json:"receipt_count"`
	BySupplier     []SupplierTotal `json:"by_supplier"`
}

// PurchasesReader aggregates purchase receipts for a tenant and month.
type PurchasesReader struct {
	pool *pgxpool.Pool
}

// NewPurchasesReader constructs the reader.
func NewPurchasesReader(pool *pgxpool.Pool) *PurchasesReader {
	return &PurchasesReader{pool: pool}
}

// Name identifies the purchases domain.
func (r *PurchasesReader) Name() string { return DomainPurchases }

// Read returns the purchases rollup plus supplier detail.
func (r *PurchasesReader) Read(ctx context.Context, tenantID int64, month string) (Summary, error) {
	detail, err := r.Summarize(ctx, tenantID, month)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Total: detail.TotalPurchases, Details: detail}, nil
}

// Summarize aggregates direct, non-cancelled receipts within the month.
func (r *PurchasesReader) Summarize(ctx context.Context, tenantID int64, month string) (PurchasesSummary, error) {
	start, end, err := shared.MonthBounds(month)
	if err != nil {
		return PurchasesSummary{}, err
	}
	const query = `
		SELECT s.id, s.name, COALESCE(SUM(pr.total_amount), 0)::text, COUNT(pr.id)
		FROM purchase_receipts pr
		JOIN suppliers s ON s.id = pr.supplier_id
		WHERE pr.tenant_id = $1
		  AND pr.receipt_date >= $2 AND pr.receipt_date < $3
		  AND pr.is_indirect = FALSE
		  AND pr.status <> 'CANCELLED'
		GROUP BY s.id, s.name
		ORDER BY SUM(pr.total_amount) DESC
	`
	rows, err := r.pool.Query(ctx, query, tenantID, start, end)
	if err != nil {
		return PurchasesSummary{}, fmt.Errorf("integration: purchases summary: %w", err)
	}
	defer rows.Close()

	summary := PurchasesSummary{BySupplier: []SupplierTotal{}}
	for rows.Next() {
		var line SupplierTotal
		var total string
		var count int
		if err := rows.Scan(&line.SupplierID, &line.SupplierName, &total, &count); err != nil {
			return PurchasesSummary{}, fmt.Errorf("integration: purchases scan: %w", err)
		}
		if line.Total, err = parseAmount(total); err != nil {
			return PurchasesSummary{}, err
		}
		summary.BySupplier = append(summary.BySupplier, line)
		summary.TotalPurchases = summary.TotalPurchases.Add(line.Total)
		summary.ReceiptCount += count
	}
	if err := rows.Err(); err != nil {
		return PurchasesSummary{}, fmt.Errorf("integration: purchases rows: %w", err)
	}
	return summary, nil
}
