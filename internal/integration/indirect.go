package integration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica/internal/shared"
)

// IndirectSummary reports expense receipts explicitly flagged as indirect,
// grouped by their expense category. The category map feeds the distribution
// engine in the margins module.
type IndirectSummary struct {
	Total      decimal.Decimal            `json:"total"`
	ItemCount  int                        `json:"item_count"`
	ByCategory map[string]decimal.Decimal `json:"by_category"`
}

// IndirectReader aggregates indirect expense receipts for a tenant and month.
type IndirectReader struct {
	pool *pgxpool.Pool
}

// NewIndirectReader constructs the reader.
func NewIndirectReader(pool *pgxpool.Pool) *IndirectReader {
	return &IndirectReader{pool: pool}
}

// Name identifies the indirect expense domain.
func (r *IndirectReader) Name() string { return DomainIndirect }

// Read returns the indirect rollup plus per-category detail.
func (r *IndirectReader) Read(ctx context.Context, tenantID int64, month string) (Summary, error) {
	detail, err := r.Summarize(ctx, tenantID, month)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Total: detail.Total, Details: detail}, nil
}

// Summarize aggregates flagged receipts within the month by category.
func (r *IndirectReader) Summarize(ctx context.Context, tenantID int64, month string) (IndirectSummary, error) {
	start, end, err := shared.MonthBounds(month)
	if err != nil {
		return IndirectSummary{}, err
	}
	const query = `
		SELECT COALESCE(category, 'uncategorized'), COALESCE(SUM(total_amount), 0)::text, COUNT(*)
		FROM expense_receipts
		WHERE tenant_id = $1
		  AND receipt_date >= $2 AND receipt_date < $3
		  AND is_indirect = TRUE
		  AND status <> 'CANCELLED'
		GROUP BY COALESCE(category, 'uncategorized')
	`
	rows, err := r.pool.Query(ctx, query, tenantID, start, end)
	if err != nil {
		return IndirectSummary{}, fmt.Errorf("integration: indirect summary: %w", err)
	}
	defer rows.Close()

	summary := IndirectSummary{ByCategory: map[string]decimal.Decimal{}}
	for rows.Next() {
		var category, total string
		var count int
		if err := rows.Scan(&category, &total, &count); err != nil {
			return IndirectSummary{}, fmt.Errorf("integration: indirect scan: %w", err)
		}
		amount, err := parseAmount(total)
		if err != nil {
			return IndirectSummary{}, err
		}
		summary.ByCategory[category] = summary.ByCategory[category].Add(amount)
		summary.Total = summary.Total.Add(amount)
		summary.ItemCount += count
	}
	if err := rows.Err(); err != nil {
		return IndirectSummary{}, fmt.Errorf("integration: indirect rows: %w", err)
	}
	return summary, nil
}
