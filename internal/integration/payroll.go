package integration

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fabrica-erp/fabrica/internal/shared"
)

// PayrollSummary reports the employer-side cost of approved payroll runs.
type PayrollSummary struct {
	EmployerCost    decimal.Decimal `json:"employer_cost"`
	TotalGross      decimal.Decimal `json:"total_gross"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	TotalNet        decimal.Decimal `json:"total_net"`
	EmployeeCount   int             `json:"employee_count"`
	RunCount        int             `json:"run_count"`
}

// PayrollReader aggregates payroll runs for a tenant and month.
type PayrollReader struct {
	pool *pgxpool.Pool
}

// NewPayrollReader constructs the reader.
func NewPayrollReader(pool *pgxpool.Pool) *PayrollReader {
	return &PayrollReader{pool: pool}
}

// Name identifies the payroll domain.
func (r *PayrollReader) Name() string { return DomainPayroll }

// Read returns the employer cost rollup plus payroll detail.
func (r *PayrollReader) Read(ctx context.Context, tenantID int64, month string) (Summary, error) {
	detail, err := r.Summarize(ctx, tenantID, month)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Total: detail.EmployerCost, Details: detail}, nil
}

// Summarize aggregates approved payroll runs within the month.
func (r *PayrollReader) Summarize(ctx context.Context, tenantID int64, month string) (PayrollSummary, error) {
	start, end, err := shared.MonthBounds(month)
	if err != nil {
		return PayrollSummary{}, err
	}
	const query = `
		SELECT COALESCE(SUM(employer_cost), 0)::text,
		       COALESCE(SUM(total_gross), 0)::text,
		       COALESCE(SUM(total_deductions), 0)::text,
		       COALESCE(SUM(total_net), 0)::text,
		       COALESCE(SUM(employee_count), 0),
		       COUNT(*)
		FROM payroll_runs
		WHERE tenant_id = $1
		  AND run_date >= $2 AND run_date < $3
		  AND status = 'APPROVED'
	`
	var employerCost, gross, deductions, net string
	var employees, runs int
	if err := r.pool.QueryRow(ctx, query, tenantID, start, end).Scan(
		&employerCost, &gross, &deductions, &net, &employees, &runs,
	); err != nil {
		return PayrollSummary{}, fmt.Errorf("integration: payroll summary: %w", err)
	}
	summary := PayrollSummary{EmployeeCount: employees, RunCount: runs}
	if summary.EmployerCost, err = parseAmount(employerCost); err != nil {
		return PayrollSummary{}, err
	}
	if summary.TotalGross, err = parseAmount(gross); err != nil {
		return PayrollSummary{}, err
	}
	if summary.TotalDeductions, err = parseAmount(deductions); err != nil {
		return PayrollSummary{}, err
	}
	if summary.TotalNet, err = parseAmount(net); err != nil {
		return PayrollSummary{}, err
	}
	return summary, nil
}
