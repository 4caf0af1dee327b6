// Package integration reads already-computed facts from the upstream
// subsystems (payroll, purchases, indirect expenses, production, maintenance,
// sales). Readers never write and never fail on empty periods: a month with
// no data yields a well-formed zero summary.
package integration

import (
	"context"

	"github.com/shopspring/decimal"
)

// Domain names double as breakdown keys in the consolidation snapshot.
const (
	DomainPayroll     = "payroll"
	DomainPurchases   = "purchases"
	DomainIndirect    = "indirect"
	DomainProduction  = "production"
	DomainMaintenance = "maintenance"
	DomainSales       = "sales"
)

// Summary is the common shape every cost domain reports: one rollup amount
// plus a typed detail payload retained in the snapshot for drill-down.
type Summary struct {
	Total   decimal.Decimal
	Details any
}

// Reader is the capability implemented by every upstream cost domain.
type Reader interface {
	Name() string
	Read(ctx context.Context, tenantID int64, month string) (Summary, error)
}

// CostSources returns the five cost-side readers in breakdown order. Sales is
// wired separately because it contributes revenue, not cost.
func CostSources(payroll *PayrollReader, purchases *PurchasesReader, indirect *IndirectReader, production *ProductionReader, maintenance *MaintenanceReader) []Reader {
	return []Reader{payroll, purchases, indirect, production, maintenance}
}
