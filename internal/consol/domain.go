package consol

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// SchemaVersion stamps snapshots so future layout changes can migrate
// persisted details payloads.
const SchemaVersion = "1"

// ErrPeriodClosed is returned when recalculation hits a closed period without
// the force override. The stored snapshot is left untouched.
var ErrPeriodClosed = errors.New("consol: period is closed")

// CostBreakdown holds the five cost domains of one consolidated month.
type CostBreakdown struct {
	Payroll     decimal.Decimal `json:"payroll"`
	Purchases   decimal.Decimal `json:"purchases"`
	Indirect    decimal.Decimal `json:"indirect"`
	Production  decimal.Decimal `json:"production"`
	Maintenance decimal.Decimal `json:"maintenance"`
}

// Sum adds the five components. TotalCost is always derived from this, never
// hand-edited.
func (b CostBreakdown) Sum() decimal.Decimal {
	return b.Payroll.Add(b.Purchases).Add(b.Indirect).Add(b.Production).Add(b.Maintenance)
}

// RevenueBreakdown holds the sales side of one consolidated month.
type RevenueBreakdown struct {
	SalesRevenue decimal.Decimal `json:"sales_revenue"`
	SalesCOGS    decimal.Decimal `json:"sales_cogs"`
	GrossMargin  decimal.Decimal `json:"gross_margin"`
}

// Snapshot is the persisted result of one monthly consolidation for one
// tenant. Exactly one snapshot exists per (tenant, month); recalculation
// replaces it in place.
type Snapshot struct {
	TenantID int64  `json:"tenant_id"`
	Month    string `json:"month"`

	Costs   CostBreakdown    `json:"costs"`
	Revenue RevenueBreakdown `json:"revenue"`

	TotalCost    decimal.Decimal `json:"total_cost"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	NetResult    decimal.Decimal `json:"net_result"`

	// Details retains the per-domain sub-summaries used to produce the
	// totals, keyed by domain name, for audit and drill-down.
	Details map[string]any `json:"details,omitempty"`

	IsClosed bool `json:"is_closed"`
	Exists   bool `json:"exists"`

	CalculatedAt  time.Time `json:"calculated_at"`
	CalculatedBy  int64     `json:"calculated_by"`
	SchemaVersion string    `json:"schema_version"`
}

// EmptySnapshot is the well-defined result for a (tenant, month) that has
// never been consolidated. Callers render it directly; it is not an error.
func EmptySnapshot(tenantID int64, month string) Snapshot {
	return Snapshot{
		TenantID: tenantID,
		Month:    month,
		Exists:   false,
	}
}
