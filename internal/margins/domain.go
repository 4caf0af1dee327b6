package margins

import (
	"github.com/shopspring/decimal"
)

// DistributionMode records how indirect cost was spread for a report.
type DistributionMode string

const (
	// ModeConfigured spreads indirect categories by the tenant's rules.
	ModeConfigured DistributionMode = "configured"
	// ModeUniform spreads the whole indirect total by share of units
	// produced. Used when a tenant has no distribution rules yet.
	ModeUniform DistributionMode = "uniform"
)

// Rule maps one indirect expense category to a product category with a
// percentage. Several rules may split the same indirect category; percentages
// are deliberately not required to sum to 100 (partial coverage is expected
// during onboarding).
type Rule struct {
	ID               int64           `json:"id"`
	TenantID         int64           `json:"tenant_id"`
	IndirectCategory string          `json:"indirect_category"`
	CategoryID       int64           `json:"category_id"`
	CategoryName     string          `json:"category_name"`
	Percent          decimal.Decimal `json:"percent"`
}

// CategoryLink is the persisted product-to-category mapping populated at
// product setup time. It is the primary categorisation path; name inference
// only runs for products without a link.
type CategoryLink struct {
	ProductID    int64  `json:"product_id"`
	CategoryID   int64  `json:"category_id"`
	CategoryName string `json:"category_name"`
	// SalesName overrides the production name when cross-referencing the
	// sales domain, for tenants whose invoices label products differently.
	SalesName string `json:"sales_name,omitempty"`
}

// ProductRow is one product's margin line for the month. Ephemeral: computed
// fresh on every request, never persisted.
type ProductRow struct {
	ProductID    int64  `json:"product_id"`
	ProductName  string `json:"product_name"`
	CategoryID   int64  `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`

	UnitsProduced       decimal.Decimal `json:"units_produced"`
	MaterialCost        decimal.Decimal `json:"material_cost"`
	MaterialCostPerUnit decimal.Decimal `json:"material_cost_per_unit"`

	AllocatedIndirect   decimal.Decimal `json:"allocated_indirect"`
	IndirectCostPerUnit decimal.Decimal `json:"indirect_cost_per_unit"`

	TotalCost   decimal.Decimal `json:"total_cost"`
	CostPerUnit decimal.Decimal `json:"cost_per_unit"`

	UnitsSold        decimal.Decimal `json:"units_sold"`
	Revenue          decimal.Decimal `json:"revenue"`
	AvgSalePrice     decimal.Decimal `json:"avg_sale_price"`
	CostForSoldUnits decimal.Decimal `json:"cost_for_sold_units"`
	GrossMargin      decimal.Decimal `json:"gross_margin"`
	MarginPercent    decimal.Decimal `json:"margin_percent"`

	HasRecipe bool `json:"has_recipe"`
	HasSales  bool `json:"has_sales"`
}

// Totals aggregates the portfolio for the month.
type Totals struct {
	UnitsProduced     decimal.Decimal `json:"units_produced"`
	MaterialCost      decimal.Decimal `json:"material_cost"`
	AllocatedIndirect decimal.Decimal `json:"allocated_indirect"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	UnitsSold         decimal.Decimal `json:"units_sold"`
	Revenue           decimal.Decimal `json:"revenue"`
	GrossMargin       decimal.Decimal `json:"gross_margin"`
	MarginPercent     decimal.Decimal `json:"margin_percent"`
	AvgSalePrice      decimal.Decimal `json:"avg_sale_price"`
	AvgCostPerUnit    decimal.Decimal `json:"avg_cost_per_unit"`
}

// Report is the full margin view for one tenant and month. Always computed
// fresh; missing configuration degrades to warnings, never errors.
type Report struct {
	TenantID        int64            `json:"tenant_id"`
	Month           string           `json:"month"`
	Mode            DistributionMode `json:"mode"`
	Rows            []ProductRow     `json:"rows"`
	Totals          Totals           `json:"totals"`
	AvailableMonths []string         `json:"available_months"`
	Warnings        []string         `json:"warnings"`
}

var hundred = decimal.NewFromInt(100)

// safeDiv divides a by b, substituting zero when the denominator is zero.
// Division by zero is a configuration gap here, not a fault.
func safeDiv(a, b decimal.Decimal) decimal.Decimal {
	if b.IsZero() {
		return decimal.Zero
	}
	return a.Div(b)
}
