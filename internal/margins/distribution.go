package margins

import (
	"sort"

	"github.com/shopspring/decimal"
)

// distributionPlan is the per-category indirect amount produced by applying
// the tenant's rules to one month's indirect totals.
type distributionPlan struct {
	// amounts accumulates allocated indirect cost per product category.
	amounts map[int64]decimal.Decimal
	// categories lists the distinct categories referenced by rules, in
	// stable order, for name inference.
	categories []category
}

// buildPlan applies every rule: allocated = indirectCategoryTotal × pct/100.
// Rules pointing at indirect categories with no spend this month contribute
// zero. Percentages are taken as configured; no 100% sum is enforced.
func buildPlan(rules []Rule, indirectByCategory map[string]decimal.Decimal) distributionPlan {
	plan := distributionPlan{amounts: make(map[int64]decimal.Decimal)}
	seen := make(map[int64]bool)
	for _, rule := range rules {
		total, ok := indirectByCategory[rule.IndirectCategory]
		if ok {
			share := total.Mul(rule.Percent).Div(hundred)
			plan.amounts[rule.CategoryID] = plan.amounts[rule.CategoryID].Add(share)
		}
		if !seen[rule.CategoryID] {
			seen[rule.CategoryID] = true
			plan.categories = append(plan.categories, category{ID: rule.CategoryID, Name: rule.CategoryName})
		}
	}
	sort.Slice(plan.categories, func(i, j int) bool {
		return plan.categories[i].Name < plan.categories[j].Name
	})
	return plan
}
