package margins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/fabrica-erp/fabrica/internal/integration"
	"github.com/fabrica-erp/fabrica/internal/shared"
)

// ProductionSource provides production facts and the month navigation list.
type ProductionSource interface {
	Summarize(ctx context.Context, tenantID int64, month string) (integration.ProductionSummary, error)
	MonthsWithHistory(ctx context.Context, tenantID int64) ([]string, error)
}

// IndirectSource provides indirect totals grouped by expense category.
type IndirectSource interface {
	Summarize(ctx context.Context, tenantID int64, month string) (integration.IndirectSummary, error)
}

// SalesSource provides per-product sales facts keyed by product name.
type SalesSource interface {
	Summarize(ctx context.Context, tenantID int64, month string) (integration.SalesSummary, error)
}

// ConfigStore loads the tenant's distribution rules and category links.
type ConfigStore interface {
	Rules(ctx context.Context, tenantID int64) ([]Rule, error)
	Links(ctx context.Context, tenantID int64) ([]CategoryLink, error)
}

// Service computes the indirect distribution and per-product margin report.
// Stateless: every call recomputes from the upstream sources; no snapshot is
// read or written and the period lock is irrelevant here.
type Service struct {
	production ProductionSource
	indirect   IndirectSource
	sales      SalesSource
	config     ConfigStore
	logger     *slog.Logger
	group      singleflight.Group
}

// NewService constructs a margin calculator instance.
func NewService(production ProductionSource, indirect IndirectSource, sales SalesSource, config ConfigStore, logger *slog.Logger) *Service {
	return &Service{
		production: production,
		indirect:   indirect,
		sales:      sales,
		config:     config,
		logger:     logger,
	}
}

// ComputeMargins builds the margin report for (tenantID, month). Concurrent
// identical requests are collapsed into a single computation.
func (s *Service) ComputeMargins(ctx context.Context, tenantID int64, month string) (Report, error) {
	if tenantID <= 0 {
		return Report{}, errors.New("margins: tenant id required")
	}
	if err := shared.ValidateMonth(month); err != nil {
		return Report{}, err
	}
	key := fmt.Sprintf("%d:%s", tenantID, month)
	result, err, _ := s.group.Do(key, func() (any, error) {
		return s.compute(ctx, tenantID, month)
	})
	if err != nil {
		return Report{}, err
	}
	return result.(Report), nil
}

func (s *Service) compute(ctx context.Context, tenantID int64, month string) (Report, error) {
	var (
		production integration.ProductionSummary
		indirect   integration.IndirectSummary
		sales      integration.SalesSummary
		rules      []Rule
		links      []CategoryLink
		months     []string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		production, err = s.production.Summarize(gctx, tenantID, month)
		return err
	})
	g.Go(func() (err error) {
		indirect, err = s.indirect.Summarize(gctx, tenantID, month)
		return err
	})
	g.Go(func() (err error) {
		sales, err = s.sales.Summarize(gctx, tenantID, month)
		return err
	})
	g.Go(func() (err error) {
		rules, err = s.config.Rules(gctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		links, err = s.config.Links(gctx, tenantID)
		return err
	})
	g.Go(func() (err error) {
		months, err = s.production.MonthsWithHistory(gctx, tenantID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, fmt.Errorf("margins: fetch sources: %w", err)
	}

	report := Report{
		TenantID:        tenantID,
		Month:           month,
		Mode:            ModeConfigured,
		AvailableMonths: months,
		Warnings:        []string{},
	}
	if len(rules) == 0 {
		report.Mode = ModeUniform
		report.Warnings = append(report.Warnings,
			"no distribution configured; spreading indirect cost by share of units produced")
	}

	plan := buildPlan(rules, indirect.ByCategory)
	linkByProduct := make(map[int64]CategoryLink, len(links))
	for _, link := range links {
		linkByProduct[link.ProductID] = link
	}

	// Resolve a category per product before allocating: explicit links
	// first, then the legacy name heuristic as a flagged fallback.
	type resolved struct {
		cat       category
		ok        bool
		inferred  bool
		salesName string
	}
	resolutions := make([]resolved, len(production.ByProduct))
	unitsByCategory := make(map[int64]decimal.Decimal)
	for i, item := range production.ByProduct {
		res := resolved{salesName: normalizeName(item.ProductName)}
		if link, ok := linkByProduct[item.ProductID]; ok {
			res.cat = category{ID: link.CategoryID, Name: link.CategoryName}
			res.ok = true
			if link.SalesName != "" {
				res.salesName = normalizeName(link.SalesName)
			}
		} else if report.Mode == ModeConfigured {
			if cat, ok := inferCategory(item.ProductName, plan.categories); ok {
				res.cat = cat
				res.ok = true
				res.inferred = true
				report.Warnings = append(report.Warnings, fmt.Sprintf(
					"category %q for product %q inferred by name match; add an explicit category link", cat.Name, item.ProductName))
			}
		}
		if res.ok {
			unitsByCategory[res.cat.ID] = unitsByCategory[res.cat.ID].Add(item.Quantity)
		}
		resolutions[i] = res
	}

	salesByName := make(map[string]integration.SoldProduct, len(sales.ByProduct))
	for _, sold := range sales.ByProduct {
		name := normalizeName(sold.ProductName)
		line := salesByName[name]
		line.ProductName = sold.ProductName
		line.Quantity = line.Quantity.Add(sold.Quantity)
		line.Revenue = line.Revenue.Add(sold.Revenue)
		line.Cost = line.Cost.Add(sold.Cost)
		salesByName[name] = line
	}
	matchedSales := make(map[string]bool, len(salesByName))

	rows := make([]ProductRow, 0, len(production.ByProduct))
	for i, item := range production.ByProduct {
		res := resolutions[i]
		row := ProductRow{
			ProductID:     item.ProductID,
			ProductName:   item.ProductName,
			UnitsProduced: item.Quantity,
			MaterialCost:  item.InputCost,
			HasRecipe:     item.HasRecipe,
		}
		if res.ok {
			row.CategoryID = res.cat.ID
			row.CategoryName = res.cat.Name
		}

		switch {
		case report.Mode == ModeUniform:
			row.AllocatedIndirect = indirect.Total.Mul(safeDiv(item.Quantity, production.UnitsProduced))
		case res.ok:
			row.AllocatedIndirect = plan.amounts[res.cat.ID].Mul(safeDiv(item.Quantity, unitsByCategory[res.cat.ID]))
		default:
			row.AllocatedIndirect = indirect.Total.Mul(safeDiv(item.Quantity, production.UnitsProduced))
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"no category matched product %q; falling back to units-produced allocation", item.ProductName))
		}

		row.MaterialCostPerUnit = safeDiv(row.MaterialCost, row.UnitsProduced)
		row.IndirectCostPerUnit = safeDiv(row.AllocatedIndirect, row.UnitsProduced)
		row.TotalCost = row.MaterialCost.Add(row.AllocatedIndirect)
		row.CostPerUnit = safeDiv(row.TotalCost, row.UnitsProduced)

		if sold, ok := salesByName[res.salesName]; ok {
			matchedSales[res.salesName] = true
			row.HasSales = true
			row.UnitsSold = sold.Quantity
			row.Revenue = sold.Revenue
			row.AvgSalePrice = safeDiv(sold.Revenue, sold.Quantity)
		}
		row.CostForSoldUnits = row.CostPerUnit.Mul(row.UnitsSold)
		row.GrossMargin = row.Revenue.Sub(row.CostForSoldUnits)
		row.MarginPercent = safeDiv(row.GrossMargin, row.Revenue).Mul(hundred)

		if !row.HasRecipe {
			report.Warnings = append(report.Warnings, fmt.Sprintf(
				"product %q has no active costing recipe; material cost treated as 0", item.ProductName))
		}
		rows = append(rows, row)
	}

	// Sales lines whose name never appeared in production are surfaced, not
	// silently dropped.
	orphans := make([]string, 0)
	for name, sold := range salesByName {
		if !matchedSales[name] {
			orphans = append(orphans, sold.ProductName)
		}
	}
	sort.Strings(orphans)
	for _, name := range orphans {
		report.Warnings = append(report.Warnings, fmt.Sprintf(
			"sales recorded for %q but no production output this month", name))
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Revenue.Equal(rows[j].Revenue) {
			return rows[i].Revenue.GreaterThan(rows[j].Revenue)
		}
		return rows[i].ProductName < rows[j].ProductName
	})
	report.Rows = rows
	report.Totals = sumTotals(rows)

	if s.logger != nil {
		s.logger.Debug("margin report computed",
			slog.Int64("tenant_id", tenantID),
			slog.String("month", month),
			slog.Int("rows", len(rows)),
			slog.Int("warnings", len(report.Warnings)),
			slog.String("mode", string(report.Mode)),
		)
	}
	return report, nil
}

func sumTotals(rows []ProductRow) Totals {
	var t Totals
	for _, row := range rows {
		t.UnitsProduced = t.UnitsProduced.Add(row.UnitsProduced)
		t.MaterialCost = t.MaterialCost.Add(row.MaterialCost)
		t.AllocatedIndirect = t.AllocatedIndirect.Add(row.AllocatedIndirect)
		t.TotalCost = t.TotalCost.Add(row.TotalCost)
		t.UnitsSold = t.UnitsSold.Add(row.UnitsSold)
		t.Revenue = t.Revenue.Add(row.Revenue)
		t.GrossMargin = t.GrossMargin.Add(row.GrossMargin)
	}
	t.MarginPercent = safeDiv(t.GrossMargin, t.Revenue).Mul(hundred)
	t.AvgSalePrice = safeDiv(t.Revenue, t.UnitsSold)
	t.AvgCostPerUnit = safeDiv(t.TotalCost, t.UnitsProduced)
	return t
}
