package margins

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository loads the tenant's distribution configuration.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Rules returns the tenant's distribution rules joined with category names.
func (r *Repository) Rules(ctx context.Context, tenantID int64) ([]Rule, error) {
	const query = `
		SELECT dr.id, dr.tenant_id, dr.indirect_category, dr.product_category_id, pc.name, dr.percent::text
		FROM distribution_rules dr
		JOIN product_categories pc ON pc.id = dr.product_category_id
		WHERE dr.tenant_id = $1
		ORDER BY dr.indirect_category, pc.name`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("margins: list rules: %w", err)
	}
	defer rows.Close()

	rules := []Rule{}
	for rows.Next() {
		var rule Rule
		var percent string
		if err := rows.Scan(&rule.ID, &rule.TenantID, &rule.IndirectCategory, &rule.CategoryID, &rule.CategoryName, &percent); err != nil {
			return nil, fmt.Errorf("margins: scan rule: %w", err)
		}
		if rule.Percent, err = decimal.NewFromString(percent); err != nil {
			return nil, fmt.Errorf("margins: parse percent %q: %w", percent, err)
		}
		rules = append(rules, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("margins: rule rows: %w", err)
	}
	return rules, nil
}

// Links returns the explicit product-to-category mappings for the tenant.
func (r *Repository) Links(ctx context.Context, tenantID int64) ([]CategoryLink, error) {
	const query = `
		SELECT pcl.product_id, pcl.category_id, pc.name, COALESCE(pcl.sales_name, '')
		FROM product_category_links pcl
		JOIN product_categories pc ON pc.id = pcl.category_id
		WHERE pcl.tenant_id = $1`
	rows, err := r.pool.Query(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("margins: list links: %w", err)
	}
	defer rows.Close()

	links := []CategoryLink{}
	for rows.Next() {
		var link CategoryLink
		if err := rows.Scan(&link.ProductID, &link.CategoryID, &link.CategoryName, &link.SalesName); err != nil {
			return nil, fmt.Errorf("margins: scan link: %w", err)
		}
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("margins: link rows: %w", err)
	}
	return links, nil
}
