package margins

import (
	"strings"

	"golang.org/x/text/cases"
)

var nameFolder = cases.Fold()

// normalizeName lowercases and trims a product or category name for matching.
// Case folding instead of ASCII lowercasing keeps accented names (the product
// catalogues are mostly Spanish) comparable.
func normalizeName(name string) string {
	return nameFolder.String(strings.TrimSpace(name))
}

// naiveSingular strips a trailing "s". This mirrors the legacy heuristic
// exactly, including its fragility for irregular plurals ("adoquines"
// becomes "adoquine", not "adoquin"); callers treat any inferred match as
// best-effort and flag it.
func naiveSingular(name string) string {
	if len(name) > 1 && strings.HasSuffix(name, "s") {
		return name[:len(name)-1]
	}
	return name
}

// category is a distinct product category referenced by distribution rules.
type category struct {
	ID   int64
	Name string
}

// inferCategory assigns a product to a category by case-insensitive substring
// matching the category name (and its naive singular) inside the product
// name. Best effort only: the explicit CategoryLink table is the primary
// path, and a match found here is reported as degraded.
func inferCategory(productName string, categories []category) (category, bool) {
	product := normalizeName(productName)
	if product == "" {
		return category{}, false
	}
	for _, cat := range categories {
		name := normalizeName(cat.Name)
		if name == "" {
			continue
		}
		if strings.Contains(product, name) || strings.Contains(product, naiveSingular(name)) {
			return cat, true
		}
	}
	return category{}, false
}
