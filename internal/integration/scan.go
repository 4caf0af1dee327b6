package integration

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// parseAmount converts a NUMERIC value selected as text. Monetary columns are
// always read through ::text so precision survives the wire.
func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("integration: parse amount %q: %w", raw, err)
	}
	return d, nil
}
