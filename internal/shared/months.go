package shared

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

// Month keys use the YYYY-MM layout everywhere: URLs, job payloads, storage.
const MonthLayout = "2006-01"

var monthRegex = regexp.MustCompile(`^\d{4}-\d{2}$`)

// ErrInvalidMonth indicates a malformed month key.
var ErrInvalidMonth = errors.New("shared: invalid month key")

// ValidateMonth checks that the key parses as a real calendar month.
func ValidateMonth(month string) error {
	if !monthRegex.MatchString(month) {
		return ErrInvalidMonth
	}
	if _, err := time.Parse(MonthLayout, month); err != nil {
		return ErrInvalidMonth
	}
	return nil
}

// MonthBounds returns the half-open UTC interval [first day, first day of next month).
func MonthBounds(month string) (time.Time, time.Time, error) {
	start, err := time.Parse(MonthLayout, month)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("shared: parse month %q: %w", month, ErrInvalidMonth)
	}
	start = time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

// CurrentMonth formats now as a month key in UTC.
func CurrentMonth(now time.Time) string {
	return now.UTC().Format(MonthLayout)
}
