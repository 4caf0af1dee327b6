package shared

import (
	"errors"
	"testing"
	"time"
)

func TestValidateMonthAcceptsCalendarMonths(t *testing.T) {
	for _, month := range []string{"2024-01", "1999-12", "2026-09"} {
		if err := ValidateMonth(month); err != nil {
			t.Fatalf("ValidateMonth(%q) = %v", month, err)
		}
	}
}

func TestValidateMonthRejectsMalformedKeys(t *testing.T) {
	for _, month := range []string{"", "2024", "2024-13", "2024-1", "24-01", "2024/01"} {
		if err := ValidateMonth(month); !errors.Is(err, ErrInvalidMonth) {
			t.Fatalf("ValidateMonth(%q) = %v, want ErrInvalidMonth", month, err)
		}
	}
}

func TestMonthBoundsCoversWholeMonth(t *testing.T) {
	start, end, err := MonthBounds("2024-02")
	if err != nil {
		t.Fatalf("MonthBounds() error = %v", err)
	}
	if got := start; !got.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("start = %v", got)
	}
	if got := end; !got.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("end = %v", got)
	}
}

func TestCurrentMonthUsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+13", 13*3600)
	now := time.Date(2024, 1, 1, 2, 0, 0, 0, loc)
	if got := CurrentMonth(now); got != "2023-12" {
		t.Fatalf("CurrentMonth() = %q, want 2023-12", got)
	}
}
