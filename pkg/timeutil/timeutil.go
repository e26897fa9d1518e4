// Package timeutil provides timestamp parsing and timezone utilities for the
// learning-results hub. Event logs arrive in UTC in two different layouts;
// institutional reports are dated in Stockholm local time.
// No external dependencies - uses only standard library.
package timeutil

import (
	"fmt"
	"time"
)

// StockholmTZ is the Europe/Stockholm timezone used for report dates.
// Falls back to a fixed CET offset when the zone database is unavailable.
var StockholmTZ = loadStockholm()

func loadStockholm() *time.Location {
	loc, err := time.LoadLocation("Europe/Stockholm")
	if err != nil {
		return time.FixedZone("CET", 1*60*60)
	}
	return loc
}

// Event-log timestamp layouts.
const (
	// LayoutRawAnalytics is the human-readable layout used in the
	// raw_analytics TSV export, e.g. "September 6, 2022 at 1:05 PM UTC".
	LayoutRawAnalytics = "January 2, 2006 at 3:04 PM UTC"

	// LayoutDatashop is the layout used inside Datashop XML meta elements,
	// e.g. "2022-09-06 13:05:42". Times are UTC but carry no zone marker.
	LayoutDatashop = "2006-01-02 15:04:05"

	// FormatDate is the standard date format (YYYY-MM-DD).
	FormatDate = "2006-01-02"

	// FormatDateTime is the standard datetime format.
	FormatDateTime = "2006-01-02 15:04:05"
)

// ParseRawAnalytics parses a raw_analytics timestamp string into a UTC instant.
func ParseRawAnalytics(value string) (time.Time, error) {
	t, err := time.Parse(LayoutRawAnalytics, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse raw_analytics timestamp %q: %w", value, err)
	}
	return t.UTC(), nil
}

// ParseDatashop parses a Datashop XML timestamp string. The layout carries no
// zone information; values are interpreted as UTC.
func ParseDatashop(value string) (time.Time, error) {
	t, err := time.ParseInLocation(LayoutDatashop, value, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse datashop timestamp %q: %w", value, err)
	}
	return t, nil
}

// Now returns the current time in UTC. All internal timestamps are UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ToStockholm converts a time to Stockholm local time.
func ToStockholm(t time.Time) time.Time {
	return t.In(StockholmTZ)
}

// StartOfDay returns the start of the day (00:00:00) in Stockholm time.
func StartOfDay(t time.Time) time.Time {
	local := ToStockholm(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, StockholmTZ)
}

// ReportDate formats a timestamp as the date string used in institutional
// reports (YYYY-MM-DD, Stockholm local time).
func ReportDate(t time.Time) string {
	return ToStockholm(t).Format(FormatDate)
}

// IsSameDay checks if two times fall on the same Stockholm calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	a1, a2 := ToStockholm(t1), ToStockholm(t2)
	return a1.Year() == a2.Year() && a1.YearDay() == a2.YearDay()
}

// DaysBetween calculates the number of whole days between two times.
func DaysBetween(t1, t2 time.Time) int {
	a1 := StartOfDay(t1)
	a2 := StartOfDay(t2)
	days := int(a2.Sub(a1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// Within reports whether two instants lie within the given tolerance of each
// other. Used by the identity reconciler's timestamp-proximity voting.
func Within(t1, t2 time.Time, tolerance time.Duration) bool {
	d := t1.Sub(t2)
	if d < 0 {
		d = -d
	}
	return d < tolerance
}
