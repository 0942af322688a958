// Package report turns a user's bill records into the numbers, narrative and
// chart series shown on the dashboard. Everything here is pure: no I/O, no
// logging, no shared state. Callers fetch the records and decide what to cache.
package report

import (
	"slices"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
)

// WindowMonths is the number of calendar months in a report window,
// the selected month included.
const WindowMonths = 3

const (
	minYear = 1
	maxYear = 9999
)

// Window is the half-open date range [Start, End) covered by a report.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := calendarDate(t)
	return !d.Before(w.Start) && d.Before(w.End)
}

// WindowFor returns the window ending with the criteria month. Month
// arithmetic is delegated to time.Date, which rolls negative months into the
// previous year.
func WindowFor(c domain.ReportCriteria) Window {
	target := time.Month(c.Month + 1)
	return Window{
		Start: time.Date(c.Year, target-(WindowMonths-1), 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(c.Year, target+1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ValidateCriteria returns *domain.ErrInvalidCriteria for an unknown bill type
// or a month/year outside the representable range.
func ValidateCriteria(c domain.ReportCriteria) error {
	if !c.BillType.Valid() {
		return &domain.ErrInvalidCriteria{Field: "billType", Reason: "must be one of water, gas, electricity"}
	}
	if c.Month < 0 || c.Month > 11 {
		return &domain.ErrInvalidCriteria{Field: "month", Reason: "must be between 0 and 11"}
	}
	if c.Year < minYear || c.Year > maxYear {
		return &domain.ErrInvalidCriteria{Field: "year", Reason: "must be between 1 and 9999"}
	}
	return nil
}

// SelectWindow keeps the records of the criteria bill type dated inside the
// window, sorted ascending by date. Records sharing a date keep their input
// order. The input slice is not modified. No match yields an empty, non-nil slice.
func SelectWindow(records []domain.BillRecord, c domain.ReportCriteria) ([]domain.BillRecord, error) {
	if err := ValidateCriteria(c); err != nil {
		return nil, err
	}

	w := WindowFor(c)
	selected := make([]domain.BillRecord, 0, len(records))
	for _, r := range records {
		if r.BillType == c.BillType && w.Contains(r.Date) {
			selected = append(selected, r)
		}
	}

	slices.SortStableFunc(selected, func(a, b domain.BillRecord) int {
		return calendarDate(a.Date).Compare(calendarDate(b.Date))
	})
	return selected, nil
}

// calendarDate drops the clock and zone, keeping the date the bill was written for.
func calendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
