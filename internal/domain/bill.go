package domain

import (
	"fmt"
	"time"
)

// ============================================================
// Bills
// ============================================================

// BillType is the utility category of a bill.
type BillType string

const (
	BillTypeWater       BillType = "water"
	BillTypeGas         BillType = "gas"
	BillTypeElectricity BillType = "electricity"
)

// BillTypes lists every supported bill type in display order.
var BillTypes = []BillType{BillTypeWater, BillTypeGas, BillTypeElectricity}

// Valid reports whether t is one of the supported bill types.
func (t BillType) Valid() bool {
	switch t {
	case BillTypeWater, BillTypeGas, BillTypeElectricity:
		return true
	}
	return false
}

// ParseBillType converts user input into a BillType.
func ParseBillType(s string) (BillType, error) {
	t := BillType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown bill type %q", s)
	}
	return t, nil
}

// BillRecord is a single monthly utility bill owned by a user.
// Only the month and year of Date are used when building reports.
type BillRecord struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"ownerId"`
	BillType  BillType  `json:"billType"`
	Date      time.Time `json:"date"`
	Usage     float64   `json:"usage"`
	Cost      float64   `json:"cost"`
	GoalUsage *float64  `json:"goalUsage,omitempty"` // nil or zero means no goal was set
	CreatedAt time.Time `json:"createdAt"`
}

// HasGoal reports whether a non-zero goal is set on the record.
func (b BillRecord) HasGoal() bool {
	return b.GoalUsage != nil && *b.GoalUsage != 0
}

// Goal returns the goal usage or zero when unset.
func (b BillRecord) Goal() float64 {
	if b.GoalUsage == nil {
		return 0
	}
	return *b.GoalUsage
}

// BillInput carries the fields a caller may set when creating a bill.
type BillInput struct {
	BillType  BillType
	Date      time.Time
	Usage     float64
	Cost      float64
	GoalUsage *float64
}

// BillPatch is a partial update; nil fields are left untouched.
type BillPatch struct {
	BillType  *BillType
	Date      *time.Time
	Usage     *float64
	Cost      *float64
	GoalUsage *float64
}

// IsEmpty reports whether the patch changes nothing.
func (p BillPatch) IsEmpty() bool {
	return p.BillType == nil && p.Date == nil && p.Usage == nil && p.Cost == nil && p.GoalUsage == nil
}

// Apply returns a copy of b with the patch applied.
func (p BillPatch) Apply(b BillRecord) BillRecord {
	if p.BillType != nil {
		b.BillType = *p.BillType
	}
	if p.Date != nil {
		b.Date = *p.Date
	}
	if p.Usage != nil {
		b.Usage = *p.Usage
	}
	if p.Cost != nil {
		b.Cost = *p.Cost
	}
	if p.GoalUsage != nil {
		g := *p.GoalUsage
		b.GoalUsage = &g
	}
	return b
}

// CreateBillRequest is the body for POST /v1/bills.
type CreateBillRequest struct {
	BillType  string   `json:"billType"`
	Date      string   `json:"date"`
	Usage     float64  `json:"usage"`
	Cost      float64  `json:"cost"`
	GoalUsage *float64 `json:"goalUsage,omitempty"`
}

// UpdateBillRequest is the body for PATCH /v1/bills/{billId}.
type UpdateBillRequest struct {
	BillType  *string  `json:"billType,omitempty"`
	Date      *string  `json:"date,omitempty"`
	Usage     *float64 `json:"usage,omitempty"`
	Cost      *float64 `json:"cost,omitempty"`
	GoalUsage *float64 `json:"goalUsage,omitempty"`
}

// ExistingBillTypesResponse is returned by GET /v1/bills/existing-types.
type ExistingBillTypesResponse struct {
	Month     int        `json:"month"`
	Year      int        `json:"year"`
	BillTypes []BillType `json:"billTypes"`
}

// DateLayout is the calendar-date format used by the stores and the API.
const DateLayout = "2006-01-02"

// storedDateLayouts are the shapes dates come back in from the stores.
var storedDateLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// ParseBillDate accepts a plain date, an RFC3339 timestamp or a zone-less
// timestamp as returned by Postgres.
func ParseBillDate(s string) (time.Time, error) {
	for _, layout := range storedDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", s)
}

// MonthRange returns the half-open range [start, end) of a zero-based month.
func MonthRange(month, year int) (time.Time, time.Time) {
	start := time.Date(year, time.Month(month+1), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}
