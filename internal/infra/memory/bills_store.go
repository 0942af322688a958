// Package memory provides in-process implementations of the store and auth
// ports for local development and tests.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var tracer = otel.Tracer("memory")

// BillStore keeps bills in a map keyed by owner.
type BillStore struct {
	mu    sync.RWMutex
	bills map[string][]domain.BillRecord
	now   func() time.Time
}

// NewBillStore creates an empty store.
func NewBillStore() *BillStore {
	return &BillStore{
		bills: make(map[string][]domain.BillRecord),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// ListBills returns a copy of the owner's bills ordered by date, then insertion.
func (s *BillStore) ListBills(ctx context.Context, ownerID string) ([]domain.BillRecord, error) {
	_, span := tracer.Start(ctx, "Memory.ListBills")
	defer span.End()
	span.SetAttributes(attribute.String("owner.id", ownerID))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.bills[ownerID])
	if out == nil {
		out = []domain.BillRecord{}
	}
	slices.SortStableFunc(out, func(a, b domain.BillRecord) int {
		return a.Date.Compare(b.Date)
	})
	return out, nil
}

// CreateBill stores a bill under a fresh UUID.
func (s *BillStore) CreateBill(ctx context.Context, ownerID string, in *domain.BillInput) (*domain.BillRecord, error) {
	_, span := tracer.Start(ctx, "Memory.CreateBill")
	defer span.End()

	b := domain.BillRecord{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		BillType:  in.BillType,
		Date:      in.Date,
		Usage:     in.Usage,
		Cost:      in.Cost,
		GoalUsage: copyFloat(in.GoalUsage),
		CreatedAt: s.now(),
	}

	s.mu.Lock()
	s.bills[ownerID] = append(s.bills[ownerID], b)
	s.mu.Unlock()

	return &b, nil
}

// UpdateBill applies patch to one of the owner's bills.
func (s *BillStore) UpdateBill(ctx context.Context, ownerID, id string, patch *domain.BillPatch) (*domain.BillRecord, error) {
	_, span := tracer.Start(ctx, "Memory.UpdateBill")
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	bills := s.bills[ownerID]
	for i := range bills {
		if bills[i].ID != id {
			continue
		}
		if patch != nil {
			bills[i] = patch.Apply(bills[i])
		}
		updated := bills[i]
		return &updated, nil
	}
	return nil, &domain.ErrNotFound{Resource: "bill", ID: id}
}

// LatestBill returns the bill with the greatest date; ties go to the newest insert.
func (s *BillStore) LatestBill(ctx context.Context, ownerID string) (*domain.BillRecord, error) {
	_, span := tracer.Start(ctx, "Memory.LatestBill")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := s.bills[ownerID]
	if len(bills) == 0 {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: "latest"}
	}
	latest := bills[0]
	for _, b := range bills[1:] {
		if !b.Date.Before(latest.Date) {
			latest = b
		}
	}
	return &latest, nil
}

// ExistingBillTypes lists the bill types recorded in a month, in display order.
func (s *BillStore) ExistingBillTypes(ctx context.Context, ownerID string, month, year int) ([]domain.BillType, error) {
	_, span := tracer.Start(ctx, "Memory.ExistingBillTypes")
	defer span.End()

	start, end := domain.MonthRange(month, year)

	s.mu.RLock()
	seen := map[domain.BillType]bool{}
	for _, b := range s.bills[ownerID] {
		y, m, d := b.Date.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
		if !day.Before(start) && day.Before(end) {
			seen[b.BillType] = true
		}
	}
	s.mu.RUnlock()

	types := make([]domain.BillType, 0, len(seen))
	for _, t := range domain.BillTypes {
		if seen[t] {
			types = append(types, t)
		}
	}
	return types, nil
}

// Ping always succeeds.
func (s *BillStore) Ping(context.Context) error { return nil }

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}
