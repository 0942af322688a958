//go:build integration

package sqlstore_test

import (
	"context"
	"os"
	"testing"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/sqlstore"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Run with: BFA_TEST_POSTGRES_DSN=postgres://... go test -tags integration ./internal/infra/sqlstore/
func TestPostgres_RoundTrip(t *testing.T) {
	dsn := os.Getenv("BFA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("BFA_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()

	store, err := sqlstore.Open(ctx, sqlstore.Postgres, dsn, zap.NewNop())
	if err != nil {
		t.Fatalf("open postgres store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	owner := "owner-" + uuid.NewString()
	goal := 25.0
	created, err := store.CreateBill(ctx, owner, &domain.BillInput{BillType: domain.BillTypeWater, Date: date(2025, 1, 3), Usage: 30, Cost: 15, GoalUsage: &goal})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, _ = store.CreateBill(ctx, owner, &domain.BillInput{BillType: domain.BillTypeGas, Date: date(2024, 12, 20), Usage: 5, Cost: 9})

	bills, err := store.ListBills(ctx, owner)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(bills) != 2 || !bills[1].Date.Equal(date(2025, 1, 3)) || bills[1].Goal() != 25 {
		t.Fatalf("unexpected bills: %+v", bills)
	}

	cost := 16.0
	updated, err := store.UpdateBill(ctx, owner, created.ID, &domain.BillPatch{Cost: &cost})
	if err != nil || updated.Cost != 16 {
		t.Fatalf("update: %+v, %v", updated, err)
	}

	types, err := store.ExistingBillTypes(ctx, owner, 0, 2025)
	if err != nil || len(types) != 1 || types[0] != domain.BillTypeWater {
		t.Fatalf("existing types: %v, %v", types, err)
	}
}
