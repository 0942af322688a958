package supabase_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/supabase"

	"go.uber.org/zap"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *supabase.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	guard := resilience.NewGuard("supabase-test", resilience.Config{
		MaxRetries:     1,
		InitialBackoff: time.Millisecond,
		MaxConcurrency: 4,
	})
	return supabase.NewClient(srv.Client(), srv.URL, "anon-key", "service-key", guard, zap.NewNop())
}

func TestListBills_SendsKeysAndDecodesRows(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "anon-key" {
			t.Errorf("expected apikey header, got %q", r.Header.Get("apikey"))
		}
		if r.Header.Get("Authorization") != "Bearer service-key" {
			t.Errorf("expected service bearer, got %q", r.Header.Get("Authorization"))
		}
		if r.URL.Path != "/rest/v1/bills" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("user_id"); got != "eq.owner-1" {
			t.Errorf("expected owner filter, got %q", got)
		}
		w.Write([]byte(`[
			{"id":"b1","user_id":"owner-1","bill_type":"water","date":"2025-01-15","usage":10,"cost":5,"goal_usage":null,"created_at":"2025-01-16T10:00:00+00:00"},
			{"id":"b2","user_id":"owner-1","bill_type":"gas","date":"2025-02-01T00:00:00","usage":3.5,"cost":12.25,"goal_usage":4}
		]`))
	})

	bills, err := client.ListBills(context.Background(), "owner-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("expected 2 bills, got %d", len(bills))
	}
	if bills[0].BillType != domain.BillTypeWater || bills[0].HasGoal() {
		t.Errorf("unexpected first bill: %+v", bills[0])
	}
	if bills[1].Date.Month() != time.February || bills[1].Goal() != 4 {
		t.Errorf("unexpected second bill: %+v", bills[1])
	}
}

func TestListBills_ServerErrorIsStoreUnavailable(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := client.ListBills(context.Background(), "owner-1")

	var unavailable *domain.ErrStoreUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected one retry, got %d calls", calls.Load())
	}
}

func TestListBills_ClientErrorIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"bad filter"}`))
	})

	_, err := client.ListBills(context.Background(), "owner-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single call, got %d", calls.Load())
	}
}

func TestCreateBill_PostsRow(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.Header.Get("Prefer") != "return=representation" {
			t.Errorf("expected representation, got %q", r.Header.Get("Prefer"))
		}
		var row map[string]any
		if err := json.NewDecoder(r.Body).Decode(&row); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if row["user_id"] != "owner-1" || row["bill_type"] != "electricity" || row["date"] != "2025-03-10" {
			t.Errorf("unexpected row: %v", row)
		}
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`[{"id":"new-id","user_id":"owner-1","bill_type":"electricity","date":"2025-03-10","usage":300,"cost":45.5,"goal_usage":250}]`))
	})

	goal := 250.0
	bill, err := client.CreateBill(context.Background(), "owner-1", &domain.BillInput{
		BillType:  domain.BillTypeElectricity,
		Date:      time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC),
		Usage:     300,
		Cost:      45.5,
		GoalUsage: &goal,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bill.ID != "new-id" || bill.Goal() != 250 {
		t.Errorf("unexpected bill: %+v", bill)
	}
}

func TestUpdateBill_NotOwnedIsNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch {
			t.Errorf("expected PATCH, got %s", r.Method)
		}
		if got := r.URL.Query().Get("user_id"); got != "eq.owner-2" {
			t.Errorf("expected owner scope, got %q", got)
		}
		w.Write([]byte(`[]`))
	})

	usage := 12.0
	_, err := client.UpdateBill(context.Background(), "owner-2", "b1", &domain.BillPatch{Usage: &usage})

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestLatestBill_Empty(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.RawQuery, "order=date.desc") {
			t.Errorf("expected descending order, got %s", r.URL.RawQuery)
		}
		w.Write([]byte(`[]`))
	})

	_, err := client.LatestBill(context.Background(), "owner-1")

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExistingBillTypes_DedupesInDisplayOrder(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		dates := r.URL.Query()["date"]
		if len(dates) != 2 || dates[0] != "gte.2024-12-01" || dates[1] != "lt.2025-01-01" {
			t.Errorf("unexpected date filters: %v", dates)
		}
		w.Write([]byte(`[{"bill_type":"electricity"},{"bill_type":"water"},{"bill_type":"water"}]`))
	})

	types, err := client.ExistingBillTypes(context.Background(), "owner-1", 11, 2024)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(types) != 2 || types[0] != domain.BillTypeWater || types[1] != domain.BillTypeElectricity {
		t.Errorf("unexpected types: %v", types)
	}
}

func TestSignIn_InvalidCredentials(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/token" || r.URL.Query().Get("grant_type") != "password" {
			t.Errorf("unexpected request %s", r.URL.String())
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
	})

	_, err := client.SignIn(context.Background(), &domain.LoginRequest{Email: "a@b.c", Password: "nope"})

	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestSignIn_ReturnsSession(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer anon-key" {
			t.Errorf("expected anon bearer, got %q", r.Header.Get("Authorization"))
		}
		w.Write([]byte(`{"access_token":"jwt","refresh_token":"r","expires_in":3600,
			"user":{"id":"u1","email":"a@b.c","user_metadata":{"first_name":"Ada","last_name":"Lovelace"}}}`))
	})

	sess, err := client.SignIn(context.Background(), &domain.LoginRequest{Email: "a@b.c", Password: "secret"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.AccessToken != "jwt" || sess.User.FirstName != "Ada" || sess.User.LastName != "Lovelace" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestSignUp_AlreadyRegisteredIsConflict(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"code":422,"error_code":"user_already_exists","msg":"User already registered"}`))
	})

	_, err := client.SignUp(context.Background(), &domain.SignUpRequest{Email: "a@b.c", Password: "secret123"})

	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestSignUp_ConfirmationPendingReturnsUser(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Data map[string]string `json:"data"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Data["first_name"] != "Grace" {
			t.Errorf("expected metadata, got %v", body.Data)
		}
		w.Write([]byte(`{"id":"u2","email":"g@h.io","user_metadata":{"first_name":"Grace"}}`))
	})

	sess, err := client.SignUp(context.Background(), &domain.SignUpRequest{Email: "g@h.io", Password: "secret123", FirstName: "Grace"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sess.AccessToken != "" || sess.User.ID != "u2" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestUpdateUser_UsesUserToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.Header.Get("Authorization") != "Bearer user-token" {
			t.Errorf("unexpected request %s %s", r.Method, r.Header.Get("Authorization"))
		}
		raw, _ := io.ReadAll(r.Body)
		if strings.Contains(string(raw), `"email"`) {
			t.Errorf("empty email must not be sent: %s", raw)
		}
		w.Write([]byte(`{"id":"u1","email":"a@b.c","user_metadata":{"first_name":"New"}}`))
	})

	u, err := client.UpdateUser(context.Background(), "user-token", &domain.UserUpdate{FirstName: "New"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.FirstName != "New" {
		t.Errorf("expected updated name, got %+v", u)
	}
}

func TestRequestPasswordReset_PassesRedirect(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/auth/v1/recover" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("redirect_to"); got != "https://app.example/reset" {
			t.Errorf("unexpected redirect %q", got)
		}
		w.Write([]byte(`{}`))
	})

	err := client.RequestPasswordReset(context.Background(), &domain.PasswordResetRequest{
		Email:      "a@b.c",
		RedirectTo: "https://app.example/reset",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
