package handler_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/handler"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/cache"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/llm"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/memory"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/observability"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/resilience"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/token"
	"github.com/boddenberg/utility-bills-bfa/internal/port"
	"github.com/boddenberg/utility-bills-bfa/internal/report"
	"github.com/boddenberg/utility-bills-bfa/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

type testEnv struct {
	router  http.Handler
	metrics *observability.Metrics
}

// newTestEnv wires the full stack on the in-memory backends. When llmServer
// is set, llm summaries go to it as a Hugging Face endpoint.
func newTestEnv(t *testing.T, llmServer *httptest.Server) *testEnv {
	t.Helper()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	tokens := token.NewManager("test-secret", time.Hour)
	authSvc := service.NewAuthService(memory.NewAuthProvider(tokens, bcrypt.MinCost, logger), tokens, logger)

	billCache := cache.New[[]domain.BillRecord](time.Minute)
	t.Cleanup(billCache.Close)
	billSvc := service.NewBillService(memory.NewBillStore(), billCache, metrics, logger)

	var provider port.SummaryProvider
	if llmServer != nil {
		narratives := cache.New[string](time.Minute)
		t.Cleanup(narratives.Close)
		guard := resilience.NewGuard("huggingface", resilience.Config{MaxRetries: 0, InitialBackoff: time.Millisecond, MaxConcurrency: 2})
		hf := llm.NewHuggingFace(llmServer.Client(), llmServer.URL, "hf-token", guard)
		provider = service.NewLLMSummary(hf, narratives, metrics, logger)
	}
	reportSvc := service.NewReportService(billSvc, report.NewAggregator(report.DefaultSettings()), provider, metrics, logger)

	router := handler.NewRouter(handler.Services{
		Bills:   billSvc,
		Reports: reportSvc,
		Auth:    authSvc,
	}, metrics, []string{"http://localhost:3000"}, logger)

	return &testEnv{router: router, metrics: metrics}
}

func (e *testEnv) do(t *testing.T, method, path, accessToken string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) signUp(t *testing.T, email string) string {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/auth/signup", "", domain.SignUpRequest{
		Email: email, Password: "secret-1", FirstName: "Ana", LastName: "Souza",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("sign up: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var session domain.Session
	decode(t, rec, &session)
	return session.AccessToken
}

func (e *testEnv) createBill(t *testing.T, accessToken, billType, date string, usage, cost float64, goal *float64) domain.BillRecord {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/v1/bills", accessToken, domain.CreateBillRequest{
		BillType: billType, Date: date, Usage: usage, Cost: cost, GoalUsage: goal,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create bill: expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var bill domain.BillRecord
	decode(t, rec, &bill)
	return bill
}

// seed stores three water bills ending January 2025 and one gas bill.
func (e *testEnv) seed(t *testing.T, accessToken string) {
	t.Helper()
	goal := 25.0
	e.createBill(t, accessToken, "water", "2024-11-03", 10, 5, nil)
	e.createBill(t, accessToken, "water", "2024-12-03", 20, 10, nil)
	e.createBill(t, accessToken, "water", "2025-01-03", 30, 15, &goal)
	e.createBill(t, accessToken, "gas", "2025-01-10", 100, 80, nil)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(dst); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func expectStatus(t *testing.T, rec *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rec.Code != want {
		t.Fatalf("expected %d, got %d: %s", want, rec.Code, rec.Body.String())
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t, nil)

	forged, _ := token.NewManager("other-secret", time.Hour).Sign("user-1", "x@example.com")
	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Token abc"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer not-a-jwt"},
		{"foreign signature", "Bearer " + forged},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/bills", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			env.router.ServeHTTP(rec, req)
			expectStatus(t, rec, http.StatusUnauthorized)
		})
	}
}

func TestAuthFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	accessToken := env.signUp(t, "ana@example.com")

	rec := env.do(t, http.MethodPost, "/v1/auth/signup", "", domain.SignUpRequest{
		Email: "ana@example.com", Password: "secret-1", FirstName: "Ana", LastName: "Souza",
	})
	expectStatus(t, rec, http.StatusConflict)

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "ana@example.com", Password: "nope-nope"})
	expectStatus(t, rec, http.StatusUnauthorized)

	rec = env.do(t, http.MethodGet, "/v1/me", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var me domain.User
	decode(t, rec, &me)
	if me.Email != "ana@example.com" {
		t.Errorf("unexpected user %+v", me)
	}

	rec = env.do(t, http.MethodPut, "/v1/me", accessToken, domain.UpdateProfileRequest{FirstName: "Anna"})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodPut, "/v1/me/password", accessToken, domain.ChangePasswordRequest{
		OldPassword: "secret-1", NewPassword: "secret-2", ConfirmPassword: "secret-2",
	})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodPost, "/v1/auth/login", "", domain.LoginRequest{Email: "ana@example.com", Password: "secret-2"})
	expectStatus(t, rec, http.StatusOK)

	rec = env.do(t, http.MethodPost, "/v1/auth/password/reset-request", "", domain.PasswordResetRequest{Email: "nobody@example.com"})
	expectStatus(t, rec, http.StatusAccepted)
}

func TestBillsFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	accessToken := env.signUp(t, "ana@example.com")
	env.seed(t, accessToken)

	rec := env.do(t, http.MethodGet, "/v1/bills", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var list struct {
		Bills []domain.BillRecord `json:"bills"`
		Total int                 `json:"total"`
	}
	decode(t, rec, &list)
	if list.Total != 4 || len(list.Bills) != 4 {
		t.Fatalf("expected 4 bills, got %d", list.Total)
	}

	rec = env.do(t, http.MethodGet, "/v1/bills/latest", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var latest domain.BillRecord
	decode(t, rec, &latest)
	if latest.BillType != domain.BillTypeGas {
		t.Errorf("expected the gas bill to be latest, got %+v", latest)
	}

	rec = env.do(t, http.MethodGet, "/v1/bills/existing-types?month=0&year=2025", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var existing domain.ExistingBillTypesResponse
	decode(t, rec, &existing)
	if len(existing.BillTypes) != 2 {
		t.Errorf("expected water and gas in January, got %v", existing.BillTypes)
	}

	usage := 12.5
	rec = env.do(t, http.MethodPatch, "/v1/bills/"+latest.ID, accessToken, domain.UpdateBillRequest{Usage: &usage})
	expectStatus(t, rec, http.StatusOK)
	var updated domain.BillRecord
	decode(t, rec, &updated)
	if updated.Usage != 12.5 || updated.Cost != 80 {
		t.Errorf("unexpected patched bill %+v", updated)
	}

	rec = env.do(t, http.MethodPatch, "/v1/bills/does-not-exist", accessToken, domain.UpdateBillRequest{Usage: &usage})
	expectStatus(t, rec, http.StatusNotFound)

	rec = env.do(t, http.MethodPost, "/v1/bills", accessToken, domain.CreateBillRequest{BillType: "steam", Date: "2025-01-01"})
	expectStatus(t, rec, http.StatusBadRequest)
	var errResp struct {
		Field string `json:"field"`
	}
	decode(t, rec, &errResp)
	if errResp.Field != "billType" {
		t.Errorf("expected billType field, got %q", errResp.Field)
	}

	rec = env.do(t, http.MethodGet, "/v1/bills/existing-types?month=jan&year=2025", accessToken, nil)
	expectStatus(t, rec, http.StatusBadRequest)
}

func TestBills_ScopedToOwner(t *testing.T) {
	env := newTestEnv(t, nil)
	ana := env.signUp(t, "ana@example.com")
	bia := env.signUp(t, "bia@example.com")

	bill := env.createBill(t, ana, "water", "2025-01-03", 30, 15, nil)

	rec := env.do(t, http.MethodGet, "/v1/bills", bia, nil)
	expectStatus(t, rec, http.StatusOK)
	if strings.Contains(rec.Body.String(), bill.ID) {
		t.Error("bills leaked across owners")
	}

	usage := 1.0
	rec = env.do(t, http.MethodPatch, "/v1/bills/"+bill.ID, bia, domain.UpdateBillRequest{Usage: &usage})
	expectStatus(t, rec, http.StatusNotFound)
}

func TestReportsFlow(t *testing.T) {
	env := newTestEnv(t, nil)
	accessToken := env.signUp(t, "ana@example.com")
	env.seed(t, accessToken)

	rec := env.do(t, http.MethodGet, "/v1/reports?billType=water&month=0&year=2025", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var rep domain.Report
	decode(t, rec, &rep)
	if rep.Summary.Count != 3 || rep.Summary.TotalUsage != 60 || rep.Summary.TotalCost != 30 {
		t.Errorf("unexpected summary %+v", rep.Summary)
	}
	if rep.Summary.GoalExceededCount != 1 {
		t.Errorf("expected one bill over goal, got %d", rep.Summary.GoalExceededCount)
	}
	if len(rep.Chart.Labels) != 3 || rep.Chart.Labels[0] != "Nov 2024" {
		t.Errorf("unexpected chart labels %v", rep.Chart.Labels)
	}
	if rep.NarrativeSource != domain.SummaryDeterministic || rep.Narrative == "" {
		t.Errorf("expected deterministic narrative, got %q (%s)", rep.Narrative, rep.NarrativeSource)
	}

	rec = env.do(t, http.MethodGet, "/v1/reports?billType=water&month=0&year=2025&summary=llm", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &rep)
	if rep.NarrativeSource != domain.SummaryDeterministic {
		t.Errorf("llm without a provider must fall back, got %s", rep.NarrativeSource)
	}

	rec = env.do(t, http.MethodGet, "/v1/reports/overview?month=0&year=2025", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var overview domain.Overview
	decode(t, rec, &overview)
	if len(overview.Reports) != len(domain.BillTypes) {
		t.Fatalf("expected one report per bill type, got %d", len(overview.Reports))
	}
	if overview.Reports[1].Summary.Count != 1 || overview.Reports[2].Summary.Count != 0 {
		t.Errorf("unexpected overview counts")
	}

	rec = env.do(t, http.MethodGet, "/v1/reports/dashboard", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	decode(t, rec, &rep)
	if rep.Criteria.BillType != domain.BillTypeGas || rep.Criteria.Month != 0 || rep.Criteria.Year != 2025 {
		t.Errorf("dashboard must follow the latest bill, got %+v", rep.Criteria)
	}
}

func TestReports_InvalidInput(t *testing.T) {
	env := newTestEnv(t, nil)
	accessToken := env.signUp(t, "ana@example.com")

	tests := []struct {
		name string
		path string
		want int
	}{
		{"missing month", "/v1/reports?billType=water&year=2025", http.StatusBadRequest},
		{"month out of range", "/v1/reports?billType=water&month=12&year=2025", http.StatusBadRequest},
		{"unknown bill type", "/v1/reports?billType=steam&month=0&year=2025", http.StatusBadRequest},
		{"unknown summary", "/v1/reports?billType=water&month=0&year=2025&summary=magic", http.StatusBadRequest},
		{"overview without year", "/v1/reports/overview?month=0", http.StatusBadRequest},
		{"unknown export format", "/v1/reports/export?billType=water&month=0&year=2025&format=csv", http.StatusBadRequest},
		{"dashboard without bills", "/v1/reports/dashboard", http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodGet, tt.path, accessToken, nil)
			expectStatus(t, rec, tt.want)
		})
	}
}

func TestReportExport(t *testing.T) {
	env := newTestEnv(t, nil)
	accessToken := env.signUp(t, "ana@example.com")
	env.seed(t, accessToken)

	for _, format := range []domain.ExportFormat{domain.ExportXLSX, domain.ExportPDF} {
		t.Run(string(format), func(t *testing.T) {
			rec := env.do(t, http.MethodGet, "/v1/reports/export?billType=water&month=0&year=2025&format="+string(format), accessToken, nil)
			expectStatus(t, rec, http.StatusOK)

			if got := rec.Header().Get("Content-Type"); got != format.ContentType() {
				t.Errorf("unexpected content type %s", got)
			}
			want := fmt.Sprintf("attachment; filename=%q", "water-report-2025-01."+string(format))
			if got := rec.Header().Get("Content-Disposition"); got != want {
				t.Errorf("expected %s, got %s", want, got)
			}
			if rec.Body.Len() == 0 {
				t.Error("expected a file body")
			}
		})
	}
}

func TestReports_LLMSummary(t *testing.T) {
	var calls atomic.Int32
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("Authorization") != "Bearer hf-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"summary_text":"Usage is above the goal this month."}]`))
	}))
	defer llmServer.Close()

	env := newTestEnv(t, llmServer)
	accessToken := env.signUp(t, "ana@example.com")
	env.seed(t, accessToken)

	for i := 0; i < 2; i++ {
		rec := env.do(t, http.MethodGet, "/v1/reports?billType=water&month=0&year=2025&summary=llm", accessToken, nil)
		expectStatus(t, rec, http.StatusOK)
		var rep domain.Report
		decode(t, rec, &rep)
		if rep.NarrativeSource != domain.SummaryLLM || rep.Narrative != "Usage is above the goal this month." {
			t.Errorf("unexpected narrative %q (%s)", rep.Narrative, rep.NarrativeSource)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("expected the second narrative from cache, got %d upstream calls", n)
	}

	rec := env.do(t, http.MethodGet, "/v1/metrics/summaries", "", nil)
	var snap domain.SummaryMetrics
	decode(t, rec, &snap)
	if snap.LLMSummaries != 2 || snap.CacheHitRate != 0.5 {
		t.Errorf("unexpected snapshot %+v", snap)
	}
}

func TestReports_LLMFailureFallsBack(t *testing.T) {
	llmServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer llmServer.Close()

	env := newTestEnv(t, llmServer)
	accessToken := env.signUp(t, "ana@example.com")
	env.seed(t, accessToken)

	rec := env.do(t, http.MethodGet, "/v1/reports?billType=water&month=0&year=2025&summary=llm", accessToken, nil)
	expectStatus(t, rec, http.StatusOK)
	var rep domain.Report
	decode(t, rec, &rep)
	if rep.NarrativeSource != domain.SummaryDeterministic || rep.Narrative == "" {
		t.Errorf("expected deterministic fallback, got %q (%s)", rep.Narrative, rep.NarrativeSource)
	}

	if snap := env.metrics.SummarySnapshot(); snap.LLMFallbacks != 1 {
		t.Errorf("expected one fallback, got %d", snap.LLMFallbacks)
	}
}
