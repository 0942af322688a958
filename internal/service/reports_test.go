package service_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/cache"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/observability"
	"github.com/boddenberg/utility-bills-bfa/internal/port"
	"github.com/boddenberg/utility-bills-bfa/internal/report"
	"github.com/boddenberg/utility-bills-bfa/internal/service"

	"go.uber.org/zap"
)

// --- Mocks ---

type mockBillSource struct {
	bills  []domain.BillRecord
	latest *domain.BillRecord
	err    error
}

func (m *mockBillSource) ListBills(_ context.Context, _ string) ([]domain.BillRecord, error) {
	return m.bills, m.err
}

func (m *mockBillSource) LatestBill(_ context.Context, _ string) (*domain.BillRecord, error) {
	if m.latest == nil {
		return nil, &domain.ErrNotFound{Resource: "bill", ID: "latest"}
	}
	return m.latest, nil
}

type mockSummarizer struct {
	text    string
	err     error
	calls   atomic.Int32
	prompts []string
}

func (m *mockSummarizer) Name() string { return "mock" }

func (m *mockSummarizer) Summarize(_ context.Context, prompt string) (string, error) {
	m.calls.Add(1)
	m.prompts = append(m.prompts, prompt)
	return m.text, m.err
}

func bill(t domain.BillType, y int, m time.Month, usage, cost float64, goal *float64) domain.BillRecord {
	return domain.BillRecord{
		ID:        string(t) + time.Date(y, m, 1, 0, 0, 0, 0, time.UTC).Format("-2006-01"),
		OwnerID:   "owner-1",
		BillType:  t,
		Date:      time.Date(y, m, 10, 0, 0, 0, 0, time.UTC),
		Usage:     usage,
		Cost:      cost,
		GoalUsage: goal,
	}
}

func sampleBills() []domain.BillRecord {
	return []domain.BillRecord{
		bill(domain.BillTypeWater, 2024, time.November, 10, 5, nil),
		bill(domain.BillTypeWater, 2024, time.December, 20, 15, nil),
		bill(domain.BillTypeWater, 2025, time.January, 30, 25, ptr(25)),
		bill(domain.BillTypeGas, 2025, time.January, 7, 14, nil),
		bill(domain.BillTypeWater, 2025, time.February, 99, 99, nil),
	}
}

func newReportService(source service.BillSource, llm *service.LLMSummary, metrics *observability.Metrics) *service.ReportService {
	var provider port.SummaryProvider
	if llm != nil {
		provider = llm
	}
	return service.NewReportService(source, report.NewAggregator(report.DefaultSettings()), provider, metrics, zap.NewNop())
}

func newLLM(s *mockSummarizer, metrics *observability.Metrics) *service.LLMSummary {
	return service.NewLLMSummary(s, cache.New[string](time.Minute), metrics, zap.NewNop())
}

var january2025Water = domain.ReportCriteria{BillType: domain.BillTypeWater, Month: 0, Year: 2025}

// --- Tests ---

func TestGetReport_Deterministic(t *testing.T) {
	metrics := observability.NewMetrics()
	svc := newReportService(&mockBillSource{bills: sampleBills()}, nil, metrics)

	rep, err := svc.GetReport(context.Background(), "owner-1", january2025Water, domain.SummaryDeterministic)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rep.Summary.Count != 3 || rep.Summary.TotalUsage != 60 || rep.Summary.TotalCost != 45 {
		t.Errorf("unexpected summary: %+v", rep.Summary)
	}
	if rep.Summary.GoalExceededCount != 1 {
		t.Errorf("expected 1 bill over goal, got %d", rep.Summary.GoalExceededCount)
	}
	if len(rep.Chart.Labels) != 3 || rep.Chart.Labels[0] != "Nov 2024" {
		t.Errorf("unexpected chart labels: %v", rep.Chart.Labels)
	}
	if rep.NarrativeSource != domain.SummaryDeterministic || rep.Narrative != rep.Summary.NarrativeText {
		t.Errorf("expected deterministic narrative, got %q from %s", rep.Narrative, rep.NarrativeSource)
	}
	if metrics.SummarySnapshot().DeterministicSummaries != 1 {
		t.Error("expected deterministic summary to be counted")
	}
}

func TestGetReport_InvalidCriteria(t *testing.T) {
	source := &mockBillSource{err: errors.New("must not be called")}
	svc := newReportService(source, nil, observability.NewMetrics())

	_, err := svc.GetReport(context.Background(), "owner-1", domain.ReportCriteria{BillType: "steam", Month: 0, Year: 2025}, domain.SummaryDeterministic)

	var invalid *domain.ErrInvalidCriteria
	if !errors.As(err, &invalid) {
		t.Fatalf("expected ErrInvalidCriteria, got %v", err)
	}
}

func TestGetReport_StoreUnavailable(t *testing.T) {
	source := &mockBillSource{err: &domain.ErrStoreUnavailable{Store: "supabase", Err: errors.New("timeout")}}
	svc := newReportService(source, nil, observability.NewMetrics())

	_, err := svc.GetReport(context.Background(), "owner-1", january2025Water, domain.SummaryDeterministic)

	var unavailable *domain.ErrStoreUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestGetReport_LLM(t *testing.T) {
	metrics := observability.NewMetrics()
	summarizer := &mockSummarizer{text: "Usage went up but stayed close to the goal."}
	svc := newReportService(&mockBillSource{bills: sampleBills()}, newLLM(summarizer, metrics), metrics)

	rep, err := svc.GetReport(context.Background(), "owner-1", january2025Water, domain.SummaryLLM)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rep.NarrativeSource != domain.SummaryLLM || rep.Narrative != summarizer.text {
		t.Errorf("expected llm narrative, got %q from %s", rep.Narrative, rep.NarrativeSource)
	}

	prompt := summarizer.prompts[0]
	for _, want := range []string{"Analyze the following data:", `"bill_type":"water"`, "Goal Usage: 25", "Total Usage: 60"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}

	// same window, cached narrative
	_, _ = svc.GetReport(context.Background(), "owner-1", january2025Water, domain.SummaryLLM)
	if summarizer.calls.Load() != 1 {
		t.Errorf("expected cached narrative on second call, got %d calls", summarizer.calls.Load())
	}
	if metrics.SummarySnapshot().LLMSummaries != 2 {
		t.Errorf("expected 2 llm summaries, got %d", metrics.SummarySnapshot().LLMSummaries)
	}
}

func TestGetReport_LLMFallsBackOnUpstreamError(t *testing.T) {
	metrics := observability.NewMetrics()
	summarizer := &mockSummarizer{err: &domain.ErrUpstream{Provider: "mock", Status: 429, Err: errors.New("rate limited")}}
	svc := newReportService(&mockBillSource{bills: sampleBills()}, newLLM(summarizer, metrics), metrics)

	rep, err := svc.GetReport(context.Background(), "owner-1", january2025Water, domain.SummaryLLM)
	if err != nil {
		t.Fatalf("fallback must not fail the report, got %v", err)
	}
	if rep.NarrativeSource != domain.SummaryDeterministic {
		t.Errorf("expected deterministic source after fallback, got %s", rep.NarrativeSource)
	}
	if !strings.HasPrefix(rep.Narrative, "In the past three months including 1/2025") {
		t.Errorf("unexpected fallback narrative %q", rep.Narrative)
	}

	snap := metrics.SummarySnapshot()
	if snap.LLMFallbacks != 1 || snap.FallbackRate != 1 {
		t.Errorf("expected fallback counted, got %+v", snap)
	}
}

func TestGetReport_LLMSkippedForEmptyWindow(t *testing.T) {
	metrics := observability.NewMetrics()
	summarizer := &mockSummarizer{text: "unused"}
	svc := newReportService(&mockBillSource{}, newLLM(summarizer, metrics), metrics)

	rep, err := svc.GetReport(context.Background(), "owner-1", january2025Water, domain.SummaryLLM)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rep.Narrative != report.NoReportsNarrative {
		t.Errorf("unexpected narrative %q", rep.Narrative)
	}
	if summarizer.calls.Load() != 0 {
		t.Error("empty window must not reach the model")
	}
}

func TestGetReport_LLMNotConfigured(t *testing.T) {
	svc := newReportService(&mockBillSource{bills: sampleBills()}, nil, observability.NewMetrics())

	rep, err := svc.GetReport(context.Background(), "owner-1", january2025Water, domain.SummaryLLM)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rep.NarrativeSource != domain.SummaryDeterministic {
		t.Errorf("expected deterministic source, got %s", rep.NarrativeSource)
	}
}

func TestGetOverview(t *testing.T) {
	svc := newReportService(&mockBillSource{bills: sampleBills()}, nil, observability.NewMetrics())

	overview, err := svc.GetOverview(context.Background(), "owner-1", 0, 2025, domain.SummaryDeterministic)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(overview.Reports) != len(domain.BillTypes) {
		t.Fatalf("expected one report per bill type, got %d", len(overview.Reports))
	}
	counts := map[domain.BillType]int{}
	for _, r := range overview.Reports {
		counts[r.Criteria.BillType] = r.Summary.Count
	}
	if counts[domain.BillTypeWater] != 3 || counts[domain.BillTypeGas] != 1 || counts[domain.BillTypeElectricity] != 0 {
		t.Errorf("unexpected counts: %v", counts)
	}

	_, err = svc.GetOverview(context.Background(), "owner-1", 12, 2025, domain.SummaryDeterministic)
	var invalid *domain.ErrInvalidCriteria
	if !errors.As(err, &invalid) {
		t.Errorf("expected ErrInvalidCriteria, got %v", err)
	}
}

func TestGetDashboard_UsesLatestBill(t *testing.T) {
	latest := bill(domain.BillTypeWater, 2025, time.January, 30, 25, ptr(25))
	svc := newReportService(&mockBillSource{bills: sampleBills(), latest: &latest}, nil, observability.NewMetrics())

	rep, err := svc.GetDashboard(context.Background(), "owner-1", domain.SummaryDeterministic)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if rep.Criteria != january2025Water {
		t.Errorf("unexpected criteria %+v", rep.Criteria)
	}
}

func TestGetDashboard_NoBills(t *testing.T) {
	svc := newReportService(&mockBillSource{}, nil, observability.NewMetrics())

	_, err := svc.GetDashboard(context.Background(), "owner-1", domain.SummaryDeterministic)

	var notFound *domain.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExport(t *testing.T) {
	svc := newReportService(&mockBillSource{bills: sampleBills()}, nil, observability.NewMetrics())

	file, err := svc.Export(context.Background(), "owner-1", january2025Water, domain.ExportPDF)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if file.Filename != "water-report-2025-01.pdf" || len(file.Data) == 0 {
		t.Errorf("unexpected export: %s (%d bytes)", file.Filename, len(file.Data))
	}
}
