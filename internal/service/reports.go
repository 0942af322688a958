package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
	"github.com/boddenberg/utility-bills-bfa/internal/export"
	"github.com/boddenberg/utility-bills-bfa/internal/infra/observability"
	"github.com/boddenberg/utility-bills-bfa/internal/port"
	"github.com/boddenberg/utility-bills-bfa/internal/report"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// BillSource is what the report service reads bills from. *BillService
// satisfies it.
type BillSource interface {
	ListBills(ctx context.Context, ownerID string) ([]domain.BillRecord, error)
	LatestBill(ctx context.Context, ownerID string) (*domain.BillRecord, error)
}

// ReportService builds reports from the owner's bills.
type ReportService struct {
	bills      BillSource
	aggregator *report.Aggregator
	providers  map[domain.SummaryStrategy]port.SummaryProvider
	renderer   *export.Renderer
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewReportService creates the report service. The deterministic provider is
// always registered; llm may be nil when no model is configured.
func NewReportService(
	bills BillSource,
	aggregator *report.Aggregator,
	llm port.SummaryProvider,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ReportService {
	providers := map[domain.SummaryStrategy]port.SummaryProvider{
		domain.SummaryDeterministic: DeterministicSummary{},
	}
	if llm != nil {
		providers[llm.Strategy()] = llm
	}
	return &ReportService{
		bills:      bills,
		aggregator: aggregator,
		providers:  providers,
		renderer:   export.NewRenderer(aggregator.Settings()),
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

// GetReport builds the report for one bill type and month.
func (s *ReportService) GetReport(ctx context.Context, ownerID string, c domain.ReportCriteria, strategy domain.SummaryStrategy) (*domain.Report, error) {
	ctx, span := tracer.Start(ctx, "ReportService.GetReport")
	defer span.End()
	span.SetAttributes(
		attribute.String("owner.id", ownerID),
		attribute.String("bill.type", string(c.BillType)),
		attribute.Int("report.month", c.Month),
		attribute.Int("report.year", c.Year),
		attribute.String("summary.strategy", string(strategy)),
	)

	if err := report.ValidateCriteria(c); err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("report", time.Since(start))
	}()

	bills, err := s.bills.ListBills(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.build(ctx, bills, c, strategy)
}

func (s *ReportService) build(ctx context.Context, bills []domain.BillRecord, c domain.ReportCriteria, strategy domain.SummaryStrategy) (*domain.Report, error) {
	summary, chart, err := s.aggregator.Build(bills, c)
	if err != nil {
		return nil, err
	}

	narrative, err := s.provider(strategy).Summarize(ctx, &domain.SummaryInput{
		Criteria: c,
		Window:   summary.WindowRecords,
		Summary:  summary,
	})
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	s.metrics.IncrSummary(narrative.Source)

	return &domain.Report{
		Criteria:        c,
		Records:         summary.WindowRecords,
		Summary:         summary,
		Chart:           chart,
		Narrative:       narrative.Text,
		NarrativeSource: narrative.Source,
		GeneratedAt:     s.now().UTC(),
	}, nil
}

func (s *ReportService) provider(strategy domain.SummaryStrategy) port.SummaryProvider {
	if p, ok := s.providers[strategy]; ok {
		return p
	}
	s.logger.Debug("summary strategy not configured, using deterministic",
		zap.String("strategy", string(strategy)),
	)
	return s.providers[domain.SummaryDeterministic]
}

// GetOverview builds one report per bill type for the same month. The bill
// list is read once; reports are built concurrently.
func (s *ReportService) GetOverview(ctx context.Context, ownerID string, month, year int, strategy domain.SummaryStrategy) (*domain.Overview, error) {
	ctx, span := tracer.Start(ctx, "ReportService.GetOverview")
	defer span.End()

	if err := report.ValidateCriteria(domain.ReportCriteria{BillType: domain.BillTypeWater, Month: month, Year: year}); err != nil {
		return nil, err
	}

	bills, err := s.bills.ListBills(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	reports := make([]*domain.Report, len(domain.BillTypes))
	g, gCtx := errgroup.WithContext(ctx)
	for i, t := range domain.BillTypes {
		g.Go(func() error {
			r, err := s.build(gCtx, bills, domain.ReportCriteria{BillType: t, Month: month, Year: year}, strategy)
			if err != nil {
				s.logger.Error("overview report failed",
					zap.String("owner_id", ownerID),
					zap.String("bill_type", string(t)),
					zap.Error(err),
				)
				return fmt.Errorf("%s report: %w", t, err)
			}
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &domain.Overview{Month: month, Year: year, Reports: reports}, nil
}

// GetDashboard builds the report for the bill type and month of the owner's
// most recent bill.
func (s *ReportService) GetDashboard(ctx context.Context, ownerID string, strategy domain.SummaryStrategy) (*domain.Report, error) {
	ctx, span := tracer.Start(ctx, "ReportService.GetDashboard")
	defer span.End()

	latest, err := s.bills.LatestBill(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.GetReport(ctx, ownerID, CriteriaOf(latest), strategy)
}

// CriteriaOf returns the report criteria whose window ends with the bill's month.
func CriteriaOf(b *domain.BillRecord) domain.ReportCriteria {
	return domain.ReportCriteria{
		BillType: b.BillType,
		Month:    int(b.Date.Month()) - 1,
		Year:     b.Date.Year(),
	}
}

// Export renders the deterministic report as XLSX or PDF.
func (s *ReportService) Export(ctx context.Context, ownerID string, c domain.ReportCriteria, format domain.ExportFormat) (*domain.ExportFile, error) {
	ctx, span := tracer.Start(ctx, "ReportService.Export")
	defer span.End()
	span.SetAttributes(attribute.String("export.format", string(format)))

	rep, err := s.GetReport(ctx, ownerID, c, domain.SummaryDeterministic)
	if err != nil {
		return nil, err
	}

	file, err := s.renderer.Render(rep, format)
	if err != nil {
		s.logger.Error("report export failed",
			zap.String("owner_id", ownerID),
			zap.String("format", string(format)),
			zap.Error(err),
		)
		return nil, err
	}

	s.metrics.IncrExport(format)
	return file, nil
}
