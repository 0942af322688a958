package domain

import "time"

// ============================================================
// Reports
// ============================================================

// ReportCriteria selects the bill type and the month that ends the window.
// Month is zero-based (0 = January).
type ReportCriteria struct {
	BillType BillType `json:"billType"`
	Month    int      `json:"month"`
	Year     int      `json:"year"`
}

// AggregateSummary holds the statistics of a report window.
// Averages are nil when the window is empty.
type AggregateSummary struct {
	WindowRecords     []BillRecord `json:"-"`
	Count             int          `json:"count"`
	TotalUsage        float64      `json:"totalUsage"`
	TotalCost         float64      `json:"totalCost"`
	AverageUsage      *float64     `json:"averageUsage,omitempty"`
	AverageCost       *float64     `json:"averageCost,omitempty"`
	GoalExceededCount int          `json:"goalExceededCount"`
	NarrativeText     string       `json:"narrativeText"`
}

// Empty reports whether the window held no records.
func (s *AggregateSummary) Empty() bool {
	return s.Count == 0
}

// ChartSeries is the chart-ready projection of a report window.
// All slices have the same length as the window.
type ChartSeries struct {
	Labels      []string  `json:"labels"`
	UsageSeries []float64 `json:"usageSeries"`
	CostSeries  []float64 `json:"costSeries"`
	GoalSeries  []float64 `json:"goalSeries"`
}

// SummaryStrategy names the narrative source requested by the caller.
type SummaryStrategy string

const (
	SummaryDeterministic SummaryStrategy = "deterministic"
	SummaryLLM           SummaryStrategy = "llm"
)

// ParseSummaryStrategy defaults to the deterministic strategy.
func ParseSummaryStrategy(s string) (SummaryStrategy, error) {
	switch SummaryStrategy(s) {
	case "", SummaryDeterministic:
		return SummaryDeterministic, nil
	case SummaryLLM:
		return SummaryLLM, nil
	}
	return "", &ErrValidation{Field: "summary", Message: "must be 'deterministic' or 'llm'"}
}

// Report is the full response for one criteria selection.
type Report struct {
	Criteria        ReportCriteria    `json:"criteria"`
	Records         []BillRecord      `json:"-"`
	Summary         *AggregateSummary `json:"summary"`
	Chart           ChartSeries       `json:"chart"`
	Narrative       string            `json:"narrative"`
	NarrativeSource SummaryStrategy   `json:"narrativeSource"`
	GeneratedAt     time.Time         `json:"generatedAt"`
}

// SummaryInput is what a SummaryProvider receives.
type SummaryInput struct {
	Criteria ReportCriteria
	Window   []BillRecord
	Summary  *AggregateSummary
}

// Narrative is the text produced by a SummaryProvider and the strategy that
// actually produced it. Source differs from the requested strategy after a
// fallback.
type Narrative struct {
	Text   string          `json:"text"`
	Source SummaryStrategy `json:"source"`
}

// Overview holds one report per bill type for the same month.
type Overview struct {
	Month   int       `json:"month"`
	Year    int       `json:"year"`
	Reports []*Report `json:"reports"`
}

// ExportFormat names a downloadable report rendering.
type ExportFormat string

const (
	ExportXLSX ExportFormat = "xlsx"
	ExportPDF  ExportFormat = "pdf"
)

// ParseExportFormat defaults to XLSX.
func ParseExportFormat(s string) (ExportFormat, error) {
	switch ExportFormat(s) {
	case "", ExportXLSX:
		return ExportXLSX, nil
	case ExportPDF:
		return ExportPDF, nil
	}
	return "", &ErrValidation{Field: "format", Message: "must be 'xlsx' or 'pdf'"}
}

// ContentType returns the MIME type of the rendering.
func (f ExportFormat) ContentType() string {
	if f == ExportPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// ExportFile is a rendered report ready for download.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
