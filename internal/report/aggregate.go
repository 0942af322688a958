package report

import (
	"github.com/boddenberg/utility-bills-bfa/internal/domain"
)

// Aggregator computes summaries and chart series for a report window.
// It holds only read-only settings and is safe for concurrent use.
type Aggregator struct {
	settings Settings
}

// NewAggregator creates an Aggregator with its own copy of the settings.
func NewAggregator(settings Settings) *Aggregator {
	return &Aggregator{settings: settings.clone()}
}

// Settings returns the presentation settings in use.
func (a *Aggregator) Settings() Settings {
	return a.settings.clone()
}

// Aggregate computes totals, half-up averages, the goal-exceeded count and
// the narrative for window. An empty window yields NoReportsNarrative with
// zero totals and nil averages.
func (a *Aggregator) Aggregate(window []domain.BillRecord, c domain.ReportCriteria) (*domain.AggregateSummary, error) {
	if err := ValidateCriteria(c); err != nil {
		return nil, err
	}

	records := make([]domain.BillRecord, len(window))
	copy(records, window)

	if len(records) == 0 {
		return &domain.AggregateSummary{
			WindowRecords: records,
			NarrativeText: NoReportsNarrative,
		}, nil
	}

	totals := sumWindow(records)
	avgUsage := totals.usage.div(len(records)).round()
	avgCost := totals.cost.div(len(records)).round()

	avgUsageValue := avgUsage.float()
	avgCostValue := avgCost.float()

	summary := &domain.AggregateSummary{
		WindowRecords:     records,
		Count:             len(records),
		TotalUsage:        totals.usage.float(),
		TotalCost:         totals.cost.float(),
		AverageUsage:      &avgUsageValue,
		AverageCost:       &avgCostValue,
		GoalExceededCount: countGoalExceeded(records),
	}
	summary.NarrativeText = a.narrate(c, totals, avgUsage, avgCost, summary.GoalExceededCount)
	return summary, nil
}

// Build runs the whole pipeline for one criteria selection.
func (a *Aggregator) Build(records []domain.BillRecord, c domain.ReportCriteria) (*domain.AggregateSummary, domain.ChartSeries, error) {
	window, err := SelectWindow(records, c)
	if err != nil {
		return nil, domain.ChartSeries{}, err
	}
	summary, err := a.Aggregate(window, c)
	if err != nil {
		return nil, domain.ChartSeries{}, err
	}
	return summary, a.ProjectChartSeries(window), nil
}

type windowTotals struct {
	usage amount
	cost  amount
}

func sumWindow(records []domain.BillRecord) windowTotals {
	var t windowTotals
	for _, r := range records {
		t.usage = t.usage.add(amountOf(r.Usage))
		t.cost = t.cost.add(amountOf(r.Cost))
	}
	return t
}

// countGoalExceeded counts records with a goal set whose usage is strictly above it.
func countGoalExceeded(records []domain.BillRecord) int {
	n := 0
	for _, r := range records {
		if r.HasGoal() && r.Usage > r.Goal() {
			n++
		}
	}
	return n
}
