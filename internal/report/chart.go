package report

import (
	"github.com/boddenberg/utility-bills-bfa/internal/domain"
)

// LabelLayout formats chart labels, e.g. "Jan 2025".
const LabelLayout = "Jan 2006"

// ProjectChartSeries maps the window to equal-length chart series in window
// order. Unset goals are plotted at Settings.DefaultGoalUsage.
func (a *Aggregator) ProjectChartSeries(window []domain.BillRecord) domain.ChartSeries {
	series := domain.ChartSeries{
		Labels:      make([]string, 0, len(window)),
		UsageSeries: make([]float64, 0, len(window)),
		CostSeries:  make([]float64, 0, len(window)),
		GoalSeries:  make([]float64, 0, len(window)),
	}
	for _, r := range window {
		goal := a.settings.DefaultGoalUsage
		if r.HasGoal() {
			goal = r.Goal()
		}
		series.Labels = append(series.Labels, r.Date.Format(LabelLayout))
		series.UsageSeries = append(series.UsageSeries, r.Usage)
		series.CostSeries = append(series.CostSeries, r.Cost)
		series.GoalSeries = append(series.GoalSeries, goal)
	}
	return series
}
