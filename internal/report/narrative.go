package report

import (
	"fmt"
	"strings"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"
)

// NoReportsNarrative is the whole narrative of an empty window.
const NoReportsNarrative = "No reports available for the selected criteria."

// Closing clauses. Every non-empty narrative ends with exactly one of them.
const (
	GoalExceededClause    = "Warning: your usage exceeded your goal on %d %s. Consider reviewing your consumption."
	GoalNotExceededClause = "Good job: your usage did not exceed your goal."
)

func (a *Aggregator) narrate(c domain.ReportCriteria, totals windowTotals, avgUsage, avgCost amount, exceeded int) string {
	unit := a.settings.Unit(c.BillType)
	currency := a.settings.CurrencySymbol

	var b strings.Builder
	fmt.Fprintf(&b, "In the past three months including %d/%d, your %s usage totaled %s %s at a total cost of %s%s. ",
		c.Month+1, c.Year, c.BillType, totals.usage.plain(), unit, currency, totals.cost.fixed())
	fmt.Fprintf(&b, "Average usage was %s %s and average cost was %s%s per bill. ",
		avgUsage.fixed(), unit, currency, avgCost.fixed())
	b.WriteString(closingClause(exceeded))
	return b.String()
}

func closingClause(exceeded int) string {
	if exceeded > 0 {
		noun := "bills"
		if exceeded == 1 {
			noun = "bill"
		}
		return fmt.Sprintf(GoalExceededClause, exceeded, noun)
	}
	return GoalNotExceededClause
}
