package report

import "github.com/boddenberg/utility-bills-bfa/internal/domain"

// DefaultGoalUsage is plotted on the goal series for records without a goal.
// It is a display placeholder, not a computed target; the dashboard plotted
// unset goals at zero, so zero is kept unless configuration overrides it.
const DefaultGoalUsage = 0.0

// DefaultCurrencySymbol prefixes every cost in the narrative.
const DefaultCurrencySymbol = "$"

// Settings are the presentation constants used by the Aggregator.
type Settings struct {
	CurrencySymbol   string
	Units            map[domain.BillType]string
	DefaultGoalUsage float64
}

// DefaultSettings returns the units and symbols the dashboard shows.
func DefaultSettings() Settings {
	return Settings{
		CurrencySymbol: DefaultCurrencySymbol,
		Units: map[domain.BillType]string{
			domain.BillTypeWater:       "gallons",
			domain.BillTypeGas:         "therms",
			domain.BillTypeElectricity: "kWh",
		},
		DefaultGoalUsage: DefaultGoalUsage,
	}
}

// Unit returns the usage unit for a bill type, or "units" when none is configured.
func (s Settings) Unit(t domain.BillType) string {
	if u, ok := s.Units[t]; ok && u != "" {
		return u
	}
	return "units"
}

func (s Settings) clone() Settings {
	units := make(map[domain.BillType]string, len(s.Units))
	for k, v := range s.Units {
		units[k] = v
	}
	s.Units = units
	if s.CurrencySymbol == "" {
		s.CurrencySymbol = DefaultCurrencySymbol
	}
	return s
}
