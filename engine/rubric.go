/*
rubric.go - Daily equivalence rubric

PURPOSE:
  Normalizes the two rubric-bearing task categories (combing, measured in kg,
  and weaving, measured in metres) into one progress score against a shared
  daily target. 60 metres of weaving count as 1 kg of combing.

  The rubric is evaluated twice per work day: once over everything logged
  (immediate guidance for the worker) and once over approved quantities only
  (what payroll will actually see). Callers keep the two results distinct.

SEE ALSO:
  - worklog/: attaches both evaluations to day views
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// RUBRIC CONSTANTS
// =============================================================================

var (
	// DailyTargetKgEquiv is the daily production target in kg-equivalents.
	DailyTargetKgEquiv = decimal.RequireFromString("1.0")

	// MetresPerKgEquiv is the exchange rate: metres of weaving per kg of
	// combing.
	MetresPerKgEquiv = decimal.RequireFromString("60.0")
)

// =============================================================================
// RUBRIC EVALUATION
// =============================================================================

// RubricResult is the normalized daily progress for one work day.
type RubricResult struct {
	// ProgressKgEquiv is combed kg plus woven metres converted at the
	// exchange rate.
	ProgressKgEquiv decimal.Decimal

	// TargetMet is true once progress reaches the daily target.
	TargetMet bool

	// WeavingNeededM is how many metres of weaving alone would close the
	// combing shortfall. Zero when combing alone already covers the target.
	WeavingNeededM decimal.Decimal

	// CombingNeededKg is how many kg of combing alone would close the
	// weaving shortfall. Zero when weaving alone already reaches full
	// equivalence.
	CombingNeededKg decimal.Decimal
}

// EvaluateRubric scores a day's combing and weaving output. Quantities are
// taken as-is; the caller decides whether they are logged or approved-only
// totals. Remaining figures are floored at zero, never negative.
func EvaluateRubric(combedKg, wovenM Quantity) RubricResult {
	progress := combedKg.Value.Add(wovenM.Value.Div(MetresPerKgEquiv))

	weavingNeeded := decimal.Zero
	if combedKg.Value.LessThan(DailyTargetKgEquiv) {
		weavingNeeded = DailyTargetKgEquiv.Sub(combedKg.Value).Mul(MetresPerKgEquiv)
		if weavingNeeded.IsNegative() {
			weavingNeeded = decimal.Zero
		}
	}

	combingNeeded := decimal.Zero
	if wovenM.Value.LessThan(MetresPerKgEquiv) {
		combingNeeded = MetresPerKgEquiv.Sub(wovenM.Value).Div(MetresPerKgEquiv)
		if combingNeeded.IsNegative() {
			combingNeeded = decimal.Zero
		}
	}

	return RubricResult{
		ProgressKgEquiv: progress,
		TargetMet:       progress.GreaterThanOrEqual(DailyTargetKgEquiv),
		WeavingNeededM:  weavingNeeded,
		CombingNeededKg: combingNeeded,
	}
}
