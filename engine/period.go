/*
period.go - Settlement period computation

PURPOSE:
  Maps (payout frequency, anchor date, as-of date) to the inclusive
  [start, end] period containing the as-of date. Every worker carries an
  anchor date that defines where their recurring periods begin.

TWO VIEWS, TWO FUNCTIONS:
  The system needs two deliberately different period shapes and names both:

  ProgressPeriod    "period so far" - live payroll views. The end never
                    exceeds asOf; monthly means the calendar month to date.

  SettlementPeriod  full fixed block - payroll run eligibility. Always the
                    complete 7/14-day block (or anchor-day month), so a run
                    executed mid-cycle still settles whole periods.

  Settlement code MUST use SettlementPeriod; mixing the two silently changes
  which tasks a run considers eligible.

EDGE CASES:
  - asOf before the anchor: ProgressPeriod returns the worker's first block
    starting at the anchor (a worker has no period before they started);
    SettlementPeriod tiles blocks backwards so asOf is always covered.
  - Monthly anchor day 31: clamped to the last day of short months. Periods
    never have negative length and never land on an invalid date.
  - asOf equal to an anchor date belongs to the period starting that day.

SEE ALSO:
  - settlement/: the only caller allowed to mark work as paid
*/
package engine

// =============================================================================
// FREQUENCY - Worker payout cadence
// =============================================================================

type Frequency string

const (
	Weekly   Frequency = "weekly"
	Biweekly Frequency = "biweekly"
	Monthly  Frequency = "monthly"
)

// Valid reports whether the frequency is one of the three supported cadences.
func (f Frequency) Valid() bool {
	switch f {
	case Weekly, Biweekly, Monthly:
		return true
	}
	return false
}

// blockDays returns the fixed block length for weekly/biweekly cadences.
func (f Frequency) blockDays() int {
	if f == Biweekly {
		return 14
	}
	return 7
}

// =============================================================================
// PERIOD - Inclusive [Start, End] window
// =============================================================================

type Period struct {
	Start Date
	End   Date
}

// Contains returns true if the date is within [Start, End].
func (p Period) Contains(d Date) bool {
	return d.AfterOrEqual(p.Start) && d.BeforeOrEqual(p.End)
}

// Ended reports whether the period has fully elapsed as of the given date.
func (p Period) Ended(asOf Date) bool {
	return p.End.BeforeOrEqual(asOf)
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// =============================================================================
// PROGRESS PERIOD - "period so far", for live views
// =============================================================================

// ProgressPeriod returns the period containing asOf with the end clamped to
// asOf. Used by worker statements and day views, never by settlement.
func ProgressPeriod(freq Frequency, anchor, asOf Date) Period {
	if freq == Monthly {
		return Period{Start: NewDate(asOf.Year(), asOf.Month(), 1), End: asOf}
	}

	block := freq.blockDays()
	delta := DaysBetween(anchor, asOf)
	if delta < 0 {
		// Worker has no period before their anchor; show the first block.
		return Period{Start: anchor, End: anchor.AddDays(block - 1)}
	}

	start := anchor.AddDays((delta / block) * block)
	end := start.AddDays(block - 1).Min(asOf)
	return Period{Start: start, End: end}
}

// =============================================================================
// SETTLEMENT PERIOD - Full fixed block, for payroll runs
// =============================================================================

// SettlementPeriod returns the complete period containing asOf. Weekly and
// biweekly blocks tile in both directions from the anchor; monthly periods
// run from the anchor's day-of-month (clamped to month length) through the
// day before the next anchor-day.
func SettlementPeriod(freq Frequency, anchor, asOf Date) Period {
	if freq == Monthly {
		return monthlySettlementPeriod(anchor, asOf)
	}

	block := freq.blockDays()
	delta := DaysBetween(anchor, asOf)

	var start Date
	if delta < 0 {
		blocks := (-delta + block - 1) / block
		start = anchor.AddDays(-blocks * block)
	} else {
		start = anchor.AddDays((delta / block) * block)
	}
	return Period{Start: start, End: start.AddDays(block - 1)}
}

func monthlySettlementPeriod(anchor, asOf Date) Period {
	anchorDay := anchor.Day()

	// Most recent anchor-day on or before asOf.
	start := clampToMonth(asOf.Year(), asOf.Month(), anchorDay)
	if start.After(asOf) {
		prev := NewDate(asOf.Year(), asOf.Month(), 1).AddMonths(-1)
		start = clampToMonth(prev.Year(), prev.Month(), anchorDay)
	}

	next := NewDate(start.Year(), start.Month(), 1).AddMonths(1)
	nextAnchor := clampToMonth(next.Year(), next.Month(), anchorDay)
	return Period{Start: start, End: nextAnchor.AddDays(-1)}
}
