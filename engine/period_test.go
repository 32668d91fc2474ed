/*
period_test.go - Period computation tests

The two period functions answer different questions and the tests keep them
apart: ProgressPeriod never extends past asOf, SettlementPeriod always
returns the complete block containing asOf.
*/
package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// PROGRESS PERIOD
// =============================================================================

func TestProgressPeriod_Weekly_MidBlock(t *testing.T) {
	// GIVEN: weekly worker anchored Mon 2025-01-06
	// WHEN: asked mid-way through the second block
	// THEN: the block start is the anchor plus one full week, end clamped to asOf
	anchor := NewDate(2025, time.January, 6)
	asOf := NewDate(2025, time.January, 15)

	p := ProgressPeriod(Weekly, anchor, asOf)

	assert.Equal(t, "2025-01-13", p.Start.String())
	assert.Equal(t, "2025-01-15", p.End.String())
}

func TestProgressPeriod_Weekly_OnAnchor(t *testing.T) {
	// asOf equal to an anchor date belongs to the period starting that day.
	anchor := NewDate(2025, time.January, 6)

	p := ProgressPeriod(Weekly, anchor, anchor)

	assert.Equal(t, "2025-01-06", p.Start.String())
	assert.Equal(t, "2025-01-06", p.End.String())
}

func TestProgressPeriod_BeforeAnchor(t *testing.T) {
	// A worker has no period before they started; the first block is shown.
	anchor := NewDate(2025, time.March, 10)
	asOf := NewDate(2025, time.March, 4)

	p := ProgressPeriod(Weekly, anchor, asOf)

	assert.Equal(t, "2025-03-10", p.Start.String())
	assert.Equal(t, "2025-03-16", p.End.String())
}

func TestProgressPeriod_Biweekly(t *testing.T) {
	anchor := NewDate(2025, time.January, 6)
	asOf := NewDate(2025, time.January, 21)

	p := ProgressPeriod(Biweekly, anchor, asOf)

	assert.Equal(t, "2025-01-20", p.Start.String())
	assert.Equal(t, "2025-01-21", p.End.String())
}

func TestProgressPeriod_Monthly_IsCalendarMonthToDate(t *testing.T) {
	// Monthly progress ignores the anchor entirely: calendar month to date.
	anchor := NewDate(2024, time.June, 25)
	asOf := NewDate(2025, time.February, 17)

	p := ProgressPeriod(Monthly, anchor, asOf)

	assert.Equal(t, "2025-02-01", p.Start.String())
	assert.Equal(t, "2025-02-17", p.End.String())
}

// =============================================================================
// SETTLEMENT PERIOD
// =============================================================================

func TestSettlementPeriod_Weekly_FullBlock(t *testing.T) {
	// Settlement always spans the whole block, even mid-cycle.
	anchor := NewDate(2025, time.January, 6)
	asOf := NewDate(2025, time.January, 15)

	p := SettlementPeriod(Weekly, anchor, asOf)

	assert.Equal(t, "2025-01-13", p.Start.String())
	assert.Equal(t, "2025-01-19", p.End.String())
	assert.False(t, p.Ended(asOf))
	assert.True(t, p.Ended(NewDate(2025, time.January, 19)))
}

func TestSettlementPeriod_Weekly_BeforeAnchor_TilesBackwards(t *testing.T) {
	// Blocks tile backwards from the anchor so asOf is always covered.
	anchor := NewDate(2025, time.March, 10)
	asOf := NewDate(2025, time.March, 4)

	p := SettlementPeriod(Weekly, anchor, asOf)

	assert.Equal(t, "2025-03-03", p.Start.String())
	assert.Equal(t, "2025-03-09", p.End.String())
	assert.True(t, p.Contains(asOf))
}

func TestSettlementPeriod_Biweekly(t *testing.T) {
	anchor := NewDate(2025, time.January, 6)
	asOf := NewDate(2025, time.January, 21)

	p := SettlementPeriod(Biweekly, anchor, asOf)

	assert.Equal(t, "2025-01-20", p.Start.String())
	assert.Equal(t, "2025-02-02", p.End.String())
}

func TestSettlementPeriod_Monthly_AnchorDay(t *testing.T) {
	// Anchor day 15: periods run 15th through the 14th of the next month.
	anchor := NewDate(2024, time.June, 15)
	asOf := NewDate(2025, time.March, 20)

	p := SettlementPeriod(Monthly, anchor, asOf)

	assert.Equal(t, "2025-03-15", p.Start.String())
	assert.Equal(t, "2025-04-14", p.End.String())
}

func TestSettlementPeriod_Monthly_Day31_ClampsToShortMonth(t *testing.T) {
	// GIVEN: a worker anchored on the 31st
	// WHEN: asked inside February
	// THEN: the period starts Jan 31 and ends the day before the clamped
	//       February anchor (Feb 28), never landing on an invalid date
	anchor := NewDate(2025, time.January, 31)
	asOf := NewDate(2025, time.February, 10)

	p := SettlementPeriod(Monthly, anchor, asOf)

	assert.Equal(t, "2025-01-31", p.Start.String())
	assert.Equal(t, "2025-02-27", p.End.String())
}

func TestSettlementPeriod_Monthly_OnClampedAnchor(t *testing.T) {
	// asOf exactly on the clamped anchor day starts a new period.
	anchor := NewDate(2025, time.January, 31)
	asOf := NewDate(2025, time.February, 28)

	p := SettlementPeriod(Monthly, anchor, asOf)

	assert.Equal(t, "2025-02-28", p.Start.String())
	assert.Equal(t, "2025-03-30", p.End.String())
}

func TestSettlementPeriod_NeverNegativeLength(t *testing.T) {
	anchors := []Date{
		NewDate(2025, time.January, 1),
		NewDate(2025, time.January, 31),
		NewDate(2024, time.December, 15),
	}
	asOfs := []Date{
		NewDate(2025, time.February, 1),
		NewDate(2025, time.February, 28),
		NewDate(2024, time.November, 3),
	}
	for _, freq := range []Frequency{Weekly, Biweekly, Monthly} {
		for _, anchor := range anchors {
			for _, asOf := range asOfs {
				p := SettlementPeriod(freq, anchor, asOf)
				assert.True(t, p.Start.BeforeOrEqual(p.End), "%s anchor=%s asOf=%s -> %s", freq, anchor, asOf, p)
				assert.True(t, p.Contains(asOf), "%s anchor=%s asOf=%s -> %s", freq, anchor, asOf, p)
			}
		}
	}
}
