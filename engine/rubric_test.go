package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// RUBRIC EVALUATION
// =============================================================================

func TestEvaluateRubric_MixedOutputMeetsTarget(t *testing.T) {
	// GIVEN: half a kilogram combed and 30 metres woven
	// WHEN: evaluating the rubric
	// THEN: 30 m converts to 0.5 kg-equivalent, so the day exactly hits 1.0
	r := EvaluateRubric(NewQuantity(0.5), NewQuantity(30))

	assert.Equal(t, "1", r.ProgressKgEquiv.String())
	assert.True(t, r.TargetMet)
	assert.Equal(t, "30", r.WeavingNeededM.String())
	assert.Equal(t, "0.5", r.CombingNeededKg.String())
}

func TestEvaluateRubric_NothingLogged(t *testing.T) {
	r := EvaluateRubric(ZeroQuantity(), ZeroQuantity())

	assert.True(t, r.ProgressKgEquiv.IsZero())
	assert.False(t, r.TargetMet)
	assert.Equal(t, "60", r.WeavingNeededM.String())
	assert.Equal(t, "1", r.CombingNeededKg.String())
}

func TestEvaluateRubric_CombingAloneOverTarget(t *testing.T) {
	// Combing at or above the target zeroes the weaving-needed figure.
	r := EvaluateRubric(NewQuantity(1.2), ZeroQuantity())

	assert.True(t, r.TargetMet)
	assert.True(t, r.WeavingNeededM.IsZero())
	assert.Equal(t, "1", r.CombingNeededKg.String())
}

func TestEvaluateRubric_WeavingAloneOverTarget(t *testing.T) {
	r := EvaluateRubric(ZeroQuantity(), NewQuantity(90))

	assert.Equal(t, "1.5", r.ProgressKgEquiv.String())
	assert.True(t, r.TargetMet)
	assert.True(t, r.CombingNeededKg.IsZero())
}

// =============================================================================
// MONEY ROUNDING
// =============================================================================

func TestMoney_RoundMinor_HalfUp(t *testing.T) {
	// 3.335 kg at 100.00/kg prices to 333.50 exactly; the half rounds up.
	pay := MustParseQuantity("3.335").MulRate(MustParseMoney("100.00"))

	assert.Equal(t, "333.50", pay.RoundMinor().String())
}

func TestMoney_String_AlwaysTwoPlaces(t *testing.T) {
	assert.Equal(t, "5.00", NewMoney(5).String())
	assert.Equal(t, "0.00", ZeroMoney().String())
	assert.Equal(t, "12.30", MustParseMoney("12.3").String())
}

func TestQuantity_MulRate_DoesNotRound(t *testing.T) {
	// Pricing keeps full precision; rounding happens once at the boundary.
	pay := MustParseQuantity("0.333").MulRate(MustParseMoney("10.00"))

	assert.Equal(t, "3.33", pay.RoundMinor().String())
	assert.Equal(t, "3.33", pay.String())
	assert.Equal(t, "3.33", pay.Value.StringFixed(2))
	assert.Equal(t, "3.3300", pay.Value.StringFixed(4))
}
