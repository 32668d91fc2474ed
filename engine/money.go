/*
Package engine provides the core piecework settlement domain.

PURPOSE:
  This package contains the types and algorithms shared by work logging,
  approval and payroll settlement: calendar dates, decimal money, settlement
  period computation, the equivalence rubric, rate resolution, and the
  storage/audit interfaces everything else is built against.

KEY CONCEPTS:
  - Date: a civil calendar day; all period math is day-based
  - Money / Quantity: decimal values (never floats) for pay and output
  - Period: an inclusive [Start, End] settlement window per worker
  - WorkTask: a quantified, priced unit of piecework subject to approval
  - PayrollRun: the batch that marks approved work as paid exactly once

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal end to end, no floating-point money
  2. Exactly-once settlement: a task is claimed by at most one payroll run
  3. Explicit storage handles: no package-level connection state
  4. Auditability: every mutation emits a structured audit event

SEE ALSO:
  - period.go: settlement vs progress period computation
  - store.go: storage, audit and authorization interfaces
  - model.go: persisted entity definitions
*/
package engine

import "github.com/shopspring/decimal"

// =============================================================================
// MONEY - Currency amount in NGN
// =============================================================================

// MinorUnitPlaces is the currency precision for settled pay. All stored pay
// amounts are rounded to this many decimal places.
const MinorUnitPlaces = 2

// Money is an NGN amount. The system is single-currency; a unit tag would be
// dead weight on every row.
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value float64) Money {
	return Money{Value: decimal.NewFromFloat(value)}
}

func MoneyFromDecimal(d decimal.Decimal) Money { return Money{Value: d} }

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

// MustParseMoney parses a stored decimal string, returning zero on malformed
// input. Storage writes amounts with String(), so failures indicate corrupt
// rows, not user input.
func MustParseMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroMoney()
	}
	return Money{Value: d}
}

func (m Money) Add(other Money) Money    { return Money{Value: m.Value.Add(other.Value)} }
func (m Money) IsZero() bool             { return m.Value.IsZero() }
func (m Money) IsPositive() bool         { return m.Value.IsPositive() }
func (m Money) Equal(other Money) bool   { return m.Value.Equal(other.Value) }
func (m Money) String() string           { return m.Value.StringFixed(MinorUnitPlaces) }

// RoundMinor rounds to the currency minor unit, half up. decimal.Round is
// half-away-from-zero; pay amounts are never negative, so the two coincide.
func (m Money) RoundMinor() Money {
	return Money{Value: m.Value.Round(MinorUnitPlaces)}
}

// =============================================================================
// QUANTITY - Logged output (kg, metres, pieces)
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
}

func NewQuantity(value float64) Quantity {
	return Quantity{Value: decimal.NewFromFloat(value)}
}

func QuantityFromDecimal(d decimal.Decimal) Quantity { return Quantity{Value: d} }

func ZeroQuantity() Quantity { return Quantity{Value: decimal.Zero} }

func MustParseQuantity(s string) Quantity {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroQuantity()
	}
	return Quantity{Value: d}
}

func (q Quantity) Add(other Quantity) Quantity { return Quantity{Value: q.Value.Add(other.Value)} }
func (q Quantity) IsNegative() bool            { return q.Value.IsNegative() }
func (q Quantity) IsZero() bool                { return q.Value.IsZero() }
func (q Quantity) String() string              { return q.Value.String() }

// MulRate prices a quantity at a per-unit rate. The result is NOT rounded;
// rounding happens once, at the decision or aggregation boundary.
func (q Quantity) MulRate(rate Money) Money {
	return Money{Value: q.Value.Mul(rate.Value)}
}
