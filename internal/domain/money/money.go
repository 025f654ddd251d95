// Package money implements a non-negative, fixed-scale currency amount.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/mosaed-alotaibi/retail-discount-service/internal/domain/errs"
)

const (
	// Scale is the number of fractional digits every amount is held at.
	Scale = 2
	// factorScale is the precision of the intermediate percentage factor.
	factorScale = 4
)

var (
	hundred = decimal.NewFromInt(100)
	// maxAmount matches the NUMERIC(12,2) money columns.
	maxAmount = decimal.RequireFromString("9999999999.99")
)

// Money is an immutable, non-negative amount rounded half-up to Scale digits.
// The zero value is a valid amount of 0.00.
type Money struct {
	amount decimal.Decimal
}

// New returns Money for amount rounded to two decimals. Negative amounts are
// rejected with a validation error.
func New(amount decimal.Decimal) (Money, error) {
	if amount.IsNegative() {
		return Money{}, errs.Validation("amount", "amount cannot be negative")
	}
	return Money{amount: round(amount)}, nil
}

// FromString parses a decimal string into Money.
func FromString(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, errs.Validation("amount", fmt.Sprintf("invalid amount %q", s))
	}
	return New(d)
}

// FromInt returns Money for a whole number of currency units.
func FromInt(units int64) (Money, error) {
	return New(decimal.NewFromInt(units))
}

// Max returns the largest amount the service accepts and stores.
func Max() Money {
	return Money{amount: maxAmount}
}

// Zero returns the additive identity.
func Zero() Money {
	return Money{amount: round(decimal.Zero)}
}

// round applies half-up rounding. decimal.Round rounds half away from zero,
// which equals half-up for the non-negative amounts Money holds.
func round(d decimal.Decimal) decimal.Decimal {
	return d.Round(Scale)
}

// Amount returns the underlying decimal value.
func (m Money) Amount() decimal.Decimal {
	return round(m.amount)
}

// Add returns m + other.
func (m Money) Add(other Money) Money {
	return Money{amount: round(m.amount.Add(other.amount))}
}

// Sub returns m - other. It fails rather than clamping when other exceeds m.
func (m Money) Sub(other Money) (Money, error) {
	result := m.amount.Sub(other.amount)
	if result.IsNegative() {
		return Money{}, &errs.InvariantViolation{
			Op:     "subtract",
			Reason: "subtraction of " + other.String() + " from " + m.String() + " would result in negative amount",
		}
	}
	return Money{amount: round(result)}, nil
}

// Mul scales m by a non-negative factor.
func (m Money) Mul(factor decimal.Decimal) (Money, error) {
	if factor.IsNegative() {
		return Money{}, errs.Validation("factor", "factor cannot be negative")
	}
	return Money{amount: round(m.amount.Mul(factor))}, nil
}

// ApplyPercentage returns rate percent of m. The factor rate/100 is taken to
// four decimals before the product is rounded back to two.
func (m Money) ApplyPercentage(rate int) (Money, error) {
	if rate < 0 || rate > 100 {
		return Money{}, errs.Validation("percentage", "percentage must be between 0 and 100")
	}
	factor := decimal.NewFromInt(int64(rate)).DivRound(hundred, factorScale)
	return Money{amount: round(m.amount.Mul(factor))}, nil
}

// DivFloor returns how many whole times divisor fits into m, truncating
// toward zero. A quotient that does not fit in int64 is an invariant error.
func (m Money) DivFloor(divisor int64) (int64, error) {
	if divisor <= 0 {
		return 0, errs.Validation("divisor", "divisor must be positive")
	}
	q := m.Blocks(divisor)
	if !q.BigInt().IsInt64() {
		return 0, &errs.InvariantViolation{
			Op:     "divide",
			Reason: "quotient of " + m.String() + " by " + decimal.NewFromInt(divisor).String() + " overflows int64",
		}
	}
	return q.IntPart(), nil
}

// Blocks returns the number of whole size units in m as a decimal. It does
// not overflow. size must be positive.
func (m Money) Blocks(size int64) decimal.Decimal {
	q, _ := m.amount.QuoRem(decimal.NewFromInt(size), 0)
	return q
}

// Cmp compares m and other numerically: -1 if m < other, 0 if equal, +1 otherwise.
func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

// Equal reports numeric equality regardless of representation.
func (m Money) Equal(other Money) bool {
	return m.Cmp(other) == 0
}

// LessThan reports whether m < other.
func (m Money) LessThan(other Money) bool {
	return m.Cmp(other) < 0
}

// IsZero reports whether m is 0.00.
func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

// ExceedsMax reports whether m is larger than Max.
func (m Money) ExceedsMax() bool {
	return m.amount.GreaterThan(maxAmount)
}

// IsPositive reports whether m is greater than zero.
func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// String formats m with exactly two decimals.
func (m Money) String() string {
	return m.amount.StringFixed(Scale)
}
