package domain

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// RoundingMode selects how a product or quotient is brought back to the
// currency scale. The zero value is RoundHalfUp.
type RoundingMode uint8

const (
	RoundHalfUp RoundingMode = iota
	RoundHalfEven
	RoundUp
	RoundDown
	RoundCeiling
	RoundFloor
)

var roundingModeNames = map[RoundingMode]string{
	RoundHalfUp:   "half_up",
	RoundHalfEven: "half_even",
	RoundUp:       "up",
	RoundDown:     "down",
	RoundCeiling:  "ceiling",
	RoundFloor:    "floor",
}

func (m RoundingMode) String() string {
	if name, ok := roundingModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("RoundingMode(%d)", uint8(m))
}

func ParseRoundingMode(value string) (RoundingMode, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return RoundHalfUp, nil
	}
	for mode, name := range roundingModeNames {
		if name == value {
			return mode, nil
		}
	}
	return RoundHalfUp, fmt.Errorf("rounding mode[%s] is not valid", value)
}

// Round brings d to the given number of decimal places.
// Half-up rounds halves away from zero, matching the usual money convention.
func (m RoundingMode) Round(d decimal.Decimal, places int32) decimal.Decimal {
	switch m {
	case RoundHalfEven:
		return d.RoundBank(places)
	case RoundUp:
		return d.RoundUp(places)
	case RoundDown:
		return d.RoundDown(places)
	case RoundCeiling:
		return d.RoundCeil(places)
	case RoundFloor:
		return d.RoundFloor(places)
	default:
		return d.Round(places)
	}
}

// Money is an exact amount of a single currency. The amount is always held at
// the currency's standard scale, so it is an integral number of minor units.
type Money struct {
	amount   decimal.Decimal
	currency currency.Unit
}

func NewMoney(amount decimal.Decimal, cur currency.Unit, mode RoundingMode) Money {
	return Money{
		amount:   mode.Round(amount, scaleOf(cur)),
		currency: cur,
	}
}

func NewMoneyFromMinor(minor int64, cur currency.Unit) Money {
	return Money{
		amount:   decimal.New(minor, -scaleOf(cur)),
		currency: cur,
	}
}

func ZeroMoney(cur currency.Unit) Money {
	return NewMoneyFromMinor(0, cur)
}

// ParseMoney parses a decimal amount and an ISO 4217 code.
// Amounts with more precision than the currency allows are rejected.
func ParseMoney(amount, code string) (Money, error) {
	cur, err := currency.ParseISO(code)
	if err != nil {
		return Money{}, fmt.Errorf("currency[%s] is not valid: %w", code, err)
	}

	d, err := decimal.NewFromString(strings.TrimSpace(amount))
	if err != nil {
		return Money{}, fmt.Errorf("amount[%s] is not valid: %w", amount, err)
	}

	if !d.Equal(d.Truncate(scaleOf(cur))) {
		return Money{}, fmt.Errorf("amount[%s] exceeds %s precision", amount, cur)
	}

	return NewMoney(d, cur, RoundHalfUp), nil
}

func (m Money) Amount() decimal.Decimal {
	return m.amount
}

func (m Money) Currency() currency.Unit {
	return m.currency
}

func (m Money) Scale() int32 {
	return scaleOf(m.currency)
}

func (m Money) MinorUnits() int64 {
	return m.amount.Shift(m.Scale()).IntPart()
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Add(other.amount), currency: m.currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{amount: m.amount.Sub(other.amount), currency: m.currency}, nil
}

// MulInt multiplies by an integer. The result is exact.
func (m Money) MulInt(n int64) Money {
	return Money{amount: m.amount.Mul(decimal.NewFromInt(n)), currency: m.currency}
}

func (m Money) Mul(rate decimal.Decimal, mode RoundingMode) Money {
	return NewMoney(m.amount.Mul(rate), m.currency, mode)
}

// Quo divides m by n and rounds the result to the currency scale.
func (m Money) Quo(n int64, mode RoundingMode) (Money, error) {
	if n == 0 {
		return Money{}, fmt.Errorf("%w: %s / 0", ErrDivisionByZero, m)
	}

	precision := m.Scale() + 2
	q, r := m.amount.QuoRem(decimal.NewFromInt(n), precision)
	if !r.IsZero() {
		// sticky digit past the guard digits so an inexact tail never looks like a tie or zero
		sticky := decimal.New(int64(m.amount.Sign()*signOf(n)), -(precision + 1))
		q = q.Add(sticky)
	}
	return NewMoney(q, m.currency, mode), nil
}

func signOf(n int64) int {
	if n < 0 {
		return -1
	}
	return 1
}

func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}
	return m.amount.Cmp(other.amount), nil
}

func (m Money) Max(other Money) (Money, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return Money{}, err
	}
	if c >= 0 {
		return m, nil
	}
	return other, nil
}

func (m Money) Min(other Money) (Money, error) {
	c, err := m.Cmp(other)
	if err != nil {
		return Money{}, err
	}
	if c <= 0 {
		return m, nil
	}
	return other, nil
}

func (m Money) Equal(other Money) bool {
	return m.currency == other.currency && m.amount.Equal(other.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

func (m Money) IsPositive() bool {
	return m.amount.IsPositive()
}

// String renders the amount at the currency scale, e.g. "10.00".
func (m Money) String() string {
	return m.amount.StringFixed(m.Scale())
}

// Format renders the amount with the given display precision.
func (m Money) Format(decimals int32) string {
	return m.amount.StringFixed(decimals)
}

func (m Money) sameCurrency(other Money) error {
	if m.currency != other.currency {
		return fmt.Errorf("%w: %s and %s", ErrCurrencyMismatch, m.currency, other.currency)
	}
	return nil
}

func scaleOf(cur currency.Unit) int32 {
	scale, _ := currency.Standard.Rounding(cur)
	return int32(scale)
}
