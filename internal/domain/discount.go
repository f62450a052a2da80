package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type DiscountKind uint8

const (
	DiscountRate DiscountKind = iota
	DiscountFixed
)

func (k DiscountKind) String() string {
	switch k {
	case DiscountRate:
		return "rate"
	case DiscountFixed:
		return "fixed"
	default:
		return fmt.Sprintf("DiscountKind(%d)", uint8(k))
	}
}

func ParseDiscountKind(value string) (DiscountKind, error) {
	switch value {
	case "", "rate":
		return DiscountRate, nil
	case "fixed":
		return DiscountFixed, nil
	default:
		return DiscountRate, fmt.Errorf("discount kind[%s] is not valid", value)
	}
}

// Discount is either a fraction of the line total or a fixed amount taken
// off the line. The zero value is a zero rate.
type Discount struct {
	kind   DiscountKind
	rate   decimal.Decimal
	amount Money
}

// RateDiscount builds a percentage discount, 0.1 meaning ten percent.
// Rates outside [0, 1] are accepted; the subtotal floor absorbs them.
func RateDiscount(rate decimal.Decimal) Discount {
	return Discount{kind: DiscountRate, rate: rate}
}

func FixedDiscount(amount Money) Discount {
	return Discount{kind: DiscountFixed, amount: amount}
}

func NoDiscount() Discount {
	return Discount{}
}

func (d Discount) Kind() DiscountKind {
	return d.kind
}

func (d Discount) IsFixed() bool {
	return d.kind == DiscountFixed
}

// Rate is zero for fixed discounts.
func (d Discount) Rate() decimal.Decimal {
	if d.kind != DiscountRate {
		return decimal.Zero
	}
	return d.rate
}

// Amount reports the fixed amount; ok is false for rate discounts.
func (d Discount) Amount() (Money, bool) {
	if d.kind != DiscountFixed {
		return Money{}, false
	}
	return d.amount, true
}

func (d Discount) Equal(other Discount) bool {
	if d.kind != other.kind {
		return false
	}
	if d.kind == DiscountFixed {
		return d.amount.Equal(other.amount)
	}
	return d.rate.Equal(other.rate)
}

func (d Discount) String() string {
	if d.kind == DiscountFixed {
		return d.amount.String() + " " + d.amount.Currency().String()
	}
	return d.rate.String()
}
