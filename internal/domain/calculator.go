package domain

import (
	"fmt"

	"golang.org/x/text/currency"
)

// Pricing is the derived monetary view of one line item or of a whole cart.
type Pricing struct {
	LineTotal   Money
	Discount    Money
	Subtotal    Money
	Tax         Money
	Total       Money
	WeightTotal int64
}

func zeroPricing(zero Money) Pricing {
	return Pricing{
		LineTotal: zero,
		Discount:  zero,
		Subtotal:  zero,
		Tax:       zero,
		Total:     zero,
	}
}

func (p Pricing) add(other Pricing) (Pricing, error) {
	var (
		out Pricing
		err error
	)
	if out.LineTotal, err = p.LineTotal.Add(other.LineTotal); err != nil {
		return Pricing{}, err
	}
	if out.Discount, err = p.Discount.Add(other.Discount); err != nil {
		return Pricing{}, err
	}
	if out.Subtotal, err = p.Subtotal.Add(other.Subtotal); err != nil {
		return Pricing{}, err
	}
	if out.Tax, err = p.Tax.Add(other.Tax); err != nil {
		return Pricing{}, err
	}
	if out.Total, err = p.Total.Add(other.Total); err != nil {
		return Pricing{}, err
	}
	out.WeightTotal = p.WeightTotal + other.WeightTotal
	return out, nil
}

// Calculator derives the pricing pipeline for a single item.
// Implementations must be pure: the same item always yields the same Pricing.
type Calculator interface {
	Name() string
	Price(item CartItem) (Pricing, error)
}

const (
	CalculatorDefault = "default"
	CalculatorPerUnit = "per_unit"
)

// CalculatorFor resolves a configured calculator name.
func CalculatorFor(name string, mode RoundingMode) (Calculator, error) {
	switch name {
	case "", CalculatorDefault:
		return DefaultCalculator{Rounding: mode}, nil
	case CalculatorPerUnit:
		return UnitCalculator{Rounding: mode}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidCalculator, name)
	}
}

// DefaultCalculator applies discounts to the line total.
type DefaultCalculator struct {
	Rounding RoundingMode
}

func (DefaultCalculator) Name() string {
	return CalculatorDefault
}

func (c DefaultCalculator) Price(item CartItem) (Pricing, error) {
	lineTotal := item.price.MulInt(int64(item.quantity))

	var discount Money
	if amount, ok := item.discount.Amount(); ok {
		capped, err := clampMoney(amount, lineTotal)
		if err != nil {
			return Pricing{}, fmt.Errorf("fixed discount: %w", err)
		}
		discount = capped
	} else {
		discount = lineTotal.Mul(item.discount.Rate(), c.Rounding)
	}

	return finishPricing(item, lineTotal, discount, c.Rounding)
}

// UnitCalculator discounts each unit and rounds the unit discount before
// multiplying by the quantity. Fixed discounts are taken off every unit.
type UnitCalculator struct {
	Rounding RoundingMode
}

func (UnitCalculator) Name() string {
	return CalculatorPerUnit
}

func (c UnitCalculator) Price(item CartItem) (Pricing, error) {
	lineTotal := item.price.MulInt(int64(item.quantity))

	var unitDiscount Money
	if amount, ok := item.discount.Amount(); ok {
		capped, err := clampMoney(amount, item.price)
		if err != nil {
			return Pricing{}, fmt.Errorf("fixed discount: %w", err)
		}
		unitDiscount = capped
	} else {
		unitDiscount = item.price.Mul(item.discount.Rate(), c.Rounding)
	}

	return finishPricing(item, lineTotal, unitDiscount.MulInt(int64(item.quantity)), c.Rounding)
}

func finishPricing(item CartItem, lineTotal, discount Money, mode RoundingMode) (Pricing, error) {
	zero := ZeroMoney(lineTotal.Currency())

	diff, err := lineTotal.Sub(discount)
	if err != nil {
		return Pricing{}, err
	}
	subtotal, err := diff.Max(zero)
	if err != nil {
		return Pricing{}, err
	}

	tax := subtotal.Mul(item.taxRate, mode)

	total, err := subtotal.Add(tax)
	if err != nil {
		return Pricing{}, err
	}

	return Pricing{
		LineTotal:   lineTotal,
		Discount:    discount,
		Subtotal:    subtotal,
		Tax:         tax,
		Total:       total,
		WeightTotal: item.weight * int64(item.quantity),
	}, nil
}

// clampMoney bounds a fixed discount to [0, limit].
func clampMoney(amount, limit Money) (Money, error) {
	low, err := amount.Max(ZeroMoney(limit.Currency()))
	if err != nil {
		return Money{}, err
	}
	return low.Min(limit)
}

// checkPricing rejects results that break the pipeline contract.
func checkPricing(calc Calculator, p Pricing, cur currency.Unit) error {
	for _, m := range []Money{p.LineTotal, p.Discount, p.Subtotal, p.Tax, p.Total} {
		if m.Currency() != cur {
			return fmt.Errorf("%w: %s returned %s amounts in a %s cart", ErrInvalidCalculator, calc.Name(), m.Currency(), cur)
		}
	}
	if p.Subtotal.IsNegative() {
		return fmt.Errorf("%w: %s returned a negative subtotal", ErrInvalidCalculator, calc.Name())
	}
	sum, _ := p.Subtotal.Add(p.Tax)
	if !sum.Equal(p.Total) {
		return fmt.Errorf("%w: %s total %s differs from subtotal plus tax %s", ErrInvalidCalculator, calc.Name(), p.Total, sum)
	}
	return nil
}
