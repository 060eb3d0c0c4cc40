package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidLineItem = errors.New("invalid line item")
	ErrNotMinorUnit    = errors.New("total does not scale to integer minor units")
)

// TaxComponent is one additive rate of a jurisdiction tax policy.
type TaxComponent struct {
	Name string
	Rate decimal.Decimal // e.g. 0.05 for 5%
}

type LineItem struct {
	Price    decimal.Decimal // unit price
	Quantity int
}

// TaxAmount is a rounded per-component tax amount, in policy order.
type TaxAmount struct {
	Name   string
	Amount decimal.Decimal
}

type Totals struct {
	Subtotal      decimal.Decimal
	TaxComponents []TaxAmount
	Tax           decimal.Decimal
	Shipping      decimal.Decimal
	Discount      decimal.Decimal
	Total         decimal.Decimal
}

// Calculator prices line items under a fixed-rate tax policy. It is pure
// and deterministic: identical inputs always produce identical totals.
type Calculator struct {
	components []TaxComponent
}

func NewCalculator(components []TaxComponent) *Calculator {
	return &Calculator{components: components}
}

// DefaultCalculator applies the Quebec policy: GST 5% plus QST 9.975%.
func DefaultCalculator() *Calculator {
	return NewCalculator([]TaxComponent{
		{Name: "GST", Rate: decimal.RequireFromString("0.05")},
		{Name: "QST", Rate: decimal.RequireFromString("0.09975")},
	})
}

// Price computes subtotal, per-component taxes and the grand total, all at
// currency-minor-unit precision. Rounding (banker's) happens once per
// aggregate, never per line: the subtotal is the rounded exact sum, each tax
// component is the rounded product of that subtotal and its rate, and the
// total is the exact sum of the already-rounded parts. The identity
// total = subtotal - discount + tax + shipping therefore holds without
// drift, and the result is invariant under line-item reordering.
func (c *Calculator) Price(items []LineItem, shipping, discount decimal.Decimal) (*Totals, error) {
	subtotal := decimal.Zero
	for i, item := range items {
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be positive", ErrInvalidLineItem, i)
		}
		if item.Price.IsNegative() {
			return nil, fmt.Errorf("%w: item %d: price must not be negative", ErrInvalidLineItem, i)
		}
		subtotal = subtotal.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	subtotal = subtotal.RoundBank(2)

	tax := decimal.Zero
	components := make([]TaxAmount, 0, len(c.components))
	for _, tc := range c.components {
		amount := subtotal.Mul(tc.Rate).RoundBank(2)
		components = append(components, TaxAmount{Name: tc.Name, Amount: amount})
		tax = tax.Add(amount)
	}

	shipping = shipping.RoundBank(2)
	discount = discount.RoundBank(2)

	return &Totals{
		Subtotal:      subtotal,
		TaxComponents: components,
		Tax:           tax,
		Shipping:      shipping,
		Discount:      discount,
		Total:         subtotal.Sub(discount).Add(tax).Add(shipping),
	}, nil
}

// TotalMinorUnits returns the total in integer minor units (cents). Amounts
// that do not scale exactly are rejected rather than truncated; the gateway
// must never see fractional cents.
func (t *Totals) TotalMinorUnits() (int64, error) {
	m := t.Total.Mul(decimal.NewFromInt(100))
	if !m.IsInteger() {
		return 0, fmt.Errorf("%w: %s", ErrNotMinorUnit, t.Total)
	}
	return m.IntPart(), nil
}
