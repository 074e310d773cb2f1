package discount

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrInvalidDiscount is returned for malformed discount input.
	ErrInvalidDiscount = errors.New("discount: invalid discount")
	// ErrDiscountExceedsBase is returned when a computed discount would exceed
	// the amount it discounts. The settlement path rejects rather than clamps.
	ErrDiscountExceedsBase = errors.New("discount: discount exceeds base amount")
)

// Kind distinguishes flat-amount and percentage discounts.
type Kind string

const (
	KindAmount  Kind = "AMOUNT"
	KindPercent Kind = "PERCENT"
)

// Discount is an optional reduction applied to a line or to the whole order.
type Discount struct {
	Kind  Kind
	Value decimal.Decimal
}

var oneHundred = decimal.NewFromInt(100)

// amountAgainst computes the discount against its pre-discount base for the
// given scope. Percentages are always taken against that base and never
// compounded with any other discount.
func (d Discount) amountAgainst(base decimal.Decimal, scope string) (decimal.Decimal, error) {
	if d.Value.IsNegative() {
		return decimal.Zero, fmt.Errorf("%w: %s discount value must not be negative, got %s", ErrInvalidDiscount, scope, d.Value)
	}
	var amount decimal.Decimal
	switch d.Kind {
	case KindAmount:
		amount = d.Value
	case KindPercent:
		if d.Value.GreaterThan(oneHundred) {
			return decimal.Zero, fmt.Errorf("%w: %s discount of %s%% exceeds 100%%", ErrDiscountExceedsBase, scope, d.Value)
		}
		amount = base.Mul(d.Value).Div(oneHundred)
	default:
		return decimal.Zero, fmt.Errorf("%w: unrecognized %s discount kind %q", ErrInvalidDiscount, scope, d.Kind)
	}
	if amount.GreaterThan(base) {
		return decimal.Zero, fmt.Errorf("%w: %s discount %s exceeds base %s", ErrDiscountExceedsBase, scope, amount, base)
	}
	return amount, nil
}

// Resolution is the outcome of applying item-level and order-level discounts.
type Resolution struct {
	PerLine            []decimal.Decimal
	ItemLevelDiscount  decimal.Decimal
	OrderLevelDiscount decimal.Decimal
	Total              decimal.Decimal
}

// Resolve applies each line's optional discount against that line's base,
// then the optional order-level discount once against the sum of all lines
// net of item-level discounts. lineDiscounts must be the same length as
// lineBases; nil entries mean no discount for that line.
func Resolve(lineBases []decimal.Decimal, lineDiscounts []*Discount, orderDiscount *Discount) (Resolution, error) {
	if len(lineDiscounts) != len(lineBases) {
		return Resolution{}, fmt.Errorf("%w: %d line discounts for %d lines", ErrInvalidDiscount, len(lineDiscounts), len(lineBases))
	}
	res := Resolution{PerLine: make([]decimal.Decimal, len(lineBases))}
	var afterItemLevel decimal.Decimal
	for i, base := range lineBases {
		var amount decimal.Decimal
		if d := lineDiscounts[i]; d != nil {
			var err error
			amount, err = d.amountAgainst(base, fmt.Sprintf("lines[%d]", i))
			if err != nil {
				return Resolution{}, err
			}
		}
		res.PerLine[i] = amount
		res.ItemLevelDiscount = res.ItemLevelDiscount.Add(amount)
		afterItemLevel = afterItemLevel.Add(base.Sub(amount))
	}
	if orderDiscount != nil {
		amount, err := orderDiscount.amountAgainst(afterItemLevel, "order")
		if err != nil {
			return Resolution{}, err
		}
		res.OrderLevelDiscount = amount
	}
	res.Total = res.ItemLevelDiscount.Add(res.OrderLevelDiscount)
	return res, nil
}
