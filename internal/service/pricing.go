package service

import (
	"github.com/shopspring/decimal"

	"github.com/flicky/grocery-storefront/internal/apperr"
	"github.com/flicky/grocery-storefront/internal/discount"
	"github.com/flicky/grocery-storefront/internal/model"
)

var ErrUnknownDiscount = apperr.New(apperr.Validation, "invalid_discount_code", "invalid discount code")

type PricedLine struct {
	Line model.CartLine
	// UnitPrice is the effective unit price after the product's own discount.
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
	// ListTotal is the undiscounted price × quantity.
	ListTotal decimal.Decimal
}

// Quote is the priced view of a cart. Cart view, intent creation and
// confirmation all build it through PriceLines.
type Quote struct {
	Lines []PricedLine
	// Unavailable lines reference products that no longer exist.
	Unavailable    []model.CartLine
	Subtotal       decimal.Decimal
	Discount       *discount.Discount
	DiscountAmount decimal.Decimal
	Total          decimal.Decimal
}

func PriceLines(lines []model.CartLine, d *discount.Discount) Quote {
	q := Quote{Subtotal: decimal.Zero, DiscountAmount: decimal.Zero, Discount: d}
	for _, l := range lines {
		if l.Product == nil {
			q.Unavailable = append(q.Unavailable, l)
			continue
		}
		qty := decimal.NewFromInt(int64(l.Quantity))
		unit := l.Product.EffectivePrice()
		pl := PricedLine{
			Line:      l,
			UnitPrice: unit,
			LineTotal: unit.Mul(qty),
			ListTotal: l.Product.Price.Mul(qty),
		}
		q.Lines = append(q.Lines, pl)
		q.Subtotal = q.Subtotal.Add(pl.LineTotal)
	}
	if d != nil {
		q.DiscountAmount = discount.Apply(q.Subtotal, *d)
	}
	q.Total = q.Subtotal.Sub(q.DiscountAmount)
	if q.Total.IsNegative() {
		q.Total = decimal.Zero
	}
	return q
}

// MinorUnits converts a major-unit amount to minor units, rounding half
// away from zero at two decimals.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func FromMinorUnits(minor int64) decimal.Decimal {
	return decimal.New(minor, -2)
}

func resolveDiscount(r *discount.Resolver, code string) (*discount.Discount, error) {
	if code == "" {
		return nil, nil
	}
	d, ok := r.Resolve(code)
	if !ok {
		return nil, ErrUnknownDiscount
	}
	return &d, nil
}

// allocate splits charged minor units across lines in proportion to their
// totals. The last line absorbs the rounding remainder so the shares sum to
// charged exactly.
func allocate(charged int64, lines []PricedLine) []int64 {
	out := make([]int64, len(lines))
	if len(lines) == 0 {
		return out
	}
	weight := decimal.Zero
	for _, l := range lines {
		weight = weight.Add(l.LineTotal)
	}
	total := decimal.NewFromInt(charged)
	var assigned int64
	for i := 0; i < len(lines)-1; i++ {
		if weight.IsZero() {
			break
		}
		out[i] = total.Mul(lines[i].LineTotal).Div(weight).Floor().IntPart()
		assigned += out[i]
	}
	out[len(lines)-1] = charged - assigned
	return out
}
