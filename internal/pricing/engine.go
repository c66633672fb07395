package pricing

import "github.com/shopspring/decimal"

// Tolerances shared by every comparison site that decides whether two
// monetary or margin values are "close enough". Currency comparisons use
// PriceTolerance (currency units), margin comparisons use MarginTolerance
// (percentage points).
var (
	PriceTolerance  = decimal.RequireFromString("0.01")
	MarginTolerance = decimal.RequireFromString("0.1")
)

// DefaultTaxRate is the sales tax rate applied when no override is configured.
var DefaultTaxRate = decimal.RequireFromString("0.0825")

var (
	zero    = decimal.Zero
	hundred = decimal.NewFromInt(100)
)

// Item is one active program line item entering an aggregation.
type Item struct {
	Quantity   int64
	UnitCost   decimal.Decimal
	UnitCharge decimal.Decimal
	Taxable    bool
}

// Totals aggregates the cost, charge, and taxable-charge sums over a set of
// items. Items with a non-positive quantity are skipped.
type Totals struct {
	Cost          decimal.Decimal
	Charge        decimal.Decimal
	TaxableCharge decimal.Decimal
}

// Aggregate sums active items into program totals. Both the live mutation
// path and the integrity audit derive totals through this single function.
func Aggregate(items []Item) Totals {
	t := Totals{Cost: zero, Charge: zero, TaxableCharge: zero}
	for _, it := range items {
		if it.Quantity <= 0 {
			continue
		}
		qty := decimal.NewFromInt(it.Quantity)
		t.Cost = t.Cost.Add(it.UnitCost.Mul(qty))
		charge := it.UnitCharge.Mul(qty)
		t.Charge = t.Charge.Add(charge)
		if it.Taxable {
			t.TaxableCharge = t.TaxableCharge.Add(charge)
		}
	}
	return t
}

// Taxes computes sales tax on the taxable portion of the total charge.
// Discounts apply charge-wide, so only the taxable fraction of |discounts|
// reduces the taxable base; mixed taxable/non-taxable baskets are neither
// over- nor under-taxed. Returns zero when there is nothing taxable.
func Taxes(totalCharge, taxableCharge, discounts, taxRate decimal.Decimal) decimal.Decimal {
	if totalCharge.LessThanOrEqual(zero) || taxableCharge.LessThanOrEqual(zero) {
		return zero
	}
	taxableShare := taxableCharge.Div(totalCharge)
	taxableDiscount := discounts.Abs().Mul(taxableShare)
	net := taxableCharge.Sub(taxableDiscount)
	if net.LessThanOrEqual(zero) {
		return zero
	}
	return net.Mul(taxRate)
}

// ProjectedPrice computes what a member would currently owe. A negative
// finance charge is a cost the business absorbs and must never reduce the
// price; only positive finance charges are revenue and raise it. Discounts
// are stored as non-positive amounts.
func ProjectedPrice(totalCharge, taxes, financeCharges, discounts decimal.Decimal) decimal.Decimal {
	fc := financeCharges
	if fc.LessThan(zero) {
		fc = zero
	}
	return totalCharge.Add(taxes).Add(fc).Add(discounts)
}

// ProjectedMargin computes the live margin percentage for a price/cost pair.
// Negative finance charges inflate the cost side; positive ones offset it.
// The result is clamped to [0, 100] and is zero when pre-tax revenue is not
// positive.
func ProjectedMargin(price, cost, financeCharges, taxes decimal.Decimal) decimal.Decimal {
	preTax := price.Sub(taxes)
	if preTax.LessThanOrEqual(zero) {
		return zero
	}
	adjustedCost := cost.Sub(financeCharges)
	return clampPercent(preTax.Sub(adjustedCost).Div(preTax).Mul(hundred))
}

// MarginOnLockedPrice computes the simple margin against a contracted price,
// without finance or tax adjustment. Zero when the locked price is not
// positive; clamped to [0, 100].
func MarginOnLockedPrice(lockedPrice, cost decimal.Decimal) decimal.Decimal {
	if lockedPrice.LessThanOrEqual(zero) {
		return zero
	}
	return clampPercent(lockedPrice.Sub(cost).Div(lockedPrice).Mul(hundred))
}

// RoundCurrency rounds a currency value to two decimal places, half up.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

func clampPercent(pct decimal.Decimal) decimal.Decimal {
	if pct.LessThan(zero) {
		return zero
	}
	if pct.GreaterThan(hundred) {
		return hundred
	}
	return pct
}
