// Package options derives presentation-only "what-if" payment scenarios
// from a program's current projection. Nothing here persists.
package options

import (
	"github.com/shopspring/decimal"

	"github.com/myowjaYOY/program-tracker-sub001/internal/pricing"
)

var (
	discountRate    = decimal.RequireFromString("0.05")
	financeRate     = decimal.RequireFromString("0.06")
	downPaymentRate = decimal.RequireFromString("0.25")
	installments    = decimal.NewFromInt(5)
	equalPayments   = decimal.NewFromInt(3)
)

// Input carries the financial state of the program being quoted.
type Input struct {
	TotalCharge    decimal.Decimal
	TotalCost      decimal.Decimal
	FinanceCharges decimal.Decimal
	Discounts      decimal.Decimal
	TaxableCharge  decimal.Decimal
	TaxRate        decimal.Decimal
}

// Options is the generated scenario set. All values are rounded to two
// decimal places, half up.
type Options struct {
	DiscountedPreTax5Amount decimal.Decimal `json:"discountedPreTax5Amount"`
	DiscountedProgramPrice5 decimal.Decimal `json:"discountedProgramPrice5"`
	FinanceFullAmount       decimal.Decimal `json:"financeFullAmount"`
	FinanceDownPayment      decimal.Decimal `json:"financeDownPayment"`
	FinanceMonthlyPayment   decimal.Decimal `json:"financeMonthlyPayment"`
	ThreeEqualPayments      decimal.Decimal `json:"threeEqualPayments"`
}

// Build computes the discount, financing, and equal-payment scenarios from
// the current projection.
func Build(in Input) Options {
	rate := in.TaxRate
	if rate.IsZero() {
		rate = pricing.DefaultTaxRate
	}

	currentTaxes := pricing.Taxes(in.TotalCharge, in.TaxableCharge, in.Discounts, rate)
	currentPrice := pricing.ProjectedPrice(in.TotalCharge, currentTaxes, in.FinanceCharges, in.Discounts)
	preTax := currentPrice.Sub(currentTaxes)

	// 5% discount stacked onto whatever discounts already apply.
	extraDiscount := in.TotalCharge.Mul(discountRate)
	stacked := in.Discounts.Sub(extraDiscount)
	taxes5 := pricing.Taxes(in.TotalCharge, in.TaxableCharge, stacked, rate)
	price5 := pricing.ProjectedPrice(in.TotalCharge, taxes5, in.FinanceCharges, stacked)

	// Financing: 6% on the pre-tax amount, 25% down, five equal installments.
	fullAmount := currentPrice.Add(preTax.Mul(financeRate))
	downPayment := fullAmount.Mul(downPaymentRate)
	monthly := fullAmount.Sub(downPayment).Div(installments)

	return Options{
		DiscountedPreTax5Amount: pricing.RoundCurrency(price5.Sub(taxes5)),
		DiscountedProgramPrice5: pricing.RoundCurrency(price5),
		FinanceFullAmount:       pricing.RoundCurrency(fullAmount),
		FinanceDownPayment:      pricing.RoundCurrency(downPayment),
		FinanceMonthlyPayment:   pricing.RoundCurrency(monthly),
		ThreeEqualPayments:      pricing.RoundCurrency(currentPrice.Div(equalPayments)),
	}
}
