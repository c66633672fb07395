package options

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireEqualDec(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, got.Equal(dec(want)), "want %s got %s", want, got)
}

func TestBuildNoTaxNoAdjustments(t *testing.T) {
	opts := Build(Input{
		TotalCharge: dec("1000"),
		TotalCost:   dec("400"),
		TaxRate:     dec("0.1"),
	})

	requireEqualDec(t, "950", opts.DiscountedPreTax5Amount)
	requireEqualDec(t, "950", opts.DiscountedProgramPrice5)
	requireEqualDec(t, "1060", opts.FinanceFullAmount)
	requireEqualDec(t, "265", opts.FinanceDownPayment)
	requireEqualDec(t, "159", opts.FinanceMonthlyPayment)
	requireEqualDec(t, "333.33", opts.ThreeEqualPayments)
}

func TestBuildWithTaxesAndAdjustments(t *testing.T) {
	opts := Build(Input{
		TotalCharge:    dec("1000"),
		TotalCost:      dec("400"),
		TaxableCharge:  dec("400"),
		Discounts:      dec("-100"),
		FinanceCharges: dec("-50"),
		TaxRate:        dec("0.1"),
	})

	// Current projection: taxes 36, price 936, pre-tax 900.
	requireEqualDec(t, "850", opts.DiscountedPreTax5Amount)
	requireEqualDec(t, "884", opts.DiscountedProgramPrice5)
	requireEqualDec(t, "990", opts.FinanceFullAmount)
	requireEqualDec(t, "247.50", opts.FinanceDownPayment)
	requireEqualDec(t, "148.50", opts.FinanceMonthlyPayment)
	requireEqualDec(t, "312", opts.ThreeEqualPayments)
}

func TestBuildUsesDefaultTaxRate(t *testing.T) {
	opts := Build(Input{
		TotalCharge:   dec("100"),
		TaxableCharge: dec("100"),
	})
	// 8.25% default: taxes 8.25, price 108.25.
	requireEqualDec(t, "36.08", opts.ThreeEqualPayments)
}
