package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestTaxesMixedBasket(t *testing.T) {
	// $1000 charge, $600 taxable, -$100 discount: the taxable share of the
	// discount is $60, leaving $540 taxed at 8.25%.
	got := Taxes(dec("1000"), dec("600"), dec("-100"), DefaultTaxRate)
	require.True(t, dec("44.55").Equal(got), "got %s", got)
}

func TestTaxesNonTaxableBasketIsZero(t *testing.T) {
	require.True(t, Taxes(dec("1000"), dec("0"), dec("-100"), DefaultTaxRate).IsZero())
	require.True(t, Taxes(dec("0"), dec("600"), dec("0"), DefaultTaxRate).IsZero())
	require.True(t, Taxes(dec("-10"), dec("5"), dec("0"), DefaultTaxRate).IsZero())
}

func TestTaxesDiscountSwallowsTaxableBase(t *testing.T) {
	// Discount large enough that the net taxable amount goes non-positive.
	got := Taxes(dec("100"), dec("50"), dec("-200"), DefaultTaxRate)
	require.True(t, got.IsZero(), "got %s", got)
}

func TestProjectedPriceIgnoresNegativeFinanceCharges(t *testing.T) {
	price := ProjectedPrice(dec("1000"), dec("44.55"), dec("-50"), dec("-100"))
	require.True(t, dec("944.55").Equal(price), "got %s", price)

	// Magnitude of a negative finance charge must not matter.
	other := ProjectedPrice(dec("1000"), dec("44.55"), dec("-5000"), dec("-100"))
	require.True(t, price.Equal(other))
}

func TestProjectedPricePositiveFinanceChargeRaisesPrice(t *testing.T) {
	price := ProjectedPrice(dec("1000"), dec("44.55"), dec("50"), dec("-100"))
	require.True(t, dec("994.55").Equal(price), "got %s", price)
}

func TestProjectedPriceZeroChargeIsJustAdjustments(t *testing.T) {
	price := ProjectedPrice(dec("0"), dec("0"), dec("25"), dec("-10"))
	require.True(t, dec("15").Equal(price), "got %s", price)
}

func TestProjectedMargin(t *testing.T) {
	// preTax = 944.55 - 44.55 = 900; adjusted cost = 500 + 50 = 550.
	margin := ProjectedMargin(dec("944.55"), dec("500"), dec("-50"), dec("44.55"))
	require.True(t, dec("38.89").Equal(margin.Round(2)), "got %s", margin)
}

func TestProjectedMarginPositiveFinanceChargeOffsetsCost(t *testing.T) {
	// adjusted cost = 500 - 50 = 450; margin = 450/900*100.
	margin := ProjectedMargin(dec("944.55"), dec("500"), dec("50"), dec("44.55"))
	require.True(t, dec("50").Equal(margin.Round(2)), "got %s", margin)
}

func TestProjectedMarginNeverNegative(t *testing.T) {
	require.True(t, ProjectedMargin(dec("100"), dec("500"), dec("0"), dec("0")).IsZero())
	require.True(t, ProjectedMargin(dec("10"), dec("0"), dec("0"), dec("10")).IsZero())
	require.True(t, ProjectedMargin(dec("-5"), dec("0"), dec("0"), dec("0")).IsZero())
}

func TestProjectedMarginClampedToHundred(t *testing.T) {
	// Finance revenue exceeding cost would push the raw formula over 100%.
	margin := ProjectedMargin(dec("1000"), dec("100"), dec("500"), dec("0"))
	require.True(t, dec("100").Equal(margin), "got %s", margin)
}

func TestMarginOnLockedPrice(t *testing.T) {
	margin := MarginOnLockedPrice(dec("1000"), dec("600"))
	require.True(t, dec("40").Equal(margin), "got %s", margin)

	require.True(t, MarginOnLockedPrice(dec("0"), dec("600")).IsZero())
	require.True(t, MarginOnLockedPrice(dec("-10"), dec("600")).IsZero())
	require.True(t, MarginOnLockedPrice(dec("100"), dec("500")).IsZero())
}

func TestAggregateSkipsInactiveQuantities(t *testing.T) {
	totals := Aggregate([]Item{
		{Quantity: 2, UnitCost: dec("100"), UnitCharge: dec("250"), Taxable: true},
		{Quantity: 1, UnitCost: dec("50"), UnitCharge: dec("120"), Taxable: false},
		{Quantity: 0, UnitCost: dec("999"), UnitCharge: dec("999"), Taxable: true},
	})
	require.True(t, dec("250").Equal(totals.Cost), "cost %s", totals.Cost)
	require.True(t, dec("620").Equal(totals.Charge), "charge %s", totals.Charge)
	require.True(t, dec("500").Equal(totals.TaxableCharge), "taxable %s", totals.TaxableCharge)
}

func TestRoundCurrencyHalfUp(t *testing.T) {
	require.Equal(t, "10.13", RoundCurrency(dec("10.125")).String())
	require.Equal(t, "10.12", RoundCurrency(dec("10.124")).String())
}

func TestModeBranching(t *testing.T) {
	require.False(t, ProjectedMode().IsLocked())

	locked := LockedMode(dec("35"))
	require.True(t, locked.IsLocked())
	require.True(t, dec("35").Equal(locked.ContractedMargin))
}
