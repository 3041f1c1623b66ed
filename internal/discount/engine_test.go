package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestApplyLineStacksMultiplicatively(t *testing.T) {
	res, err := ApplyLine(d("100"), 1, d("10"), TierContractor)
	require.NoError(t, err)
	require.Equal(t, "81.00", res.LineTotal.StringFixed(2))
	require.Equal(t, "19.00", res.Discount.StringFixed(2))
	require.Len(t, res.Steps, 2)
	require.Equal(t, KindLine, res.Steps[0].Kind)
	require.Equal(t, KindTier, res.Steps[1].Kind)
}

func TestApplyLineContractorExample(t *testing.T) {
	res, err := ApplyLine(d("50"), 5, d("10"), TierContractor)
	require.NoError(t, err)
	require.Equal(t, "250.00", res.Gross.StringFixed(2))
	require.Equal(t, "225.00", res.Steps[0].Resulting.StringFixed(2))
	require.Equal(t, "25.00", res.Steps[0].Amount.StringFixed(2))
	require.Equal(t, "22.50", res.Steps[1].Amount.StringFixed(2))
	require.Equal(t, "202.50", res.LineTotal.StringFixed(2))
	require.Equal(t, "Contractor tier discount 10%", res.Steps[1].Description)
}

func TestApplyLineStepAmountsReconcile(t *testing.T) {
	res, err := ApplyLine(d("33.33"), 7, d("12.5"), TierWholesale)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, s := range res.Steps {
		sum = sum.Add(s.Amount)
	}
	require.True(t, sum.Equal(res.Discount), "steps %s discount %s", sum, res.Discount)
	require.True(t, res.Gross.Sub(sum).Equal(res.LineTotal))
}

func TestApplyLineOmitsZeroSteps(t *testing.T) {
	res, err := ApplyLine(d("19.99"), 3, decimal.Zero, TierRetail)
	require.NoError(t, err)
	require.Empty(t, res.Steps)
	require.Equal(t, "59.97", res.LineTotal.StringFixed(2))
	require.True(t, res.Discount.IsZero())
}

func TestLineTotalMonotonicInPercent(t *testing.T) {
	prev := d("1000000")
	for p := 0; p <= 100; p++ {
		res, err := ApplyLine(d("17.49"), 3, decimal.NewFromInt(int64(p)), TierContractor)
		require.NoError(t, err)
		require.True(t, res.LineTotal.LessThanOrEqual(prev), "percent %d", p)
		require.False(t, res.LineTotal.IsNegative())
		prev = res.LineTotal
	}
}

func TestApplyLineDiscountRejectsOutOfRange(t *testing.T) {
	_, err := ApplyLineDiscount(d("10"), 1, d("100.01"))
	require.ErrorIs(t, err, ErrInvalidDiscount)
	_, err = ApplyLineDiscount(d("10"), 1, d("-1"))
	require.ErrorIs(t, err, ErrInvalidDiscount)
	_, err = ApplyLineDiscount(d("10"), 0, decimal.Zero)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestTierParsing(t *testing.T) {
	tier, err := ParseTier(" Wholesale ")
	require.NoError(t, err)
	require.Equal(t, TierWholesale, tier)

	_, err = ParseTier("platinum")
	require.ErrorIs(t, err, ErrUnknownDiscountTier)
	_, err = ParseTier("")
	require.ErrorIs(t, err, ErrUnknownDiscountTier)

	_, err = ApplyTierDiscount(d("10"), Tier("vip"))
	require.ErrorIs(t, err, ErrUnknownDiscountTier)
}
