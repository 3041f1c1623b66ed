package pricing

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeTotals(t *testing.T) {
	s := Compute([]decimal.Decimal{d("202.50"), d("100.00")}, d("47.50"), d("21.93"), d("75"))
	require.Equal(t, "302.50", s.Subtotal.StringFixed(2))
	require.Equal(t, "399.43", s.Total.StringFixed(2))
	require.NoError(t, s.Check())
}

func TestSummaryCheckDetectsMismatch(t *testing.T) {
	s := Summary{Subtotal: d("10"), Tax: d("1"), Shipping: d("1"), Total: d("13")}
	require.ErrorIs(t, s.Check(), ErrInvariantViolation)

	s = Summary{Subtotal: d("-1"), Total: d("-1")}
	require.ErrorIs(t, s.Check(), ErrInvariantViolation)
}

func TestRound2HalfAwayFromZero(t *testing.T) {
	require.Equal(t, "0.13", Round2(d("0.125")).StringFixed(2))
	require.Equal(t, "-0.13", Round2(d("-0.125")).StringFixed(2))
	require.Equal(t, "2.67", Round2(d("2.665")).StringFixed(2))
}

func TestAmountJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Total Amount `json:"total"`
		Rate  Rate   `json:"rate"`
	}{Total: NewAmount(d("81")), Rate: Rate{d("0.0725")}})
	require.NoError(t, err)
	require.JSONEq(t, `{"total":81.00,"rate":0.0725}`, string(b))

	var a Amount
	require.NoError(t, json.Unmarshal([]byte(`"12.5"`), &a))
	require.True(t, a.Equal(d("12.5")))
}

func TestAddressNormalize(t *testing.T) {
	a := Address{City: " Austin ", State: "tx ", Country: "usa"}.Normalize()
	require.Equal(t, "TX", a.State)
	require.Equal(t, "US", a.Country)
	require.Equal(t, "Austin", a.City)
	require.True(t, Address{}.IsZero())
	require.False(t, a.IsZero())
}

func TestAddUnitsDetectsOverflow(t *testing.T) {
	n, ok := AddUnits(5, 7)
	require.True(t, ok)
	require.Equal(t, 12, n)

	_, ok = AddUnits(math.MaxInt, 1)
	require.False(t, ok)
	_, ok = AddUnits(-1, 3)
	require.False(t, ok)
}
