package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveSingleLabTestNoDiscount(t *testing.T) {
	s := Resolve([]Item{{ItemID: 1, Qty: 1, UnitPrice: 50_000}}, nil, Discount{})
	require.Equal(t, Money(50_000), s.Subtotal)
	require.Equal(t, Money(50_000), s.DiscountedTotal)
	require.Zero(t, s.EffectiveDiscountPercent)
}

func TestResolveWholeCartPercent(t *testing.T) {
	items := []Item{
		{ItemID: 1, Qty: 1, UnitPrice: 50_000},
		{ItemID: 2, Qty: 1, UnitPrice: 30_000},
	}
	s := Resolve(items, nil, Percent(1000))
	require.Equal(t, Money(80_000), s.Subtotal)
	require.Equal(t, Money(8_000), s.CartDiscount)
	require.Equal(t, Money(72_000), s.DiscountedTotal)
	require.InDelta(t, 10.0, s.EffectiveDiscountPercent, 1e-9)
	require.Equal(t, Money(5_000), s.Lines[0].CartDiscount)
	require.Equal(t, Money(3_000), s.Lines[1].CartDiscount)
}

func TestResolveFixedItemDiscountIsPerLine(t *testing.T) {
	items := []Item{{ItemID: 7, Qty: 3, UnitPrice: 10_000}}
	s := Resolve(items, map[int64]Discount{7: FixedAmount(5_000)}, Discount{})
	require.Equal(t, Money(30_000), s.Subtotal)
	require.Equal(t, Money(5_000), s.ItemDiscountTotal)
	require.Equal(t, Money(25_000), s.DiscountedTotal)
}

func TestResolvePercentCartDiscountUsesPostItemBase(t *testing.T) {
	items := []Item{
		{ItemID: 1, Qty: 1, UnitPrice: 50_000},
		{ItemID: 2, Qty: 1, UnitPrice: 50_000},
	}
	s := Resolve(items, map[int64]Discount{1: FixedAmount(10_000)}, Percent(1000))
	require.Equal(t, Money(10_000), s.ItemDiscountTotal)
	require.Equal(t, Money(9_000), s.CartDiscount)
	require.Equal(t, Money(81_000), s.DiscountedTotal)
}

func TestResolveNeverNegative(t *testing.T) {
	items := []Item{{ItemID: 1, Qty: 2, UnitPrice: 1_000}}
	cases := []struct {
		name  string
		item  map[int64]Discount
		whole Discount
	}{
		{"fixed item above line", map[int64]Discount{1: FixedAmount(99_999)}, Discount{}},
		{"fixed cart above subtotal", nil, FixedAmount(1_000_000)},
		{"full percent", nil, Percent(BpsDenominator)},
		{"both", map[int64]Discount{1: FixedAmount(1_500)}, FixedAmount(1_500)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := Resolve(items, tc.item, tc.whole)
			require.GreaterOrEqual(t, s.DiscountedTotal, Money(0))
			for _, l := range s.Lines {
				require.GreaterOrEqual(t, l.Net, Money(0))
			}
		})
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	items := []Item{
		{ItemID: 1, Qty: 2, UnitPrice: 11_800, GSTBps: 1800},
		{ItemID: 2, Qty: 1, UnitPrice: 10_500, GSTBps: 500},
	}
	disc := map[int64]Discount{2: Percent(750)}
	first := Resolve(items, disc, Discount{})
	second := Resolve(items, disc, Discount{})
	require.Equal(t, first, second)
	require.Equal(t, Percent(750), disc[2])
}

func TestLineNetsSumToDiscountedTotal(t *testing.T) {
	items := []Item{
		{ItemID: 1, Qty: 1, UnitPrice: 333},
		{ItemID: 2, Qty: 1, UnitPrice: 333},
		{ItemID: 3, Qty: 1, UnitPrice: 334},
	}
	s := Resolve(items, nil, FixedAmount(100))
	var sum Money
	for _, l := range s.Lines {
		sum += l.Net
	}
	require.Equal(t, s.DiscountedTotal, sum)
}

func TestExtractGSTInclusivePrice(t *testing.T) {
	base, gst := ExtractGST(11_800, 1800)
	require.Equal(t, Money(10_000), base)
	require.Equal(t, Money(1_800), gst)
}

func TestGSTRoundTripAcrossDiscounts(t *testing.T) {
	items := []Item{
		{ItemID: 1, Qty: 3, UnitPrice: 4_725, GSTBps: 1200},
		{ItemID: 2, Qty: 1, UnitPrice: 11_800, GSTBps: 1800},
		{ItemID: 3, Qty: 7, UnitPrice: 199, GSTBps: 500},
	}
	configs := []struct {
		item  map[int64]Discount
		whole Discount
	}{
		{nil, Discount{}},
		{nil, Percent(1250)},
		{nil, FixedAmount(777)},
		{map[int64]Discount{1: Percent(333), 3: FixedAmount(50)}, Discount{}},
	}
	for _, cfg := range configs {
		s := Resolve(items, cfg.item, cfg.whole)
		var tax Money
		for _, l := range s.Lines {
			require.Equal(t, l.Net, l.Base+l.GST)
			tax += l.GST
		}
		require.Equal(t, s.TaxTotal, tax)
	}
}

func TestGSTComputedOnDiscountedNet(t *testing.T) {
	items := []Item{{ItemID: 1, Qty: 1, UnitPrice: 11_800, GSTBps: 1800}}
	s := Resolve(items, nil, Percent(5000))
	require.Equal(t, Money(5_900), s.DiscountedTotal)
	require.Equal(t, Money(5_000), s.Lines[0].Base)
	require.Equal(t, Money(900), s.TaxTotal)
}

func TestDiscountValidate(t *testing.T) {
	require.NoError(t, Percent(1000).Validate())
	require.NoError(t, FixedAmount(0).Validate())
	require.Error(t, Percent(10_001).Validate())
	require.Error(t, FixedAmount(-1).Validate())
	require.Error(t, Discount{Kind: "rupees", Value: 10}.Validate())
}
