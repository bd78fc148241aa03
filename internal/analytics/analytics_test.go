package analytics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdepth/internal/orderbook"
	"perpdepth/internal/types"
)

func lvl(price, size string) types.PriceLevel {
	return types.PriceLevel{Price: decimal.RequireFromString(price), Size: decimal.RequireFromString(size)}
}

func bookView(bids, asks []types.PriceLevel) *orderbook.View {
	book := orderbook.NewBook("Test", "BTC")
	book.Replace(bids, asks, time.Now())
	return book.View()
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestComputeTopOfBook(t *testing.T) {
	tests := []struct {
		name      string
		bids      []types.PriceLevel
		asks      []types.PriceLevel
		bestBid   string
		bestAsk   string
		mid       string
		spread    string
		spreadBps float64
	}{
		{
			name:      "two sided",
			bids:      []types.PriceLevel{lvl("100", "2")},
			asks:      []types.PriceLevel{lvl("101", "3")},
			bestBid:   "100",
			bestAsk:   "101",
			mid:       "100.5",
			spread:    "1",
			spreadBps: 99.502487,
		},
		{
			name:    "bids only",
			bids:    []types.PriceLevel{lvl("100", "2"), lvl("99", "1")},
			bestBid: "100",
		},
		{
			name:    "asks only",
			asks:    []types.PriceLevel{lvl("101", "3")},
			bestAsk: "101",
		},
		{name: "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tob := ComputeTopOfBook(bookView(tt.bids, tt.asks))

			assertNull(t, tt.bestBid, tob.BestBid)
			assertNull(t, tt.bestAsk, tob.BestAsk)
			assertNull(t, tt.mid, tob.Mid)
			assertNull(t, tt.spread, tob.Spread)
			if tt.mid == "" {
				assert.False(t, tob.SpreadBps.Valid)
			} else {
				require.True(t, tob.SpreadBps.Valid)
				assert.InDelta(t, tt.spreadBps, tob.SpreadBps.Decimal.InexactFloat64(), 1e-4)
			}
		})
	}
}

func assertNull(t *testing.T, want string, got decimal.NullDecimal) {
	t.Helper()
	if want == "" {
		assert.False(t, got.Valid)
		return
	}
	require.True(t, got.Valid)
	assert.True(t, dec(want).Equal(got.Decimal), "want %s got %s", want, got.Decimal)
}

func TestComputeTopOfBookNilView(t *testing.T) {
	tob := ComputeTopOfBook(nil)
	assert.False(t, tob.BestBid.Valid)
	assert.False(t, tob.Mid.Valid)
}

func TestComputeDepthAtBpIncludesLevelAtUpperBound(t *testing.T) {
	view := bookView([]types.PriceLevel{lvl("100", "2")}, []types.PriceLevel{lvl("101", "3")})
	mid := dec("100.5")

	size, notional := ComputeDepthAtBp(view.Asks, mid, 100, types.SideAsk)
	assert.True(t, dec("3").Equal(size))
	assert.True(t, dec("303").Equal(notional))

	size, _ = ComputeDepthAtBp(view.Asks, mid, 10, types.SideAsk)
	assert.True(t, size.IsZero(), "101 is outside 10bp of 100.5")
}

func TestComputeDepthAtBpBoundaries(t *testing.T) {
	mid := dec("100")
	asks := []types.PriceLevel{lvl("100", "1"), lvl("100.5", "1"), lvl("101", "1"), lvl("101.01", "1")}
	bids := []types.PriceLevel{lvl("100", "1"), lvl("99.5", "1"), lvl("99", "1"), lvl("98.99", "1")}

	size, _ := ComputeDepthAtBp(asks, mid, 100, types.SideAsk)
	assert.True(t, dec("3").Equal(size), "upper bound inclusive")

	size, _ = ComputeDepthAtBp(bids, mid, 100, types.SideBid)
	assert.True(t, dec("3").Equal(size), "lower bound inclusive")
}

func TestComputeDepthMonotonicInBp(t *testing.T) {
	view := bookView(
		[]types.PriceLevel{lvl("100", "1"), lvl("99.95", "2"), lvl("99.9", "3"), lvl("99", "4")},
		[]types.PriceLevel{lvl("100.1", "1"), lvl("100.15", "2"), lvl("100.2", "3"), lvl("101", "4")},
	)

	bps := []int{1, 2, 3, 5, 10, 50, 100, 200}
	depth := ComputeDepth(view, bps)
	require.NotNil(t, depth)
	assert.Equal(t, 4, depth.TotalBids)
	assert.Equal(t, 4, depth.TotalAsks)

	for i := 1; i < len(bps); i++ {
		prev, cur := depth.Bands[bps[i-1]], depth.Bands[bps[i]]
		assert.True(t, cur.BidSize.GreaterThanOrEqual(prev.BidSize), "bid bp %d", bps[i])
		assert.True(t, cur.AskSize.GreaterThanOrEqual(prev.AskSize), "ask bp %d", bps[i])
		assert.True(t, cur.TotalNotional.GreaterThanOrEqual(prev.TotalNotional), "notional bp %d", bps[i])
	}

	band := depth.Bands[200]
	assert.True(t, band.TotalSize.Equal(band.BidSize.Add(band.AskSize)))
	assert.True(t, dec("20").Equal(band.TotalSize))
}

func TestComputeDepthOneSided(t *testing.T) {
	assert.Nil(t, ComputeDepth(bookView([]types.PriceLevel{lvl("100", "1")}, nil), []int{1}))
	assert.Nil(t, ComputeDepth(nil, []int{1}))
}

func TestSimulateWalkTheBook(t *testing.T) {
	view := bookView(
		[]types.PriceLevel{lvl("100", "2")},
		[]types.PriceLevel{lvl("101", "1"), lvl("102", "5")},
	)

	sample := Simulate(view, dec("150"), types.Buy)
	require.NotNil(t, sample)

	assert.Equal(t, 2, sample.LevelsUsed)
	assert.InDelta(t, 100, sample.FillPct, 1e-9)
	assert.True(t, sample.Filled)
	assert.InDelta(t, 150, sample.DepthUsedUsd, 1e-9)
	assert.True(t, dec("101").Equal(sample.BestPrice))
	assert.True(t, dec("102").Equal(sample.WorstPrice))

	// qty = 1 + 49/102, avg = 150/qty
	qty := 1 + 49.0/102
	avg := 150 / qty
	assert.InDelta(t, avg, sample.AvgPrice.InexactFloat64(), 1e-9)
	assert.InDelta(t, (avg-100.5)/100.5*10000, sample.SlippageBps, 1e-6)
	assert.InDelta(t, 1.0/101*10000, sample.EffectiveSpreadBps, 1e-6)
}

func TestSimulateSell(t *testing.T) {
	view := bookView(
		[]types.PriceLevel{lvl("100", "1"), lvl("99", "10")},
		[]types.PriceLevel{lvl("101", "1")},
	)

	sample := Simulate(view, dec("100"), types.Sell)
	require.NotNil(t, sample)
	assert.Equal(t, 1, sample.LevelsUsed)
	assert.InDelta(t, 0.5/100.5*10000, sample.SlippageBps, 1e-6)
	assert.Zero(t, sample.EffectiveSpreadBps)
}

func TestSimulatePartialFill(t *testing.T) {
	view := bookView(
		[]types.PriceLevel{lvl("100", "1")},
		[]types.PriceLevel{lvl("101", "1")},
	)

	sample := Simulate(view, dec("1000"), types.Buy)
	require.NotNil(t, sample)
	assert.InDelta(t, 10.1, sample.FillPct, 1e-9)
	assert.False(t, sample.Filled)
	assert.Equal(t, 1, sample.LevelsUsed)
}

func TestSimulateIlliquid(t *testing.T) {
	assert.Nil(t, Simulate(nil, dec("100"), types.Buy))
	assert.Nil(t, Simulate(bookView(nil, []types.PriceLevel{lvl("101", "1")}), dec("100"), types.Buy))
	assert.Nil(t, Simulate(bookView([]types.PriceLevel{lvl("100", "1")}, nil), dec("100"), types.Sell))
	assert.Nil(t, Simulate(bookView([]types.PriceLevel{lvl("100", "1")}, []types.PriceLevel{lvl("101", "1")}), decimal.Zero, types.Buy))
}

func TestCombine(t *testing.T) {
	buy := &types.SlippageSample{SlippageBps: 2, EffectiveSpreadBps: 4, LevelsUsed: 2, DepthUsedUsd: 100, FillPct: 100, Filled: true,
		BestPrice: dec("101"), WorstPrice: dec("102"), AvgPrice: dec("101.5")}
	sell := &types.SlippageSample{SlippageBps: 4, EffectiveSpreadBps: 0, LevelsUsed: 1, DepthUsedUsd: 50, FillPct: 50,
		BestPrice: dec("100"), WorstPrice: dec("100"), AvgPrice: dec("100")}

	combined := Combine(buy, sell)
	require.NotNil(t, combined)
	assert.Equal(t, 3.0, combined.SlippageBps)
	assert.Equal(t, 2.0, combined.EffectiveSpreadBps)
	assert.Equal(t, 2, combined.LevelsUsed, "1.5 rounds half away from zero")
	assert.Equal(t, 75.0, combined.DepthUsedUsd)
	assert.Equal(t, 75.0, combined.FillPct)
	assert.False(t, combined.Filled)
	assert.True(t, dec("100.75").Equal(combined.AvgPrice))

	assert.Same(t, buy, Combine(buy, nil))
	assert.Same(t, sell, Combine(nil, sell))
	assert.Nil(t, Combine(nil, nil))
}

func TestExecutionCost(t *testing.T) {
	f := func(v float64) *float64 { return &v }

	cost := ExecutionCost(SlippageAverage{
		SlippageBps:        f(2.5),
		EffectiveSpreadBps: f(1),
		LevelsUsed:         f(2.6),
		DepthUsedUsd:       f(10000),
		FillPct:            f(100),
	}, 10000, 0.00045)
	require.NotNil(t, cost)

	assert.InDelta(t, 4.5, cost.FeeBps, 1e-9)
	assert.InDelta(t, 4.5, cost.FeeCost, 1e-9)
	assert.InDelta(t, 2.5, cost.SlippageCost, 1e-9)
	assert.InDelta(t, 7.0, cost.TotalBps, 1e-9)
	assert.InDelta(t, 7.0, cost.TotalCost, 1e-9)
	require.NotNil(t, cost.LevelsUsed)
	assert.Equal(t, 3, *cost.LevelsUsed)
	assert.Equal(t, 100.0, *cost.FillPct)

	assert.Nil(t, ExecutionCost(SlippageAverage{EffectiveSpreadBps: f(1)}, 100, 0))

	zeroFee := ExecutionCost(SlippageAverage{SlippageBps: f(1)}, 1000000, 0)
	require.NotNil(t, zeroFee)
	assert.Zero(t, zeroFee.FeeCost)
	assert.Nil(t, zeroFee.LevelsUsed)
	assert.InDelta(t, 100, zeroFee.TotalCost, 1e-9)
}

func BenchmarkSimulate(b *testing.B) {
	bids := make([]types.PriceLevel, 0, 500)
	asks := make([]types.PriceLevel, 0, 500)
	for i := 0; i < 500; i++ {
		bids = append(bids, types.PriceLevel{Price: decimal.NewFromInt(int64(50000 - i)), Size: decimal.NewFromFloat(0.5)})
		asks = append(asks, types.PriceLevel{Price: decimal.NewFromInt(int64(50001 + i)), Size: decimal.NewFromFloat(0.5)})
	}
	view := bookView(bids, asks)
	size := decimal.NewFromInt(1000000)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SimulateBoth(view, size)
	}
}
