package analytics

import (
	"math"

	"github.com/shopspring/decimal"

	"perpdepth/internal/orderbook"
	"perpdepth/internal/types"
)

var hundred = decimal.NewFromInt(100)

// filledThresholdPct is the fill percentage at which an order counts as filled
const filledThresholdPct = 99.9

// Simulate walks one side of the book with a market order of tradeSizeUsd
// notional. Buys consume asks, sells consume bids, best price first. It
// returns nil when either side is empty or nothing could be filled.
func Simulate(view *orderbook.View, tradeSizeUsd decimal.Decimal, side types.TradeSide) *types.SlippageSample {
	if view == nil || len(view.Bids) == 0 || len(view.Asks) == 0 || !tradeSizeUsd.IsPositive() {
		return nil
	}

	levels := view.Asks
	if side == types.Sell {
		levels = view.Bids
	}
	mid := view.Bids[0].Price.Add(view.Asks[0].Price).Div(two)
	bestPrice := levels[0].Price
	if mid.IsZero() || bestPrice.IsZero() {
		return nil
	}

	remaining := tradeSizeUsd
	totalQty := decimal.Zero
	totalCost := decimal.Zero
	worstPrice := bestPrice
	levelsUsed := 0

	for _, level := range levels {
		if !remaining.IsPositive() {
			break
		}
		if !level.Price.IsPositive() {
			continue
		}
		fill := decimal.Min(remaining, level.Notional())
		totalQty = totalQty.Add(fill.Div(level.Price))
		totalCost = totalCost.Add(fill)
		remaining = remaining.Sub(fill)
		levelsUsed++
		worstPrice = level.Price
	}

	if totalQty.IsZero() {
		return nil
	}

	avgPrice := totalCost.Div(totalQty)
	slippageBps := avgPrice.Sub(mid).Div(mid).Mul(bpPerUnit).Abs()
	effectiveSpreadBps := worstPrice.Sub(bestPrice).Abs().Div(bestPrice).Mul(bpPerUnit)
	filledUsd := tradeSizeUsd.Sub(remaining)
	fillPct := filledUsd.Div(tradeSizeUsd).Mul(hundred)

	return &types.SlippageSample{
		SlippageBps:        slippageBps.InexactFloat64(),
		EffectiveSpreadBps: effectiveSpreadBps.InexactFloat64(),
		LevelsUsed:         levelsUsed,
		DepthUsedUsd:       filledUsd.InexactFloat64(),
		FillPct:            fillPct.InexactFloat64(),
		Filled:             fillPct.InexactFloat64() >= filledThresholdPct,
		BestPrice:          bestPrice,
		WorstPrice:         worstPrice,
		AvgPrice:           avgPrice,
	}
}

// Combine averages a buy and a sell sample field by field. With only one
// side available that side is returned; with neither, nil.
func Combine(buy, sell *types.SlippageSample) *types.SlippageSample {
	switch {
	case buy == nil && sell == nil:
		return nil
	case buy == nil:
		return sell
	case sell == nil:
		return buy
	}

	return &types.SlippageSample{
		SlippageBps:        (buy.SlippageBps + sell.SlippageBps) / 2,
		EffectiveSpreadBps: (buy.EffectiveSpreadBps + sell.EffectiveSpreadBps) / 2,
		LevelsUsed:         int(math.Round(float64(buy.LevelsUsed+sell.LevelsUsed) / 2)),
		DepthUsedUsd:       (buy.DepthUsedUsd + sell.DepthUsedUsd) / 2,
		FillPct:            (buy.FillPct + sell.FillPct) / 2,
		Filled:             buy.Filled && sell.Filled,
		BestPrice:          buy.BestPrice.Add(sell.BestPrice).Div(two),
		WorstPrice:         buy.WorstPrice.Add(sell.WorstPrice).Div(two),
		AvgPrice:           buy.AvgPrice.Add(sell.AvgPrice).Div(two),
	}
}

// SimulateBoth runs a buy and a sell of the same size and combines them
func SimulateBoth(view *orderbook.View, tradeSizeUsd decimal.Decimal) *types.SlippageSample {
	return Combine(Simulate(view, tradeSizeUsd, types.Buy), Simulate(view, tradeSizeUsd, types.Sell))
}
