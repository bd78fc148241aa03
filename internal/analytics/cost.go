package analytics

import (
	"math"

	"perpdepth/internal/types"
)

// SlippageAverage holds the means of the slippage history series for one
// (exchange, coin, size). A nil field had no samples.
type SlippageAverage struct {
	SlippageBps        *float64
	EffectiveSpreadBps *float64
	LevelsUsed         *float64
	DepthUsedUsd       *float64
	FillPct            *float64
}

// ExecutionCost adds the taker fee to the average slippage of a trade size.
// It returns nil when there is no slippage average.
func ExecutionCost(avg SlippageAverage, tradeSizeUsd, feeRate float64) *types.ExecutionCost {
	if avg.SlippageBps == nil {
		return nil
	}

	slippageBps := *avg.SlippageBps
	feeBps := feeRate * 10000
	feeCost := tradeSizeUsd * feeRate
	slippageCost := tradeSizeUsd * (slippageBps / 10000)

	cost := &types.ExecutionCost{
		SlippageBps:        slippageBps,
		SlippageCost:       slippageCost,
		FeeBps:             feeBps,
		FeeCost:            feeCost,
		TotalBps:           slippageBps + feeBps,
		TotalCost:          slippageCost + feeCost,
		EffectiveSpreadBps: avg.EffectiveSpreadBps,
		DepthUsedUsd:       avg.DepthUsedUsd,
		FillPct:            avg.FillPct,
	}
	if avg.LevelsUsed != nil {
		levels := int(math.Round(*avg.LevelsUsed))
		cost.LevelsUsed = &levels
	}
	return cost
}
