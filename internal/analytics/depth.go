package analytics

import (
	"github.com/shopspring/decimal"

	"perpdepth/internal/orderbook"
	"perpdepth/internal/types"
)

var (
	two       = decimal.NewFromInt(2)
	bpPerUnit = decimal.NewFromInt(10000)
)

// Depth is the liquidity breakdown of one book
type Depth struct {
	TopOfBook types.TopOfBook         `json:"topOfBook"`
	Bands     map[int]types.DepthBand `json:"bands"`
	TotalBids int                     `json:"totalBids"`
	TotalAsks int                     `json:"totalAsks"`
}

// ComputeTopOfBook derives best prices, mid and spread. Mid, Spread and
// SpreadBps are only set when both sides have levels.
func ComputeTopOfBook(view *orderbook.View) types.TopOfBook {
	var tob types.TopOfBook
	if view == nil {
		return tob
	}

	if len(view.Bids) > 0 {
		tob.BestBid = decimal.NewNullDecimal(view.Bids[0].Price)
	}
	if len(view.Asks) > 0 {
		tob.BestAsk = decimal.NewNullDecimal(view.Asks[0].Price)
	}
	if !tob.BestBid.Valid || !tob.BestAsk.Valid {
		return tob
	}

	bid, ask := tob.BestBid.Decimal, tob.BestAsk.Decimal
	mid := bid.Add(ask).Div(two)
	spread := ask.Sub(bid)
	tob.Mid = decimal.NewNullDecimal(mid)
	tob.Spread = decimal.NewNullDecimal(spread)
	if !mid.IsZero() {
		tob.SpreadBps = decimal.NewNullDecimal(spread.Div(mid).Mul(bpPerUnit))
	}
	return tob
}

// ComputeDepthAtBp sums size and notional of the levels within bp basis
// points of mid on one side. Asks count in [mid, upper], bids in [lower, mid].
// levels must be ordered best first.
func ComputeDepthAtBp(levels []types.PriceLevel, mid decimal.Decimal, bp int, side types.Side) (size, notional decimal.Decimal) {
	offset := mid.Mul(decimal.NewFromInt(int64(bp))).Div(bpPerUnit)
	upper := mid.Add(offset)
	lower := mid.Sub(offset)

	size, notional = decimal.Zero, decimal.Zero
	for _, level := range levels {
		if side == types.SideAsk {
			if level.Price.GreaterThan(upper) {
				break
			}
			if level.Price.LessThan(mid) {
				continue
			}
		} else {
			if level.Price.LessThan(lower) {
				break
			}
			if level.Price.GreaterThan(mid) {
				continue
			}
		}
		size = size.Add(level.Size)
		notional = notional.Add(level.Notional())
	}
	return size, notional
}

// ComputeDepth computes every requested band independently. It returns nil
// when the book has no two-sided liquidity.
func ComputeDepth(view *orderbook.View, bpLevels []int) *Depth {
	tob := ComputeTopOfBook(view)
	if !tob.Mid.Valid {
		return nil
	}
	mid := tob.Mid.Decimal

	depth := &Depth{
		TopOfBook: tob,
		Bands:     make(map[int]types.DepthBand, len(bpLevels)),
		TotalBids: len(view.Bids),
		TotalAsks: len(view.Asks),
	}
	for _, bp := range bpLevels {
		bidSize, bidNotional := ComputeDepthAtBp(view.Bids, mid, bp, types.SideBid)
		askSize, askNotional := ComputeDepthAtBp(view.Asks, mid, bp, types.SideAsk)
		depth.Bands[bp] = types.DepthBand{
			BidSize:       bidSize,
			AskSize:       askSize,
			TotalSize:     bidSize.Add(askSize),
			BidNotional:   bidNotional,
			AskNotional:   askNotional,
			TotalNotional: bidNotional.Add(askNotional),
		}
	}
	return depth
}
