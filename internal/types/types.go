package types

import (
	"github.com/shopspring/decimal"
)

// TickLevel represents available tick size options for price aggregation
type TickLevel float64

const (
	Tick001 TickLevel = 0.01
	Tick01  TickLevel = 0.1
	Tick1   TickLevel = 1.0
	Tick10  TickLevel = 10.0
	Tick50  TickLevel = 50.0
	Tick100 TickLevel = 100.0
)

// AvailableTickLevels defines the available tick levels in order of precision
var AvailableTickLevels = []TickLevel{
	Tick001,
	Tick01,
	Tick1,
	Tick10,
	Tick50,
	Tick100,
}

// ValidTickLevel reports whether tick is one of AvailableTickLevels
func ValidTickLevel(tick TickLevel) bool {
	for _, available := range AvailableTickLevels {
		if available == tick {
			return true
		}
	}
	return false
}

// Side identifies one side of a book
type Side string

const (
	SideBid Side = "bid"
	SideAsk Side = "ask"
)

// TradeSide is the direction of a simulated market order
type TradeSide string

const (
	Buy  TradeSide = "buy"
	Sell TradeSide = "sell"
)

// PriceLevel represents a single price level in the order book.
// A non-positive Size means the level should not exist.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// Notional returns price * size
func (l PriceLevel) Notional() decimal.Decimal {
	return l.Price.Mul(l.Size)
}

// TopOfBook holds best prices and the derived mid/spread.
// Mid, Spread and SpreadBps are only valid when both sides are.
type TopOfBook struct {
	BestBid   decimal.NullDecimal `json:"bestBid"`
	BestAsk   decimal.NullDecimal `json:"bestAsk"`
	Mid       decimal.NullDecimal `json:"mid"`
	Spread    decimal.NullDecimal `json:"spread"`
	SpreadBps decimal.NullDecimal `json:"spreadBps"`
}

// DepthBand is the liquidity resting within a basis-point band around mid
type DepthBand struct {
	BidSize       decimal.Decimal `json:"bidSize"`
	AskSize       decimal.Decimal `json:"askSize"`
	TotalSize     decimal.Decimal `json:"totalSize"`
	BidNotional   decimal.Decimal `json:"bidNotional"`
	AskNotional   decimal.Decimal `json:"askNotional"`
	TotalNotional decimal.Decimal `json:"totalNotional"`
}

// SlippageSample is the outcome of walking one side of the book with a market order
type SlippageSample struct {
	SlippageBps        float64         `json:"slippageBps"`
	EffectiveSpreadBps float64         `json:"effectiveSpreadBps"`
	LevelsUsed         int             `json:"levelsUsed"`
	DepthUsedUsd       float64         `json:"depthUsedUsd"`
	FillPct            float64         `json:"fillPct"`
	Filled             bool            `json:"filled"`
	BestPrice          decimal.Decimal `json:"bestPrice"`
	WorstPrice         decimal.Decimal `json:"worstPrice"`
	AvgPrice           decimal.Decimal `json:"avgPrice"`
}

// ExecutionCost is slippage plus taker fees for a given trade size
type ExecutionCost struct {
	SlippageBps        float64  `json:"slippageBps"`
	SlippageCost       float64  `json:"slippageCost"`
	FeeBps             float64  `json:"feeBps"`
	FeeCost            float64  `json:"feeCost"`
	TotalBps           float64  `json:"totalBps"`
	TotalCost          float64  `json:"totalCost"`
	EffectiveSpreadBps *float64 `json:"effectiveSpreadBps"`
	LevelsUsed         *int     `json:"levelsUsed"`
	DepthUsedUsd       *float64 `json:"depthUsedUsd"`
	FillPct            *float64 `json:"fillPct"`
}
