// Package aggregation buckets book ladders into coarser tick levels for display.
package aggregation

import (
	"sort"

	"github.com/shopspring/decimal"

	"perpdepth/internal/orderbook"
	"perpdepth/internal/types"
)

// Level is an aggregated price level with the running size from the top of book
type Level struct {
	Price      decimal.Decimal `json:"price"`
	Size       decimal.Decimal `json:"size"`
	Cumulative decimal.Decimal `json:"cumulative"`
}

// Book is a tick-aggregated copy of a book view
type Book struct {
	Exchange  string          `json:"exchange"`
	Symbol    string          `json:"symbol"`
	Tick      types.TickLevel `json:"tick"`
	Bids      []Level         `json:"bids"`
	Asks      []Level         `json:"asks"`
	Timestamp int64           `json:"timestamp"`
}

// Aggregator buckets price levels by a fixed tick size
type Aggregator struct {
	tick     types.TickLevel
	tickSize decimal.Decimal
}

// New creates an Aggregator for tick
func New(tick types.TickLevel) *Aggregator {
	return &Aggregator{
		tick:     tick,
		tickSize: decimal.NewFromFloat(float64(tick)),
	}
}

// Tick returns the tick level used for bucketing
func (a *Aggregator) Tick() types.TickLevel {
	return a.tick
}

// AggregateBids buckets bids by flooring prices, best (highest) first
func (a *Aggregator) AggregateBids(levels []types.PriceLevel) []types.PriceLevel {
	out := a.bucket(levels, a.roundToTickBid)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.GreaterThan(out[j].Price) })
	return out
}

// AggregateAsks buckets asks by ceiling prices, best (lowest) first
func (a *Aggregator) AggregateAsks(levels []types.PriceLevel) []types.PriceLevel {
	out := a.bucket(levels, a.roundToTickAsk)
	sort.Slice(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}

// AggregateView buckets both sides of view and keeps at most maxLevels per
// side (0 keeps all). A nil view yields an empty book.
func (a *Aggregator) AggregateView(view *orderbook.View, maxLevels int) Book {
	book := Book{Tick: a.tick, Bids: []Level{}, Asks: []Level{}}
	if view == nil {
		return book
	}
	book.Exchange = view.Exchange
	book.Symbol = view.Symbol
	book.Timestamp = view.Timestamp.UnixMilli()
	book.Bids = Cumulative(truncate(a.AggregateBids(view.Bids), maxLevels))
	book.Asks = Cumulative(truncate(a.AggregateAsks(view.Asks), maxLevels))
	return book
}

// Cumulative attaches the running size to levels ordered best first
func Cumulative(levels []types.PriceLevel) []Level {
	out := make([]Level, len(levels))
	total := decimal.Zero
	for i, level := range levels {
		total = total.Add(level.Size)
		out[i] = Level{Price: level.Price, Size: level.Size, Cumulative: total}
	}
	return out
}

func (a *Aggregator) bucket(levels []types.PriceLevel, round func(decimal.Decimal) decimal.Decimal) []types.PriceLevel {
	if len(levels) == 0 {
		return []types.PriceLevel{}
	}

	tickMap := make(map[string]types.PriceLevel, len(levels))
	for _, level := range levels {
		rounded := round(level.Price)
		key := rounded.String()
		if existing, exists := tickMap[key]; exists {
			existing.Size = existing.Size.Add(level.Size)
			tickMap[key] = existing
			continue
		}
		tickMap[key] = types.PriceLevel{Price: rounded, Size: level.Size}
	}

	out := make([]types.PriceLevel, 0, len(tickMap))
	for _, level := range tickMap {
		out = append(out, level)
	}
	return out
}

// roundToTickBid floors a bid so the aggregated spread never narrows
func (a *Aggregator) roundToTickBid(price decimal.Decimal) decimal.Decimal {
	if a.tickSize.IsZero() {
		return price
	}
	return price.Div(a.tickSize).Floor().Mul(a.tickSize)
}

// roundToTickAsk ceils an ask so the aggregated spread never narrows
func (a *Aggregator) roundToTickAsk(price decimal.Decimal) decimal.Decimal {
	if a.tickSize.IsZero() {
		return price
	}
	return price.Div(a.tickSize).Ceil().Mul(a.tickSize)
}

func truncate(levels []types.PriceLevel, max int) []types.PriceLevel {
	if max > 0 && len(levels) > max {
		return levels[:max]
	}
	return levels
}
