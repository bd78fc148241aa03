// Package snapshot builds the depth and analytics snapshot served to clients.
package snapshot

import (
	"strconv"
	"time"

	"perpdepth/internal/analytics"
	"perpdepth/internal/history"
	"perpdepth/internal/types"
)

// Band is the two-sided liquidity within one bp band
type Band struct {
	TotalSize     float64 `json:"totalSize"`
	TotalNotional float64 `json:"totalNotional"`
}

// Current is the live state of one (coin, exchange) book
type Current struct {
	Depths map[string]Band `json:"depths"`
	Spread *float64        `json:"spread"`
	Mid    *float64        `json:"mid"`
}

// BandHistory holds the depth and spread series recorded for one bp level,
// keyed by exchange then coin
type BandHistory struct {
	Timestamps []int64                          `json:"timestamps"`
	Depth      map[string]map[string][]*float64 `json:"depth"`
	Spread     map[string]map[string][]*float64 `json:"spread"`
}

// Snapshot is the full depth and analytics state at one instant. Maps keyed
// by bp or trade size use the decimal string of the number.
type Snapshot struct {
	Timestamp       int64                                                    `json:"timestamp"`
	Coins           []string                                                 `json:"coins"`
	BpLevels        []int                                                    `json:"bpLevels"`
	TradeSizes      []float64                                                `json:"tradeSizes"`
	Exchanges       []string                                                 `json:"exchanges"`
	FeeRates        map[string]float64                                       `json:"feeRates"`
	Current         map[string]map[string]*Current                           `json:"current"`
	ExecutionCosts  map[string]map[string]map[string]*types.ExecutionCost    `json:"executionCosts"`
	History         map[string]BandHistory                                   `json:"history"`
	SlippageHistory map[string]map[string]map[string]history.SlippageHistory `json:"slippageHistory"`
}

// Config lists what a snapshot covers
type Config struct {
	Exchanges  []string
	Coins      []string
	BpLevels   []int
	TradeSizes []float64
	FeeRates   map[string]float64
}

// Builder assembles snapshots from the live books and the history aggregator
type Builder struct {
	cfg     Config
	views   history.ViewFunc
	history *history.Aggregator
}

// NewBuilder creates a Builder. hist may be nil, in which case history
// series and execution costs are empty.
func NewBuilder(cfg Config, views history.ViewFunc, hist *history.Aggregator) *Builder {
	if cfg.FeeRates == nil {
		cfg.FeeRates = map[string]float64{}
	}
	return &Builder{cfg: cfg, views: views, history: hist}
}

// Config returns the builder configuration
func (b *Builder) Config() Config {
	return b.cfg
}

// Build produces a snapshot of the current state
func (b *Builder) Build(now time.Time) *Snapshot {
	s := &Snapshot{
		Timestamp:       now.UnixMilli(),
		Coins:           b.cfg.Coins,
		BpLevels:        b.cfg.BpLevels,
		TradeSizes:      b.cfg.TradeSizes,
		Exchanges:       b.cfg.Exchanges,
		FeeRates:        b.cfg.FeeRates,
		Current:         make(map[string]map[string]*Current, len(b.cfg.Coins)),
		ExecutionCosts:  make(map[string]map[string]map[string]*types.ExecutionCost, len(b.cfg.Coins)),
		History:         make(map[string]BandHistory, len(b.cfg.BpLevels)),
		SlippageHistory: make(map[string]map[string]map[string]history.SlippageHistory, len(b.cfg.Coins)),
	}

	for _, coin := range b.cfg.Coins {
		current := make(map[string]*Current, len(b.cfg.Exchanges))
		costs := make(map[string]map[string]*types.ExecutionCost, len(b.cfg.Exchanges))
		slippage := make(map[string]map[string]history.SlippageHistory, len(b.cfg.Exchanges))

		for _, exchange := range b.cfg.Exchanges {
			current[exchange] = b.current(exchange, coin)
			costs[exchange] = b.executionCosts(exchange, coin)
			slippage[exchange] = b.slippageHistory(exchange, coin)
		}

		s.Current[coin] = current
		s.ExecutionCosts[coin] = costs
		s.SlippageHistory[coin] = slippage
	}

	for _, bp := range b.cfg.BpLevels {
		s.History[BpKey(bp)] = b.bandHistory(bp)
	}
	return s
}

// current returns nil when the book has no two-sided liquidity
func (b *Builder) current(exchange, coin string) *Current {
	depth := analytics.ComputeDepth(b.views(exchange, coin), b.cfg.BpLevels)
	if depth == nil {
		return nil
	}

	c := &Current{Depths: make(map[string]Band, len(b.cfg.BpLevels))}
	for _, bp := range b.cfg.BpLevels {
		band := depth.Bands[bp]
		c.Depths[BpKey(bp)] = Band{
			TotalSize:     band.TotalSize.InexactFloat64(),
			TotalNotional: band.TotalNotional.InexactFloat64(),
		}
	}
	if depth.TopOfBook.SpreadBps.Valid {
		spread := depth.TopOfBook.SpreadBps.Decimal.InexactFloat64()
		c.Spread = &spread
	}
	if depth.TopOfBook.Mid.Valid {
		mid := depth.TopOfBook.Mid.Decimal.InexactFloat64()
		c.Mid = &mid
	}
	return c
}

func (b *Builder) executionCosts(exchange, coin string) map[string]*types.ExecutionCost {
	costs := make(map[string]*types.ExecutionCost, len(b.cfg.TradeSizes))
	for _, size := range b.cfg.TradeSizes {
		var avg analytics.SlippageAverage
		if b.history != nil {
			avg = b.history.SlippageAverage(exchange, coin, size)
		}
		costs[SizeKey(size)] = analytics.ExecutionCost(avg, size, b.cfg.FeeRates[exchange])
	}
	return costs
}

func (b *Builder) slippageHistory(exchange, coin string) map[string]history.SlippageHistory {
	out := make(map[string]history.SlippageHistory, len(b.cfg.TradeSizes))
	for _, size := range b.cfg.TradeSizes {
		h := history.SlippageHistory{}
		if b.history != nil {
			h = b.history.Slippage(exchange, coin, size)
		}
		out[SizeKey(size)] = h
	}
	return out
}

func (b *Builder) bandHistory(bp int) BandHistory {
	h := BandHistory{
		Timestamps: []int64{},
		Depth:      make(map[string]map[string][]*float64, len(b.cfg.Exchanges)),
		Spread:     make(map[string]map[string][]*float64, len(b.cfg.Exchanges)),
	}
	if b.history != nil {
		h.Timestamps = b.history.Timestamps(bp)
	}

	for _, exchange := range b.cfg.Exchanges {
		depth := make(map[string][]*float64, len(b.cfg.Coins))
		spread := make(map[string][]*float64, len(b.cfg.Coins))
		for _, coin := range b.cfg.Coins {
			if b.history == nil {
				depth[coin] = []*float64{}
				spread[coin] = []*float64{}
				continue
			}
			depth[coin] = b.history.Depth(bp, exchange, coin)
			spread[coin] = b.history.Spread(bp, exchange, coin)
		}
		h.Depth[exchange] = depth
		h.Spread[exchange] = spread
	}
	return h
}

// BpKey is the map key used for a bp level
func BpKey(bp int) string {
	return strconv.Itoa(bp)
}

// SizeKey is the map key used for a trade size
func SizeKey(size float64) string {
	return strconv.FormatFloat(size, 'f', -1, 64)
}
