// Package history keeps bounded rolling windows of depth, spread and slippage
// samples per exchange and coin.
package history

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"perpdepth/internal/analytics"
	"perpdepth/internal/logger"
	"perpdepth/internal/metrics"
	"perpdepth/internal/orderbook"
)

// DefaultCapacity is the number of samples kept per series
const DefaultCapacity = 30

// ViewFunc returns the current view of a book, or nil
type ViewFunc func(exchange, coin string) *orderbook.View

// Config describes which series the aggregator tracks
type Config struct {
	Capacity   int
	Exchanges  []string
	Coins      []string
	BpLevels   []int
	TradeSizes []float64
	Log        *logger.Log
	Metrics    *metrics.Metrics
}

type bookKey struct {
	exchange string
	coin     string
}

type bandKey struct {
	bp int
	bookKey
}

type sizeKey struct {
	size float64
	bookKey
}

// SlippageHistory is the per-metric history of one (exchange, coin, size)
type SlippageHistory struct {
	SlippageBps        []*float64 `json:"slippageBps"`
	EffectiveSpreadBps []*float64 `json:"effectiveSpreadBps"`
	LevelsUsed         []*float64 `json:"levelsUsed"`
	DepthUsedUsd       []*float64 `json:"depthUsedUsd"`
	FillPct            []*float64 `json:"fillPct"`
}

type slippageWindows struct {
	slippageBps        *Window
	effectiveSpreadBps *Window
	levelsUsed         *Window
	depthUsedUsd       *Window
	fillPct            *Window
}

func newSlippageWindows(capacity int) *slippageWindows {
	return &slippageWindows{
		slippageBps:        NewWindow(capacity),
		effectiveSpreadBps: NewWindow(capacity),
		levelsUsed:         NewWindow(capacity),
		depthUsedUsd:       NewWindow(capacity),
		fillPct:            NewWindow(capacity),
	}
}

// Aggregator owns every history window. Record is the only writer; readers
// take copies under a read lock.
type Aggregator struct {
	cfg     Config
	log     *logger.Entry
	metrics *metrics.Metrics

	mu         sync.RWMutex
	timestamps map[int][]int64
	depth      map[bandKey]*Window
	spread     map[bandKey]*Window
	slippage   map[sizeKey]*slippageWindows
}

// NewAggregator creates all windows up front
func NewAggregator(cfg Config) *Aggregator {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}

	a := &Aggregator{
		cfg:        cfg,
		log:        cfg.Log.WithComponent("history"),
		metrics:    cfg.Metrics,
		timestamps: make(map[int][]int64, len(cfg.BpLevels)),
		depth:      make(map[bandKey]*Window),
		spread:     make(map[bandKey]*Window),
		slippage:   make(map[sizeKey]*slippageWindows),
	}

	for _, exchange := range cfg.Exchanges {
		for _, coin := range cfg.Coins {
			book := bookKey{exchange: exchange, coin: coin}
			for _, bp := range cfg.BpLevels {
				a.depth[bandKey{bp: bp, bookKey: book}] = NewWindow(cfg.Capacity)
				a.spread[bandKey{bp: bp, bookKey: book}] = NewWindow(cfg.Capacity)
			}
			for _, size := range cfg.TradeSizes {
				a.slippage[sizeKey{size: size, bookKey: book}] = newSlippageWindows(cfg.Capacity)
			}
		}
	}
	return a
}

// Capacity returns the window length
func (a *Aggregator) Capacity() int {
	return a.cfg.Capacity
}

// Record appends one sample to every series from the current books. Books
// without two-sided liquidity record nil.
func (a *Aggregator) Record(now time.Time, views ViewFunc) {
	type bookSample struct {
		depth    *analytics.Depth
		slippage map[float64]*float64Sample
	}

	// analytics run outside the lock
	samples := make(map[bookKey]bookSample, len(a.cfg.Exchanges)*len(a.cfg.Coins))
	for _, exchange := range a.cfg.Exchanges {
		for _, coin := range a.cfg.Coins {
			view := views(exchange, coin)
			sample := bookSample{
				depth:    analytics.ComputeDepth(view, a.cfg.BpLevels),
				slippage: make(map[float64]*float64Sample, len(a.cfg.TradeSizes)),
			}
			for _, size := range a.cfg.TradeSizes {
				combined := analytics.SimulateBoth(view, decimal.NewFromFloat(size))
				if combined != nil {
					sample.slippage[size] = &float64Sample{
						slippageBps:        combined.SlippageBps,
						effectiveSpreadBps: combined.EffectiveSpreadBps,
						levelsUsed:         float64(combined.LevelsUsed),
						depthUsedUsd:       combined.DepthUsedUsd,
						fillPct:            combined.FillPct,
					}
				}
			}
			samples[bookKey{exchange: exchange, coin: coin}] = sample
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	ts := now.UnixMilli()
	for _, bp := range a.cfg.BpLevels {
		stamps := append(a.timestamps[bp], ts)
		if len(stamps) > a.cfg.Capacity {
			stamps = stamps[len(stamps)-a.cfg.Capacity:]
		}
		a.timestamps[bp] = stamps
	}

	for book, sample := range samples {
		for _, bp := range a.cfg.BpLevels {
			key := bandKey{bp: bp, bookKey: book}
			var depth, spread *float64
			if sample.depth != nil {
				depth = floatPtr(sample.depth.Bands[bp].TotalSize.InexactFloat64())
				if sample.depth.TopOfBook.SpreadBps.Valid {
					spread = floatPtr(sample.depth.TopOfBook.SpreadBps.Decimal.InexactFloat64())
				}
			}
			a.depth[key].Record(depth)
			a.spread[key].Record(spread)
		}

		for _, size := range a.cfg.TradeSizes {
			windows := a.slippage[sizeKey{size: size, bookKey: book}]
			s := sample.slippage[size]
			if s == nil {
				windows.slippageBps.Record(nil)
				windows.effectiveSpreadBps.Record(nil)
				windows.levelsUsed.Record(nil)
				windows.depthUsedUsd.Record(nil)
				windows.fillPct.Record(nil)
				continue
			}
			windows.slippageBps.Record(&s.slippageBps)
			windows.effectiveSpreadBps.Record(&s.effectiveSpreadBps)
			windows.levelsUsed.Record(&s.levelsUsed)
			windows.depthUsedUsd.Record(&s.depthUsedUsd)
			windows.fillPct.Record(&s.fillPct)
		}
	}

	a.metrics.IncHistoryTick()
}

type float64Sample struct {
	slippageBps        float64
	effectiveSpreadBps float64
	levelsUsed         float64
	depthUsedUsd       float64
	fillPct            float64
}

// Run records a sample every interval until ctx is cancelled
func (a *Aggregator) Run(ctx context.Context, interval time.Duration, views ViewFunc) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.log.WithField("interval", interval.String()).Info("history recording started")
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			a.Record(now, views)
		}
	}
}

// Timestamps returns the tick times (unix ms) recorded for bp
func (a *Aggregator) Timestamps(bp int) []int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]int64, len(a.timestamps[bp]))
	copy(out, a.timestamps[bp])
	return out
}

// Depth returns the depth (total size within bp) history of a book
func (a *Aggregator) Depth(bp int, exchange, coin string) []*float64 {
	return a.values(a.depth, bandKey{bp: bp, bookKey: bookKey{exchange: exchange, coin: coin}})
}

// Spread returns the spread (bps) history of a book
func (a *Aggregator) Spread(bp int, exchange, coin string) []*float64 {
	return a.values(a.spread, bandKey{bp: bp, bookKey: bookKey{exchange: exchange, coin: coin}})
}

func (a *Aggregator) values(series map[bandKey]*Window, key bandKey) []*float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if w, ok := series[key]; ok {
		return w.Values()
	}
	return []*float64{}
}

// Slippage returns the slippage history of a book for one trade size
func (a *Aggregator) Slippage(exchange, coin string, size float64) SlippageHistory {
	a.mu.RLock()
	defer a.mu.RUnlock()

	w, ok := a.slippage[sizeKey{size: size, bookKey: bookKey{exchange: exchange, coin: coin}}]
	if !ok {
		return SlippageHistory{}
	}
	return SlippageHistory{
		SlippageBps:        w.slippageBps.Values(),
		EffectiveSpreadBps: w.effectiveSpreadBps.Values(),
		LevelsUsed:         w.levelsUsed.Values(),
		DepthUsedUsd:       w.depthUsedUsd.Values(),
		FillPct:            w.fillPct.Values(),
	}
}

// SlippageAverage averages every slippage series of a book for one trade size
func (a *Aggregator) SlippageAverage(exchange, coin string, size float64) analytics.SlippageAverage {
	a.mu.RLock()
	defer a.mu.RUnlock()

	w, ok := a.slippage[sizeKey{size: size, bookKey: bookKey{exchange: exchange, coin: coin}}]
	if !ok {
		return analytics.SlippageAverage{}
	}
	return analytics.SlippageAverage{
		SlippageBps:        w.slippageBps.Average(),
		EffectiveSpreadBps: w.effectiveSpreadBps.Average(),
		LevelsUsed:         w.levelsUsed.Average(),
		DepthUsedUsd:       w.depthUsedUsd.Average(),
		FillPct:            w.fillPct.Average(),
	}
}

func floatPtr(v float64) *float64 {
	return &v
}
