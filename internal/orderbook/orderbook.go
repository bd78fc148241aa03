package orderbook

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"perpdepth/internal/types"
)

// ErrStaleBaseline is returned when a delta arrives before any snapshot
var ErrStaleBaseline = errors.New("orderbook: delta without snapshot baseline")

// SideDelta is an incremental change to one ladder. Deletes are applied
// first, then Updates, then Inserts.
type SideDelta struct {
	Deletes []decimal.Decimal
	Updates []types.PriceLevel
	Inserts []types.PriceLevel
}

// IsEmpty reports whether the delta carries no operation
func (d SideDelta) IsEmpty() bool {
	return len(d.Deletes) == 0 && len(d.Updates) == 0 && len(d.Inserts) == 0
}

// View is an immutable point-in-time copy of a book. It is the canonical
// normalized order book handed to consumers and must not be mutated.
type View struct {
	Exchange  string             `json:"exchange"`
	Symbol    string             `json:"symbol"`
	Bids      []types.PriceLevel `json:"bids"`
	Asks      []types.PriceLevel `json:"asks"`
	Timestamp time.Time          `json:"timestamp"`
}

// Levels returns the ladder for side
func (v *View) Levels(side types.Side) []types.PriceLevel {
	if side == types.SideBid {
		return v.Bids
	}
	return v.Asks
}

// Book holds the bid and ask ladders for one (exchange, symbol) pair.
//
// A Book has a single writer, the adapter that owns it. Readers call View,
// which loads the last published copy and never waits on the writer.
type Book struct {
	exchange string
	symbol   string

	mu          sync.Mutex
	bids        *Ladder
	asks        *Ladder
	initialized bool

	view atomic.Pointer[View]
}

// NewBook creates an unset book
func NewBook(exchange, symbol string) *Book {
	return &Book{
		exchange: exchange,
		symbol:   symbol,
		bids:     NewLadder(types.SideBid),
		asks:     NewLadder(types.SideAsk),
	}
}

// Exchange returns the owning exchange name
func (b *Book) Exchange() string {
	return b.exchange
}

// Symbol returns the canonical symbol
func (b *Book) Symbol() string {
	return b.symbol
}

// Replace swaps both ladders for the given levels. Levels with a non-positive
// size are skipped and duplicate prices keep the last size seen.
func (b *Book) Replace(bids, asks []types.PriceLevel, ts time.Time) {
	bidLadder := NewLadder(types.SideBid)
	for _, level := range bids {
		bidLadder.Upsert(level)
	}
	askLadder := NewLadder(types.SideAsk)
	for _, level := range asks {
		askLadder.Upsert(level)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids = bidLadder
	b.asks = askLadder
	b.initialized = true
	b.publish(ts)
}

// ApplyDelta merges incremental changes into both ladders. It returns
// ErrStaleBaseline and leaves the book untouched when no snapshot has been
// applied yet.
func (b *Book) ApplyDelta(bids, asks SideDelta, ts time.Time) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return ErrStaleBaseline
	}

	applySideDelta(b.bids, bids)
	applySideDelta(b.asks, asks)
	b.publish(ts)
	return nil
}

func applySideDelta(ladder *Ladder, delta SideDelta) {
	for _, price := range delta.Deletes {
		ladder.Remove(price)
	}
	for _, level := range delta.Updates {
		ladder.Update(level)
	}
	for _, level := range delta.Inserts {
		ladder.Upsert(level)
	}
}

// View returns the last published copy, or nil if the book has never
// received a snapshot since creation or the last Reset.
func (b *Book) View() *View {
	return b.view.Load()
}

// IsInitialized returns whether a snapshot baseline is present
func (b *Book) IsInitialized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.initialized
}

// Reset drops all levels and the baseline, e.g. after a reconnect
func (b *Book) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.bids.Clear()
	b.asks.Clear()
	b.initialized = false
	b.view.Store(nil)
}

// publish stores a fresh immutable copy (must be called with mutex locked)
func (b *Book) publish(ts time.Time) {
	if ts.IsZero() {
		ts = time.Now()
	}
	b.view.Store(&View{
		Exchange:  b.exchange,
		Symbol:    b.symbol,
		Bids:      b.bids.Levels(),
		Asks:      b.asks.Levels(),
		Timestamp: ts,
	})
}
