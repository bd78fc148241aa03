package orderbook

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"

	"perpdepth/internal/types"
)

// Ladder is one side of a book: price levels unique by price, kept best-first
// (bids descending, asks ascending).
//
// A Ladder is not safe for concurrent use; Book serialises access.
type Ladder struct {
	side types.Side
	tree *btree.BTreeG[types.PriceLevel]
}

// NewLadder creates an empty ladder for the given side
func NewLadder(side types.Side) *Ladder {
	less := func(a, b types.PriceLevel) bool {
		return a.Price.LessThan(b.Price)
	}
	if side == types.SideBid {
		less = func(a, b types.PriceLevel) bool {
			return a.Price.GreaterThan(b.Price)
		}
	}

	return &Ladder{
		side: side,
		tree: btree.NewBTreeGOptions(less, btree.Options{NoLocks: true}),
	}
}

// Side returns the side the ladder belongs to
func (l *Ladder) Side() types.Side {
	return l.side
}

// Len returns the number of levels
func (l *Ladder) Len() int {
	return l.tree.Len()
}

// Upsert sets the level at level.Price, replacing any existing size.
// A non-positive size removes the level instead.
func (l *Ladder) Upsert(level types.PriceLevel) {
	if !level.Size.IsPositive() {
		l.Remove(level.Price)
		return
	}
	l.tree.Set(level)
}

// Update overwrites the size of an existing level. It is a no-op when the
// price is absent and reports whether a level was touched.
func (l *Ladder) Update(level types.PriceLevel) bool {
	if _, ok := l.tree.Get(level); !ok {
		return false
	}
	if !level.Size.IsPositive() {
		l.tree.Delete(level)
		return true
	}
	l.tree.Set(level)
	return true
}

// Remove deletes the level at price and reports whether it existed
func (l *Ladder) Remove(price decimal.Decimal) bool {
	_, ok := l.tree.Delete(types.PriceLevel{Price: price})
	return ok
}

// Get returns the level at price
func (l *Ladder) Get(price decimal.Decimal) (types.PriceLevel, bool) {
	return l.tree.Get(types.PriceLevel{Price: price})
}

// Best returns the best level of the ladder
func (l *Ladder) Best() (types.PriceLevel, bool) {
	return l.tree.Min()
}

// Levels returns a best-first copy of the ladder
func (l *Ladder) Levels() []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, l.tree.Len())
	l.tree.Scan(func(level types.PriceLevel) bool {
		levels = append(levels, level)
		return true
	})
	return levels
}

// Clear removes every level
func (l *Ladder) Clear() {
	l.tree.Clear()
}
