package exchange

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"perpdepth/internal/types"
)

// ParseLevel parses a price/size pair. ok is false when the price is
// unparseable or the size is unparseable or not positive.
func ParseLevel(price, size string) (types.PriceLevel, bool) {
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return types.PriceLevel{}, false
	}
	s, err := decimal.NewFromString(strings.TrimSpace(size))
	if err != nil || !s.IsPositive() {
		return types.PriceLevel{}, false
	}
	return types.PriceLevel{Price: p, Size: s}, true
}

// ParseRawLevel parses a price/size pair keeping zero and negative sizes, for
// deltas where a non-positive size means removal
func ParseRawLevel(price, size string) (types.PriceLevel, bool) {
	p, err := decimal.NewFromString(strings.TrimSpace(price))
	if err != nil {
		return types.PriceLevel{}, false
	}
	s, err := decimal.NewFromString(strings.TrimSpace(size))
	if err != nil {
		return types.PriceLevel{}, false
	}
	return types.PriceLevel{Price: p, Size: s}, true
}

// ParsePairs parses [[price, size], ...] arrays, dropping invalid entries
func ParsePairs(pairs [][]string) []types.PriceLevel {
	levels := make([]types.PriceLevel, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) < 2 {
			continue
		}
		if level, ok := ParseLevel(pair[0], pair[1]); ok {
			levels = append(levels, level)
		}
	}
	return levels
}

// Markets maps canonical coins to exchange-native market identifiers and back
type Markets struct {
	coins   []string
	toVenue map[string]string
	toCoin  map[string]string
}

// NewMarkets keeps the entries of table for the given coins, in coin order.
// Coins missing from table are skipped.
func NewMarkets(table map[string]string, coins []string) Markets {
	m := Markets{
		toVenue: make(map[string]string, len(coins)),
		toCoin:  make(map[string]string, len(coins)),
	}
	for _, coin := range coins {
		venue, ok := table[coin]
		if !ok {
			continue
		}
		m.coins = append(m.coins, coin)
		m.toVenue[coin] = venue
		m.toCoin[venue] = coin
	}
	return m
}

// Coins returns the mapped coins
func (m Markets) Coins() []string {
	return m.coins
}

// Venue returns the exchange-native identifier for coin
func (m Markets) Venue(coin string) (string, bool) {
	venue, ok := m.toVenue[coin]
	return venue, ok
}

// Coin returns the canonical coin for an exchange-native identifier
func (m Markets) Coin(venue string) (string, bool) {
	coin, ok := m.toCoin[venue]
	return coin, ok
}

// MillisOrNow converts an exchange millisecond timestamp, falling back to the
// local clock when the exchange omits it
func MillisOrNow(ms int64) time.Time {
	if ms <= 0 {
		return time.Now()
	}
	return time.UnixMilli(ms)
}
