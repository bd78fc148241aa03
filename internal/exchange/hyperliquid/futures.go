package hyperliquid

import (
	"context"
	"encoding/json"

	"perpdepth/internal/exchange"
	"perpdepth/internal/types"
)

const (
	// DefaultURL is the public Hyperliquid WebSocket endpoint
	DefaultURL = "wss://api.hyperliquid.xyz/ws"

	defaultSigFigs = 5
	channelL2Book  = "l2Book"
)

// DefaultMarkets maps canonical coins to Hyperliquid coin names
var DefaultMarkets = map[string]string{
	"BTC": "BTC",
	"ETH": "ETH",
	"SOL": "SOL",
}

// FuturesExchange implements the Exchange interface for Hyperliquid perps
type FuturesExchange struct {
	*exchange.Stream
	markets exchange.Markets
	sigFigs int
}

// Config holds configuration for Hyperliquid exchange
type Config struct {
	exchange.StreamConfig
	Coins   []string
	Markets map[string]string // nil uses DefaultMarkets
	SigFigs int               // significant-figure rounding requested from the venue
}

// NewFuturesExchange creates a new Hyperliquid exchange instance
func NewFuturesExchange(config Config) *FuturesExchange {
	config.Name = exchange.Hyperliquid
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Markets == nil {
		config.Markets = DefaultMarkets
	}
	if config.SigFigs <= 0 {
		config.SigFigs = defaultSigFigs
	}

	return &FuturesExchange{
		Stream:  exchange.NewStream(config.StreamConfig),
		markets: exchange.NewMarkets(config.Markets, config.Coins),
		sigFigs: config.SigFigs,
	}
}

// Connect establishes the WebSocket connection and subscribes one l2Book
// channel per coin
func (e *FuturesExchange) Connect(ctx context.Context) error {
	if err := e.Open(ctx); err != nil {
		return err
	}

	frames := make([]interface{}, 0, len(e.markets.Coins()))
	for _, coin := range e.markets.Coins() {
		venue, _ := e.markets.Venue(coin)
		frames = append(frames, SubscriptionMessage{
			Method: "subscribe",
			Subscription: Subscription{
				Type:     channelL2Book,
				Coin:     venue,
				NSigFigs: e.sigFigs,
			},
		})
	}

	if err := e.Subscribe(ctx, frames...); err != nil {
		_ = e.Disconnect()
		return err
	}

	e.Start(func(raw []byte) {
		e.Handle(raw, e.decode)
	})
	return nil
}

// decode turns an l2Book message into a full replace
func (e *FuturesExchange) decode(raw []byte) (*exchange.Op, error) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, exchange.Decodef("message: %v", err)
	}

	// subscriptionResponse, pong and anything else carry no book
	if msg.Channel != channelL2Book {
		return nil, exchange.ErrIgnored
	}

	var book WsBook
	if err := json.Unmarshal(msg.Data, &book); err != nil {
		return nil, exchange.Decodef("l2Book data: %v", err)
	}
	if book.Coin == "" {
		return nil, exchange.Decodef("l2Book without coin")
	}

	coin, ok := e.markets.Coin(book.Coin)
	if !ok {
		return nil, exchange.Unmappedf("coin %q", book.Coin)
	}

	return &exchange.Op{
		Symbol:    coin,
		Kind:      exchange.KindSnapshot,
		Bids:      convertLevels(book.Levels[0]),
		Asks:      convertLevels(book.Levels[1]),
		Timestamp: exchange.MillisOrNow(book.Time),
	}, nil
}

// convertLevels converts Hyperliquid levels to canonical format
func convertLevels(levels []WsLevel) []types.PriceLevel {
	converted := make([]types.PriceLevel, 0, len(levels))
	for _, level := range levels {
		if pl, ok := exchange.ParseLevel(level.Px, level.Sz); ok {
			converted = append(converted, pl)
		}
	}
	return converted
}
