package lighter

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"perpdepth/internal/exchange"
	"perpdepth/internal/types"
)

const (
	// DefaultURL is the public Lighter stream endpoint
	DefaultURL = "wss://mainnet.zklighter.elliot.ai/stream"

	typeOrderBookUpdate = "update/order_book"
	channelPrefix       = "order_book:"
)

// DefaultMarkets maps canonical coins to Lighter market indices
var DefaultMarkets = map[string]string{
	"BTC": "1",
	"ETH": "0",
	"SOL": "2",
}

// FuturesExchange implements the Exchange interface for Lighter perps
type FuturesExchange struct {
	*exchange.Stream
	markets exchange.Markets
}

// Config holds configuration for Lighter exchange
type Config struct {
	exchange.StreamConfig
	Coins   []string
	Markets map[string]string // nil uses DefaultMarkets
}

// NewFuturesExchange creates a new Lighter exchange instance
func NewFuturesExchange(config Config) *FuturesExchange {
	config.Name = exchange.Lighter
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Markets == nil {
		config.Markets = DefaultMarkets
	}

	return &FuturesExchange{
		Stream:  exchange.NewStream(config.StreamConfig),
		markets: exchange.NewMarkets(config.Markets, config.Coins),
	}
}

// Connect establishes the WebSocket connection and subscribes one order_book
// channel per market index
func (e *FuturesExchange) Connect(ctx context.Context) error {
	if err := e.Open(ctx); err != nil {
		return err
	}

	frames := make([]interface{}, 0, len(e.markets.Coins()))
	for _, coin := range e.markets.Coins() {
		index, _ := e.markets.Venue(coin)
		frames = append(frames, SubscribeRequest{
			Type:    "subscribe",
			Channel: "order_book/" + index,
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

// decode turns an order book update into a full replace
func (e *FuturesExchange) decode(raw []byte) (*exchange.Op, error) {
	var msg OrderBookMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, exchange.Decodef("message: %v", err)
	}
	// connected, subscribed/order_book and ping frames are skipped
	if msg.Type != typeOrderBookUpdate || msg.OrderBook == nil {
		return nil, exchange.ErrIgnored
	}
	if msg.OrderBook.Code != 0 {
		return nil, exchange.Decodef("order book code %d", msg.OrderBook.Code)
	}

	index, err := marketIndex(msg.Channel)
	if err != nil {
		return nil, err
	}
	coin, ok := e.markets.Coin(strconv.Itoa(index))
	if !ok {
		return nil, exchange.Unmappedf("market index %d", index)
	}

	return &exchange.Op{
		Symbol:    coin,
		Kind:      exchange.KindSnapshot,
		Bids:      convertLevels(msg.OrderBook.Bids),
		Asks:      convertLevels(msg.OrderBook.Asks),
		Timestamp: exchange.MillisOrNow(msg.Timestamp),
	}, nil
}

// marketIndex parses the index out of order_book:<index>
func marketIndex(channel string) (int, error) {
	if !strings.HasPrefix(channel, channelPrefix) {
		return 0, exchange.Decodef("unexpected channel %q", channel)
	}
	index, err := strconv.Atoi(strings.TrimPrefix(channel, channelPrefix))
	if err != nil {
		return 0, exchange.Decodef("channel %q: %v", channel, err)
	}
	return index, nil
}

func convertLevels(levels []Level) []types.PriceLevel {
	converted := make([]types.PriceLevel, 0, len(levels))
	for _, level := range levels {
		if pl, ok := exchange.ParseLevel(level.Price, level.Size); ok {
			converted = append(converted, pl)
		}
	}
	return converted
}
