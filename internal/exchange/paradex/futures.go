package paradex

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"perpdepth/internal/exchange"
	"perpdepth/internal/orderbook"
)

const (
	// DefaultURL is the public Paradex WebSocket endpoint
	DefaultURL = "wss://ws.api.prod.paradex.trade/v1"

	channelPrefix      = "order_book."
	channelSuffix      = ".snapshot@15@100ms"
	updateTypeSnapshot = "s"
	sideBuy            = "BUY"
	sideSell           = "SELL"
)

// DefaultMarkets maps canonical coins to Paradex market symbols
var DefaultMarkets = map[string]string{
	"BTC": "BTC-USD-PERP",
	"ETH": "ETH-USD-PERP",
	"SOL": "SOL-USD-PERP",
}

// FuturesExchange implements the Exchange interface for Paradex perps
type FuturesExchange struct {
	*exchange.Stream
	markets   exchange.Markets
	requestID atomic.Int64
}

// Config holds configuration for Paradex exchange
type Config struct {
	exchange.StreamConfig
	Coins   []string
	Markets map[string]string // nil uses DefaultMarkets
}

// NewFuturesExchange creates a new Paradex exchange instance
func NewFuturesExchange(config Config) *FuturesExchange {
	config.Name = exchange.Paradex
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
// channel per market
func (e *FuturesExchange) Connect(ctx context.Context) error {
	if err := e.Open(ctx); err != nil {
		return err
	}

	frames := make([]interface{}, 0, len(e.markets.Coins()))
	for _, coin := range e.markets.Coins() {
		market, _ := e.markets.Venue(coin)
		frames = append(frames, SubscribeRequest{
			JSONRPC: "2.0",
			Method:  "subscribe",
			Params:  SubscribeParams{Channel: channelPrefix + market + channelSuffix},
			ID:      e.requestID.Add(1),
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

// decode turns an order_book notification into a replace or a delta
func (e *FuturesExchange) decode(raw []byte) (*exchange.Op, error) {
	var msg Notification
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, exchange.Decodef("message: %v", err)
	}
	// subscribe results carry an id and no method
	if msg.Method != "subscription" {
		return nil, exchange.ErrIgnored
	}

	var params SubscriptionParams
	if err := json.Unmarshal(msg.Params, &params); err != nil {
		return nil, exchange.Decodef("params: %v", err)
	}
	if !strings.HasPrefix(params.Channel, channelPrefix) {
		return nil, exchange.ErrIgnored
	}
	if len(params.Data) == 0 || string(params.Data) == "null" {
		return nil, exchange.Decodef("channel %s without data", params.Channel)
	}

	market := marketFromChannel(params.Channel)
	if market == "" {
		return nil, exchange.Decodef("channel %q has no market", params.Channel)
	}
	coin, ok := e.markets.Coin(market)
	if !ok {
		return nil, exchange.Unmappedf("market %q", market)
	}

	var data OrderBookData
	if err := json.Unmarshal(params.Data, &data); err != nil {
		return nil, exchange.Decodef("order book data: %v", err)
	}

	if data.UpdateType == updateTypeSnapshot {
		return snapshotOp(coin, data), nil
	}
	return deltaOp(coin, data), nil
}

// marketFromChannel extracts BTC-USD-PERP from order_book.BTC-USD-PERP.snapshot@15@100ms
func marketFromChannel(channel string) string {
	rest := strings.TrimPrefix(channel, channelPrefix)
	idx := strings.Index(rest, ".")
	if idx <= 0 {
		return ""
	}
	return rest[:idx]
}

func snapshotOp(coin string, data OrderBookData) *exchange.Op {
	op := &exchange.Op{
		Symbol:    coin,
		Kind:      exchange.KindSnapshot,
		Timestamp: time.Now(),
	}
	for _, item := range data.Inserts {
		level, ok := exchange.ParseLevel(item.Price, item.Size)
		if !ok {
			continue
		}
		switch item.Side {
		case sideBuy:
			op.Bids = append(op.Bids, level)
		case sideSell:
			op.Asks = append(op.Asks, level)
		}
	}
	return op
}

func deltaOp(coin string, data OrderBookData) *exchange.Op {
	op := &exchange.Op{
		Symbol:    coin,
		Kind:      exchange.KindDelta,
		Timestamp: time.Now(),
	}

	for _, item := range data.Deletes {
		price, err := decimal.NewFromString(strings.TrimSpace(item.Price))
		if err != nil {
			continue
		}
		if delta := sideDelta(op, item.Side); delta != nil {
			delta.Deletes = append(delta.Deletes, price)
		}
	}
	for _, item := range data.Updates {
		level, ok := exchange.ParseRawLevel(item.Price, item.Size)
		if !ok {
			continue
		}
		if delta := sideDelta(op, item.Side); delta != nil {
			delta.Updates = append(delta.Updates, level)
		}
	}
	for _, item := range data.Inserts {
		level, ok := exchange.ParseRawLevel(item.Price, item.Size)
		if !ok {
			continue
		}
		if delta := sideDelta(op, item.Side); delta != nil {
			delta.Inserts = append(delta.Inserts, level)
		}
	}
	return op
}

func sideDelta(op *exchange.Op, side string) *orderbook.SideDelta {
	switch side {
	case sideBuy:
		return &op.BidDelta
	case sideSell:
		return &op.AskDelta
	default:
		return nil
	}
}
