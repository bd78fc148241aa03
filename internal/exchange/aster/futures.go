package aster

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"

	"perpdepth/internal/exchange"
)

const (
	// DefaultURL is the public Aster futures WebSocket endpoint
	DefaultURL = "wss://fstream.asterdex.com/ws"

	eventDepthUpdate = "depthUpdate"
	depthStream      = "@depth20@100ms"
)

// DefaultMarkets maps canonical coins to Aster stream symbols
var DefaultMarkets = map[string]string{
	"BTC": "btcusdt",
	"ETH": "ethusdt",
	"SOL": "solusdt",
}

// FuturesExchange implements the Exchange interface for Aster perps
type FuturesExchange struct {
	*exchange.Stream
	markets   exchange.Markets
	bySymbol  map[string]string // upper-case venue symbol -> coin
	requestID atomic.Int64
}

// Config holds configuration for Aster exchange
type Config struct {
	exchange.StreamConfig
	Coins   []string
	Markets map[string]string // nil uses DefaultMarkets
}

// NewFuturesExchange creates a new Aster exchange instance
func NewFuturesExchange(config Config) *FuturesExchange {
	config.Name = exchange.Aster
	if config.URL == "" {
		config.URL = DefaultURL
	}
	if config.Markets == nil {
		config.Markets = DefaultMarkets
	}

	markets := exchange.NewMarkets(config.Markets, config.Coins)
	bySymbol := make(map[string]string, len(markets.Coins()))
	for _, coin := range markets.Coins() {
		venue, _ := markets.Venue(coin)
		bySymbol[strings.ToUpper(venue)] = coin
	}

	return &FuturesExchange{
		Stream:   exchange.NewStream(config.StreamConfig),
		markets:  markets,
		bySymbol: bySymbol,
	}
}

// Connect establishes the WebSocket connection and subscribes all depth
// streams in a single request
func (e *FuturesExchange) Connect(ctx context.Context) error {
	if err := e.Open(ctx); err != nil {
		return err
	}

	streams := make([]string, 0, len(e.markets.Coins()))
	for _, coin := range e.markets.Coins() {
		venue, _ := e.markets.Venue(coin)
		streams = append(streams, strings.ToLower(venue)+depthStream)
	}

	if len(streams) > 0 {
		err := e.Subscribe(ctx, SubscribeRequest{
			Method: "SUBSCRIBE",
			Params: streams,
			ID:     e.requestID.Add(1),
		})
		if err != nil {
			_ = e.Disconnect()
			return err
		}
	}

	e.Start(func(raw []byte) {
		e.Handle(raw, e.decode)
	})
	return nil
}

// decode turns a depthUpdate event into a full replace
func (e *FuturesExchange) decode(raw []byte) (*exchange.Op, error) {
	var event DepthUpdate
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, exchange.Decodef("depth event: %v", err)
	}

	// subscription results have no event type
	if event.EventType != eventDepthUpdate {
		return nil, exchange.ErrIgnored
	}
	if event.Symbol == "" {
		return nil, exchange.Decodef("depthUpdate without symbol")
	}

	coin, ok := e.bySymbol[strings.ToUpper(event.Symbol)]
	if !ok {
		return nil, exchange.Unmappedf("symbol %q", event.Symbol)
	}

	return &exchange.Op{
		Symbol:    coin,
		Kind:      exchange.KindSnapshot,
		Bids:      exchange.ParsePairs(event.Bids),
		Asks:      exchange.ParsePairs(event.Asks),
		Timestamp: exchange.MillisOrNow(event.EventTime),
	}, nil
}
