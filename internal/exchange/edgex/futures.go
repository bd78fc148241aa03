package edgex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"perpdepth/internal/exchange"
	"perpdepth/internal/orderbook"
	"perpdepth/internal/types"
)

const (
	// DefaultURL is the public EdgeX quote WebSocket endpoint
	DefaultURL = "wss://quote.edgex.exchange/api/v1/public/ws"

	depthLevels       = 200
	depthTypeSnapshot = "SNAPSHOT"
	typePing          = "ping"
	typeQuoteEvent    = "quote-event"
)

// DefaultMarkets maps canonical coins to EdgeX contract ids
var DefaultMarkets = map[string]string{
	"BTC": "10000001",
	"ETH": "10000002",
	"SOL": "10000003",
}

// FuturesExchange implements the Exchange interface for EdgeX perps. EdgeX
// sends a SNAPSHOT per contract followed by incremental changes.
type FuturesExchange struct {
	*exchange.Stream
	markets exchange.Markets
}

// Config holds configuration for EdgeX exchange
type Config struct {
	exchange.StreamConfig
	Coins   []string
	Markets map[string]string // nil uses DefaultMarkets
}

// NewFuturesExchange creates a new EdgeX exchange instance
func NewFuturesExchange(config Config) *FuturesExchange {
	config.Name = exchange.EdgeX
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

// Connect establishes the WebSocket connection and subscribes one depth
// channel per contract
func (e *FuturesExchange) Connect(ctx context.Context) error {
	if err := e.Open(ctx); err != nil {
		return err
	}

	frames := make([]interface{}, 0, len(e.markets.Coins()))
	for _, coin := range e.markets.Coins() {
		contractID, _ := e.markets.Venue(coin)
		frames = append(frames, SubscribeRequest{
			Type:    "subscribe",
			Channel: fmt.Sprintf("depth.%s.%d", contractID, depthLevels),
		})
	}

	if err := e.Subscribe(ctx, frames...); err != nil {
		_ = e.Disconnect()
		return err
	}

	e.Start(e.handleMessage)
	return nil
}

// handleMessage answers keepalive pings and hands everything else to decode
func (e *FuturesExchange) handleMessage(raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Type == typePing {
		if err := e.WriteJSON(Pong{Type: "pong", Time: env.Time}); err != nil {
			e.Logger().WithError(err).Warn("failed to answer ping")
		}
		return
	}

	e.Handle(raw, e.decode)
}

// decode turns a depth quote-event into a replace or a delta
func (e *FuturesExchange) decode(raw []byte) (*exchange.Op, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, exchange.Decodef("message: %v", err)
	}
	if env.Type != typeQuoteEvent || !strings.HasPrefix(env.Channel, "depth.") {
		return nil, exchange.ErrIgnored
	}

	var content QuoteContent
	if err := json.Unmarshal(env.Content, &content); err != nil {
		return nil, exchange.Decodef("quote content: %v", err)
	}
	if len(content.Data) == 0 {
		return nil, exchange.Decodef("quote-event without data")
	}

	data := content.Data[0]
	coin, ok := e.markets.Coin(data.ContractID)
	if !ok {
		return nil, exchange.Unmappedf("contract %q", data.ContractID)
	}

	if data.DepthType == depthTypeSnapshot {
		return &exchange.Op{
			Symbol:    coin,
			Kind:      exchange.KindSnapshot,
			Bids:      convertLevels(data.Bids),
			Asks:      convertLevels(data.Asks),
			Timestamp: time.Now(),
		}, nil
	}

	return &exchange.Op{
		Symbol:    coin,
		Kind:      exchange.KindDelta,
		BidDelta:  convertChanges(data.Bids),
		AskDelta:  convertChanges(data.Asks),
		Timestamp: time.Now(),
	}, nil
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

// convertChanges maps incremental levels to a delta: a non-positive size
// removes the price, anything else sets it
func convertChanges(levels []Level) orderbook.SideDelta {
	var delta orderbook.SideDelta
	for _, level := range levels {
		pl, ok := exchange.ParseRawLevel(level.Price, level.Size)
		if !ok {
			continue
		}
		if pl.Size.IsPositive() {
			delta.Inserts = append(delta.Inserts, pl)
		} else {
			delta.Deletes = append(delta.Deletes, pl.Price)
		}
	}
	return delta
}
