package factory

import (
	"fmt"
	"time"

	"perpdepth/internal/exchange"
	"perpdepth/internal/exchange/aster"
	"perpdepth/internal/exchange/edgex"
	"perpdepth/internal/exchange/hyperliquid"
	"perpdepth/internal/exchange/lighter"
	"perpdepth/internal/exchange/paradex"
	"perpdepth/internal/logger"
	"perpdepth/internal/metrics"
	"perpdepth/internal/orderbook"
)

// ExchangeConfig holds configuration for creating an exchange
type ExchangeConfig struct {
	Name             exchange.ExchangeName
	URL              string            // empty uses the venue default
	Coins            []string          // canonical coins to subscribe
	Markets          map[string]string // coin -> venue market id; nil uses the venue default
	Books            map[string]*orderbook.Book
	Log              *logger.Log
	Metrics          *metrics.Metrics
	UpdateBuffer     int
	SubscribeRate    float64
	HandshakeTimeout time.Duration
}

func (c ExchangeConfig) stream() exchange.StreamConfig {
	return exchange.StreamConfig{
		Name:             c.Name,
		URL:              c.URL,
		Books:            c.Books,
		Log:              c.Log,
		Metrics:          c.Metrics,
		UpdateBuffer:     c.UpdateBuffer,
		SubscribeRate:    c.SubscribeRate,
		HandshakeTimeout: c.HandshakeTimeout,
	}
}

// NewExchange creates a new exchange instance based on the configuration
func NewExchange(config ExchangeConfig) (exchange.Exchange, error) {
	switch config.Name {
	case exchange.Hyperliquid:
		return hyperliquid.NewFuturesExchange(hyperliquid.Config{
			StreamConfig: config.stream(),
			Coins:        config.Coins,
			Markets:      config.Markets,
		}), nil

	case exchange.Lighter:
		return lighter.NewFuturesExchange(lighter.Config{
			StreamConfig: config.stream(),
			Coins:        config.Coins,
			Markets:      config.Markets,
		}), nil

	case exchange.EdgeX:
		return edgex.NewFuturesExchange(edgex.Config{
			StreamConfig: config.stream(),
			Coins:        config.Coins,
			Markets:      config.Markets,
		}), nil

	case exchange.Paradex:
		return paradex.NewFuturesExchange(paradex.Config{
			StreamConfig: config.stream(),
			Coins:        config.Coins,
			Markets:      config.Markets,
		}), nil

	case exchange.Aster:
		return aster.NewFuturesExchange(aster.Config{
			StreamConfig: config.stream(),
			Coins:        config.Coins,
			Markets:      config.Markets,
		}), nil

	default:
		return nil, fmt.Errorf("unknown exchange: %s", config.Name)
	}
}

// ValidateExchangeName checks if the exchange name is supported
func ValidateExchangeName(name string) bool {
	for _, supported := range GetSupportedExchanges() {
		if exchange.ExchangeName(name) == supported {
			return true
		}
	}
	return false
}

// GetSupportedExchanges returns a list of all supported exchanges
func GetSupportedExchanges() []exchange.ExchangeName {
	return []exchange.ExchangeName{exchange.Hyperliquid, exchange.Lighter, exchange.EdgeX, exchange.Paradex, exchange.Aster}
}

// DefaultMarkets returns the built-in coin to market id table of an exchange
func DefaultMarkets(name exchange.ExchangeName) map[string]string {
	var table map[string]string
	switch name {
	case exchange.Hyperliquid:
		table = hyperliquid.DefaultMarkets
	case exchange.Lighter:
		table = lighter.DefaultMarkets
	case exchange.EdgeX:
		table = edgex.DefaultMarkets
	case exchange.Paradex:
		table = paradex.DefaultMarkets
	case exchange.Aster:
		table = aster.DefaultMarkets
	}

	markets := make(map[string]string, len(table))
	for coin, market := range table {
		markets[coin] = market
	}
	return markets
}
