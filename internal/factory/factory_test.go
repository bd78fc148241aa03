package factory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdepth/internal/exchange"
	"perpdepth/internal/orderbook"
)

func TestNewExchange(t *testing.T) {
	coins := []string{"BTC", "ETH"}
	for _, name := range GetSupportedExchanges() {
		t.Run(string(name), func(t *testing.T) {
			books := orderbook.NewRegistry([]string{string(name)}, coins).ForExchange(string(name))
			ex, err := NewExchange(ExchangeConfig{Name: name, Coins: coins, Books: books})
			require.NoError(t, err)
			assert.Equal(t, name, ex.GetName())
			assert.Equal(t, exchange.Disconnected, ex.State())
		})
	}
}

func TestNewExchangeUnknown(t *testing.T) {
	_, err := NewExchange(ExchangeConfig{Name: "Binance"})
	assert.EqualError(t, err, "unknown exchange: Binance")
}

func TestValidateExchangeName(t *testing.T) {
	assert.True(t, ValidateExchangeName("Paradex"))
	assert.False(t, ValidateExchangeName("paradex"))
	assert.False(t, ValidateExchangeName(""))
}

func TestDefaultMarketsIsACopy(t *testing.T) {
	markets := DefaultMarkets(exchange.EdgeX)
	assert.Equal(t, "10000001", markets["BTC"])

	markets["BTC"] = "changed"
	assert.Equal(t, "10000001", DefaultMarkets(exchange.EdgeX)["BTC"])
	assert.Empty(t, DefaultMarkets("unknown"))
}
