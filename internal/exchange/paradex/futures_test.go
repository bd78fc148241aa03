package paradex

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdepth/internal/exchange"
	"perpdepth/internal/orderbook"
)

func newTestExchange() *FuturesExchange {
	coins := []string{"BTC", "ETH"}
	return NewFuturesExchange(Config{
		StreamConfig: exchange.StreamConfig{
			Books: orderbook.NewRegistry([]string{string(exchange.Paradex)}, coins).ForExchange(string(exchange.Paradex)),
		},
		Coins: coins,
	})
}

func notification(market, updateType, body string) []byte {
	return []byte(`{"jsonrpc":"2.0","method":"subscription","params":{"channel":"order_book.` + market +
		`.snapshot@15@100ms","data":{"market":"` + market + `","update_type":"` + updateType + `",` + body + `}}}`)
}

func levels(view *orderbook.View) (bids, asks []string) {
	for _, l := range view.Bids {
		bids = append(bids, l.Price.String()+"x"+l.Size.String())
	}
	for _, l := range view.Asks {
		asks = append(asks, l.Price.String()+"x"+l.Size.String())
	}
	return bids, asks
}

func TestMarketFromChannel(t *testing.T) {
	assert.Equal(t, "BTC-USD-PERP", marketFromChannel("order_book.BTC-USD-PERP.snapshot@15@100ms"))
	assert.Equal(t, "", marketFromChannel("order_book.BTC-USD-PERP"))
	assert.Equal(t, "", marketFromChannel("order_book..x"))
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "subscribe result", raw: `{"jsonrpc":"2.0","result":{"channel":"order_book.BTC-USD-PERP.snapshot@15@100ms"},"id":1}`, wantErr: exchange.ErrIgnored},
		{name: "other channel", raw: `{"jsonrpc":"2.0","method":"subscription","params":{"channel":"trades.BTC-USD-PERP","data":{}}}`, wantErr: exchange.ErrIgnored},
		{name: "no data", raw: `{"jsonrpc":"2.0","method":"subscription","params":{"channel":"order_book.BTC-USD-PERP.snapshot@15@100ms"}}`, wantErr: exchange.ErrDecode},
		{name: "unmapped market", raw: string(notification("DOGE-USD-PERP", "s", `"inserts":[]`)), wantErr: exchange.ErrUnmapped},
		{name: "malformed", raw: `{"method":`, wantErr: exchange.ErrDecode},
	}

	e := newTestExchange()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSnapshotThenDelta(t *testing.T) {
	e := newTestExchange()
	book := e.Books()["BTC"]

	e.Handle(notification("BTC-USD-PERP", "d", `"inserts":[{"side":"BUY","price":"100","size":"1"}]`), e.decode)
	assert.Nil(t, book.View(), "delta before snapshot must be dropped")

	e.Handle(notification("BTC-USD-PERP", "s", `"inserts":[
		{"side":"BUY","price":"99","size":"1"},
		{"side":"BUY","price":"100","size":"2"},
		{"side":"SELL","price":"102","size":"4"},
		{"side":"SELL","price":"101","size":"3"},
		{"side":"OTHER","price":"1","size":"1"}]`), e.decode)
	bids, asks := levels(book.View())
	assert.Equal(t, []string{"100x2", "99x1"}, bids)
	assert.Equal(t, []string{"101x3", "102x4"}, asks)

	e.Handle(notification("BTC-USD-PERP", "d", `
		"deletes":[{"side":"SELL","price":"101","size":"0"},{"side":"BUY","price":"50","size":"0"}],
		"updates":[{"side":"BUY","price":"99","size":"7"},{"side":"BUY","price":"98","size":"1"}],
		"inserts":[{"side":"SELL","price":"101.5","size":"2"}]`), e.decode)
	bids, asks = levels(book.View())
	assert.Equal(t, []string{"100x2", "99x7"}, bids, "update for absent price is a no-op")
	assert.Equal(t, []string{"101.5x2", "102x4"}, asks)
}

func TestEmptyDeltaLeavesBookUnchanged(t *testing.T) {
	e := newTestExchange()
	book := e.Books()["ETH"]

	e.Handle(notification("ETH-USD-PERP", "s", `"inserts":[{"side":"BUY","price":"10","size":"1"},{"side":"SELL","price":"11","size":"1"}]`), e.decode)
	before := book.View()
	e.Handle(notification("ETH-USD-PERP", "d", `"inserts":[]`), e.decode)
	after := book.View()

	assert.Equal(t, before.Bids, after.Bids)
	assert.Equal(t, before.Asks, after.Asks)
}

func TestSubscribeRequestWireFormat(t *testing.T) {
	raw, err := json.Marshal(SubscribeRequest{
		JSONRPC: "2.0",
		Method:  "subscribe",
		Params:  SubscribeParams{Channel: "order_book.BTC-USD-PERP.snapshot@15@100ms"},
		ID:      3,
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"subscribe","params":{"channel":"order_book.BTC-USD-PERP.snapshot@15@100ms"},"id":3}`, string(raw))
}
