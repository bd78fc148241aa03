package edgex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdepth/internal/exchange"
	"perpdepth/internal/orderbook"
)

func newTestExchange(url string) *FuturesExchange {
	coins := []string{"BTC", "ETH"}
	return NewFuturesExchange(Config{
		StreamConfig: exchange.StreamConfig{
			URL:           url,
			Books:         orderbook.NewRegistry([]string{string(exchange.EdgeX)}, coins).ForExchange(string(exchange.EdgeX)),
			SubscribeRate: 1000,
		},
		Coins: coins,
	})
}

func quote(depthType, bids, asks string) []byte {
	return []byte(`{"type":"quote-event","channel":"depth.10000001.200","content":{"dataType":"` + depthType +
		`","channel":"depth.10000001.200","data":[{"contractId":"10000001","depthType":"` + depthType +
		`","bids":` + bids + `,"asks":` + asks + `}]}}`)
}

func prices(view *orderbook.View) (bids, asks []string) {
	for _, l := range view.Bids {
		bids = append(bids, l.Price.String()+"x"+l.Size.String())
	}
	for _, l := range view.Asks {
		asks = append(asks, l.Price.String()+"x"+l.Size.String())
	}
	return bids, asks
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr error
	}{
		{name: "subscribed ack", raw: `{"type":"subscribed","channel":"depth.10000001.200"}`, wantErr: exchange.ErrIgnored},
		{name: "other channel", raw: `{"type":"quote-event","channel":"ticker.10000001","content":{}}`, wantErr: exchange.ErrIgnored},
		{name: "empty data", raw: `{"type":"quote-event","channel":"depth.1.200","content":{"data":[]}}`, wantErr: exchange.ErrDecode},
		{name: "unmapped contract", raw: `{"type":"quote-event","channel":"depth.9.200","content":{"data":[{"contractId":"9","depthType":"SNAPSHOT"}]}}`, wantErr: exchange.ErrUnmapped},
		{name: "malformed", raw: `nope`, wantErr: exchange.ErrDecode},
	}

	e := newTestExchange("ws://unused")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.decode([]byte(tt.raw))
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSnapshotThenChanges(t *testing.T) {
	e := newTestExchange("ws://unused")
	book := e.Books()["BTC"]

	// changes before a snapshot have no baseline
	e.Handle(quote("CHANGED", `[{"price":"100","size":"1"}]`, `[]`), e.decode)
	assert.Nil(t, book.View())

	e.Handle(quote("SNAPSHOT",
		`[{"price":"99","size":"1"},{"price":"100","size":"2"}]`,
		`[{"price":"101","size":"3"},{"price":"102","size":"0"}]`), e.decode)
	bids, asks := prices(book.View())
	assert.Equal(t, []string{"100x2", "99x1"}, bids)
	assert.Equal(t, []string{"101x3"}, asks)

	e.Handle(quote("CHANGED",
		`[{"price":"100","size":"0"},{"price":"99.5","size":"4"},{"price":"99","size":"5"}]`,
		`[{"price":"100.5","size":"1"}]`), e.decode)
	bids, asks = prices(book.View())
	assert.Equal(t, []string{"99.5x4", "99x5"}, bids)
	assert.Equal(t, []string{"100.5x1", "101x3"}, asks)
}

func TestPingAnsweredWithPong(t *testing.T) {
	pongs := make(chan string, 1)
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		for i := 0; i < 2; i++ {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","time":"1700000000000"}`))

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		pongs <- string(msg)
		_, _, _ = conn.ReadMessage()
	}))
	defer server.Close()

	e := newTestExchange("ws" + strings.TrimPrefix(server.URL, "http"))
	require.NoError(t, e.Connect(context.Background()))
	defer e.Disconnect()

	select {
	case pong := <-pongs:
		assert.JSONEq(t, `{"type":"pong","time":"1700000000000"}`, pong)
	case <-time.After(2 * time.Second):
		t.Fatal("pong not received")
	}
}
