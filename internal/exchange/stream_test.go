package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdepth/internal/metrics"
	"perpdepth/internal/orderbook"
)

// testFrame is a minimal venue format used to drive the stream in tests
type testFrame struct {
	Type   string     `json:"type"`
	Symbol string     `json:"symbol"`
	Bids   [][]string `json:"bids"`
	Asks   [][]string `json:"asks"`
}

func decodeTestFrame(raw []byte) (*Op, error) {
	var frame testFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		return nil, Decodef("frame: %v", err)
	}
	switch frame.Type {
	case "book":
		return &Op{Symbol: frame.Symbol, Kind: KindSnapshot, Bids: ParsePairs(frame.Bids), Asks: ParsePairs(frame.Asks)}, nil
	case "delta":
		var bids orderbook.SideDelta
		for _, pair := range frame.Bids {
			if level, ok := ParseRawLevel(pair[0], pair[1]); ok {
				bids.Inserts = append(bids.Inserts, level)
			}
		}
		return &Op{Symbol: frame.Symbol, Kind: KindDelta, BidDelta: bids}, nil
	default:
		return nil, ErrIgnored
	}
}

func newTestStream(url string) *Stream {
	return NewStream(StreamConfig{
		Name:          Hyperliquid,
		URL:           url,
		Books:         orderbook.NewRegistry([]string{string(Hyperliquid)}, []string{"BTC"}).ForExchange(string(Hyperliquid)),
		Metrics:       metrics.New(),
		SubscribeRate: 1000,
	})
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

// newVenue starts a websocket server that records the first inbound frame,
// then sends frames and closes the connection
func newVenue(t *testing.T, frames []string, received chan<- []byte) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		received <- msg

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
	}))
}

func TestStreamEndToEnd(t *testing.T) {
	received := make(chan []byte, 1)
	server := newVenue(t, []string{
		`{"type":"hello"}`,
		`not json`,
		`{"type":"book","symbol":"BTC","bids":[["100","2"],["99","1"]],"asks":[["101","3"]]}`,
		`{"type":"delta","symbol":"BTC","bids":[["100.5","4"]]}`,
	}, received)
	defer server.Close()

	s := newTestStream(wsURL(server))
	ctx := context.Background()

	require.NoError(t, s.Open(ctx))
	assert.Equal(t, Connecting, s.State())
	require.NoError(t, s.Subscribe(ctx, map[string]string{"method": "subscribe"}))
	s.Start(func(raw []byte) { s.Handle(raw, decodeTestFrame) })
	assert.Equal(t, Streaming, s.State())

	select {
	case msg := <-received:
		assert.JSONEq(t, `{"method":"subscribe"}`, string(msg))
	case <-time.After(2 * time.Second):
		t.Fatal("subscribe frame not received")
	}

	var updates []Update
	for len(updates) < 2 {
		select {
		case u := <-s.Updates():
			updates = append(updates, u)
		case <-time.After(2 * time.Second):
			t.Fatalf("got %d updates, want 2", len(updates))
		}
	}
	assert.Equal(t, KindSnapshot, updates[0].Kind)
	assert.Equal(t, KindDelta, updates[1].Kind)
	assert.Equal(t, "BTC", updates[1].Symbol)
	require.Len(t, updates[1].View.Bids, 3)
	assert.Equal(t, "100.5", updates[1].View.Bids[0].Price.String())

	select {
	case err := <-s.Done():
		var connErr *ConnectionError
		require.True(t, errors.As(err, &connErr))
		assert.Equal(t, "read", connErr.Op)
	case <-time.After(2 * time.Second):
		t.Fatal("receive loop did not end")
	}

	assert.Equal(t, Disconnected, s.State())
	health := s.Health()
	assert.EqualValues(t, 4, health.MessageCount)
	assert.EqualValues(t, 2, health.DroppedCount)
	assert.NotEmpty(t, health.ConnectionID)
	assert.NotNil(t, health.ReconnectTime)
}

func TestStreamOpenFailure(t *testing.T) {
	s := newTestStream("ws://127.0.0.1:1/unreachable")

	err := s.Open(context.Background())
	require.Error(t, err)

	var connErr *ConnectionError
	require.True(t, errors.As(err, &connErr))
	assert.Equal(t, "dial", connErr.Op)
	assert.Equal(t, Hyperliquid, connErr.Exchange)
	assert.Equal(t, Disconnected, s.State())
	assert.EqualValues(t, 1, s.Health().ErrorCount)
}

func TestStreamOpenResetsBooks(t *testing.T) {
	s := newTestStream("ws://127.0.0.1:1/unreachable")
	book := s.Books()["BTC"]
	book.Replace(nil, nil, time.Now())
	require.True(t, book.IsInitialized())

	_ = s.Open(context.Background())
	assert.False(t, book.IsInitialized())
	assert.Nil(t, book.View())
}

func TestStreamDisconnectIdempotent(t *testing.T) {
	received := make(chan []byte, 1)
	server := newVenue(t, nil, received)
	defer server.Close()

	s := newTestStream(wsURL(server))
	require.NoError(t, s.Open(context.Background()))

	assert.NoError(t, s.Disconnect())
	assert.NoError(t, s.Disconnect())
	assert.Equal(t, Disconnected, s.State())
	assert.Error(t, s.WriteJSON("late"))
}

func TestStreamHandleDrops(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		dropped int64
	}{
		{name: "control frame", raw: `{"type":"pong"}`, dropped: 1},
		{name: "malformed", raw: `{`, dropped: 1},
		{name: "unmapped symbol", raw: `{"type":"book","symbol":"DOGE"}`, dropped: 1},
		{name: "delta before snapshot", raw: `{"type":"delta","symbol":"BTC","bids":[["1","1"]]}`, dropped: 1},
		{name: "snapshot applied", raw: `{"type":"book","symbol":"BTC","bids":[["1","1"]]}`, dropped: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestStream("ws://unused")
			s.Handle([]byte(tt.raw), decodeTestFrame)
			assert.Equal(t, tt.dropped, s.Health().DroppedCount)
		})
	}
}

func TestStreamDeltaBeforeSnapshotLeavesBookUnset(t *testing.T) {
	s := newTestStream("ws://unused")
	s.Handle([]byte(`{"type":"delta","symbol":"BTC","bids":[["1","1"]]}`), decodeTestFrame)

	assert.Nil(t, s.Books()["BTC"].View())
	assert.Len(t, s.Updates(), 0)
}
