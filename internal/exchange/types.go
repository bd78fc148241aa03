package exchange

import (
	"context"
	"time"

	"perpdepth/internal/orderbook"
	"perpdepth/internal/types"
)

// ExchangeName represents supported exchange identifiers
type ExchangeName string

const (
	Hyperliquid ExchangeName = "Hyperliquid"
	Lighter     ExchangeName = "Lighter"
	EdgeX       ExchangeName = "EdgeX"
	Paradex     ExchangeName = "Paradex"
	Aster       ExchangeName = "Aster"
)

// ConnState is the connection lifecycle: Disconnected -> Connecting -> Streaming -> Disconnected
type ConnState int32

const (
	Disconnected ConnState = iota
	Connecting
	Streaming
)

func (s ConnState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	default:
		return "disconnected"
	}
}

// MarshalText renders the state name in JSON
func (s ConnState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Exchange defines the capability set every exchange adapter implements
type Exchange interface {
	// GetName returns the exchange name
	GetName() ExchangeName

	// Connect dials the exchange, subscribes every configured symbol and
	// starts the receive loop
	Connect(ctx context.Context) error

	// Disconnect closes the transport with a normal closure; idempotent
	Disconnect() error

	// Done is closed when the receive loop of the current connection ends.
	// It yields the error that ended it, if any.
	Done() <-chan error

	// Updates returns a channel that receives a notification per applied operation
	Updates() <-chan Update

	// State returns the connection state
	State() ConnState

	// Health returns connection health information
	Health() HealthStatus
}

// UpdateKind distinguishes full replaces from incremental merges
type UpdateKind string

const (
	KindSnapshot UpdateKind = "snapshot"
	KindDelta    UpdateKind = "delta"
)

// Op is a decoded book operation for one symbol
type Op struct {
	Symbol    string
	Kind      UpdateKind
	Bids      []types.PriceLevel // KindSnapshot
	Asks      []types.PriceLevel // KindSnapshot
	BidDelta  orderbook.SideDelta
	AskDelta  orderbook.SideDelta
	Timestamp time.Time
}

// Update is emitted after an operation has been applied to a book
type Update struct {
	Exchange  ExchangeName
	Symbol    string
	Kind      UpdateKind
	View      *orderbook.View
	Timestamp time.Time
}

// HealthStatus represents connection health information
type HealthStatus struct {
	State         ConnState  `json:"state"`
	ConnectionID  string     `json:"connectionId,omitempty"`
	LastMessage   time.Time  `json:"lastMessage"`
	MessageCount  int64      `json:"messageCount"`
	DroppedCount  int64      `json:"droppedCount"`
	ErrorCount    int64      `json:"errorCount"`
	ReconnectTime *time.Time `json:"reconnectTime,omitempty"`
}
