package exchange

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"perpdepth/internal/logger"
	"perpdepth/internal/metrics"
	"perpdepth/internal/orderbook"
)

const (
	defaultHandshakeTimeout = 10 * time.Second
	defaultUpdateBuffer     = 1000
	defaultSubscribeRate    = 5
	writeWait               = 5 * time.Second
)

// StreamConfig holds what every adapter needs to run a transport
type StreamConfig struct {
	Name             ExchangeName
	URL              string
	Books            map[string]*orderbook.Book // canonical symbol -> owned book
	Log              *logger.Log
	Metrics          *metrics.Metrics
	UpdateBuffer     int
	SubscribeRate    float64 // subscribe frames per second
	HandshakeTimeout time.Duration
}

// Stream is the transport and book-application half of an adapter. Venue
// packages embed it and provide subscribe payloads and a decoder.
type Stream struct {
	name             ExchangeName
	url              string
	books            map[string]*orderbook.Book
	baseLog          *logger.Log
	log              *logger.Entry
	metrics          *metrics.Metrics
	limiter          *rate.Limiter
	handshakeTimeout time.Duration

	mu   sync.Mutex // guards conn, done, log and writes
	conn *websocket.Conn
	done chan error

	updates chan Update
	state   atomic.Int32

	healthMu sync.Mutex
	health   HealthStatus
}

// NewStream creates a disconnected stream
func NewStream(cfg StreamConfig) *Stream {
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	if cfg.UpdateBuffer <= 0 {
		cfg.UpdateBuffer = defaultUpdateBuffer
	}
	if cfg.SubscribeRate <= 0 {
		cfg.SubscribeRate = defaultSubscribeRate
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = defaultHandshakeTimeout
	}
	if cfg.Books == nil {
		cfg.Books = make(map[string]*orderbook.Book)
	}

	return &Stream{
		name:             cfg.Name,
		url:              cfg.URL,
		books:            cfg.Books,
		baseLog:          cfg.Log,
		log:              cfg.Log.WithComponent("exchange").WithField("exchange", string(cfg.Name)),
		metrics:          cfg.Metrics,
		limiter:          rate.NewLimiter(rate.Limit(cfg.SubscribeRate), 1),
		handshakeTimeout: cfg.HandshakeTimeout,
		updates:          make(chan Update, cfg.UpdateBuffer),
	}
}

// GetName returns the exchange name
func (s *Stream) GetName() ExchangeName {
	return s.name
}

// Books returns the books owned by this stream keyed by canonical symbol
func (s *Stream) Books() map[string]*orderbook.Book {
	return s.books
}

// Updates returns a channel that receives a notification per applied operation
func (s *Stream) Updates() <-chan Update {
	return s.updates
}

// State returns the connection state
func (s *Stream) State() ConnState {
	return ConnState(s.state.Load())
}

// Health returns connection health information
func (s *Stream) Health() HealthStatus {
	s.healthMu.Lock()
	defer s.healthMu.Unlock()
	status := s.health
	status.State = s.State()
	return status
}

// Done is closed when the receive loop of the current connection ends
func (s *Stream) Done() <-chan error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Logger returns the per-connection log entry
func (s *Stream) Logger() *logger.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.log
}

// Open dials the exchange. Books are reset first so that a fresh snapshot is
// required after every (re)connect.
func (s *Stream) Open(ctx context.Context) error {
	s.setState(Connecting)
	for _, book := range s.books {
		book.Reset()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: s.handshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.setState(Disconnected)
		s.incrementErrorCount()
		return &ConnectionError{Exchange: s.name, Op: "dial", Err: err}
	}

	connectionID := uuid.NewString()

	s.mu.Lock()
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = conn
	s.done = make(chan error, 1)
	s.log = s.baseLog.WithComponent("exchange").WithFields(logger.Fields{
		"exchange":      string(s.name),
		"connection_id": connectionID,
	})
	s.mu.Unlock()

	s.healthMu.Lock()
	s.health.ConnectionID = connectionID
	s.healthMu.Unlock()

	s.Logger().WithField("url", s.url).Info("websocket connected")
	return nil
}

// Subscribe sends each frame as JSON, paced by the subscribe rate limiter
func (s *Stream) Subscribe(ctx context.Context, frames ...interface{}) error {
	for _, frame := range frames {
		if err := s.limiter.Wait(ctx); err != nil {
			return &ConnectionError{Exchange: s.name, Op: "subscribe", Err: err}
		}
		if err := s.WriteJSON(frame); err != nil {
			s.incrementErrorCount()
			return &ConnectionError{Exchange: s.name, Op: "subscribe", Err: err}
		}
	}
	s.Logger().WithField("frames", len(frames)).Info("subscribed")
	return nil
}

// Start runs the receive loop for the current connection, handing every raw
// message to handle in arrival order
func (s *Stream) Start(handle func([]byte)) {
	s.mu.Lock()
	conn, done := s.conn, s.done
	s.mu.Unlock()
	if conn == nil {
		return
	}

	s.setState(Streaming)
	go s.readMessages(conn, done, handle)
}

// readMessages continuously reads WebSocket messages
func (s *Stream) readMessages(conn *websocket.Conn, done chan error, handle func([]byte)) {
	defer close(done)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.mu.Lock()
			current := s.conn == conn
			if current {
				s.conn = nil
			}
			s.mu.Unlock()

			if current {
				s.setState(Disconnected)
				_ = conn.Close()
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.incrementErrorCount()
			}
			s.markDisconnected()
			done <- &ConnectionError{Exchange: s.name, Op: "read", Err: err}
			return
		}

		s.recordMessage()
		handle(message)
	}
}

// WriteJSON writes one JSON frame on the current connection
func (s *Stream) WriteJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.conn == nil {
		return errors.New("not connected")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteJSON(v)
}

// Disconnect closes the connection with a normal closure; idempotent
func (s *Stream) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.setState(Disconnected)

	err := conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err != nil {
		s.Logger().WithError(err).Debug("error sending close message")
	}

	s.markDisconnected()
	if err := conn.Close(); err != nil {
		return fmt.Errorf("close %s connection: %w", s.name, err)
	}
	return nil
}

// Handle decodes one raw message and applies the result to the owned book.
// Every failure is contained here: it is counted, logged at debug level and
// the message is dropped.
func (s *Stream) Handle(raw []byte, decode func([]byte) (*Op, error)) {
	op, err := decode(raw)
	if err == nil {
		err = s.Apply(op)
	}
	if err != nil {
		s.drop(err)
	}
}

// Apply runs a decoded operation against the owned book and emits an Update
func (s *Stream) Apply(op *Op) error {
	book, ok := s.books[op.Symbol]
	if !ok {
		return Unmappedf("symbol %q has no book", op.Symbol)
	}

	switch op.Kind {
	case KindSnapshot:
		book.Replace(op.Bids, op.Asks, op.Timestamp)
	case KindDelta:
		if err := book.ApplyDelta(op.BidDelta, op.AskDelta, op.Timestamp); err != nil {
			return err
		}
	default:
		return Decodef("unknown operation kind %q", op.Kind)
	}

	view := book.View()
	if view == nil {
		return nil
	}
	s.metrics.IncBookUpdate(string(s.name), op.Symbol, string(op.Kind))
	s.metrics.SetBookLevels(string(s.name), op.Symbol, len(view.Bids), len(view.Asks))

	update := Update{
		Exchange:  s.name,
		Symbol:    op.Symbol,
		Kind:      op.Kind,
		View:      view,
		Timestamp: view.Timestamp,
	}
	select {
	case s.updates <- update:
	default:
		s.Logger().Debug("update channel full, skipping notification")
	}
	return nil
}

func (s *Stream) drop(err error) {
	reason := DropReason(err)
	s.metrics.IncDropped(string(s.name), reason)

	s.healthMu.Lock()
	s.health.DroppedCount++
	s.healthMu.Unlock()

	if reason != "ignored" {
		s.Logger().WithError(err).WithField("reason", reason).Debug("message dropped")
	}
}

func (s *Stream) setState(state ConnState) {
	s.state.Store(int32(state))
	s.metrics.SetConnectionState(string(s.name), int(state))
}

func (s *Stream) recordMessage() {
	s.metrics.IncMessage(string(s.name))

	s.healthMu.Lock()
	s.health.MessageCount++
	s.health.LastMessage = time.Now()
	s.healthMu.Unlock()
}

func (s *Stream) incrementErrorCount() {
	s.healthMu.Lock()
	s.health.ErrorCount++
	s.healthMu.Unlock()
}

func (s *Stream) markDisconnected() {
	now := time.Now()
	s.healthMu.Lock()
	s.health.ReconnectTime = &now
	s.healthMu.Unlock()
}
