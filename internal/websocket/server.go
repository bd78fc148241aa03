// Package websocket serves the depth snapshot over HTTP and pushes it to
// WebSocket clients.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"perpdepth/internal/aggregation"
	"perpdepth/internal/exchange"
	"perpdepth/internal/logger"
	"perpdepth/internal/metrics"
	"perpdepth/internal/orderbook"
	"perpdepth/internal/snapshot"
	"perpdepth/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	clientBuffer   = 16
)

type MessageType string

const (
	MessageTypeSnapshot MessageType = "snapshot"
	MessageTypeBook     MessageType = "book"
	MessageTypeError    MessageType = "error"
)

// ClientMessage represents messages sent from client to server
type ClientMessage struct {
	Type     string  `json:"type"`
	Exchange string  `json:"exchange,omitempty"`
	Coin     string  `json:"coin,omitempty"`
	Tick     float64 `json:"tick,omitempty"`
}

// ServerMessage wraps every pushed payload
type ServerMessage struct {
	Type MessageType `json:"type"`
	Data interface{} `json:"data"`
}

// BookResponse is the canonical normalized order book
type BookResponse struct {
	Exchange  string             `json:"exchange"`
	Symbol    string             `json:"symbol"`
	Bids      []types.PriceLevel `json:"bids"`
	Asks      []types.PriceLevel `json:"asks"`
	Timestamp int64              `json:"timestamp"`
}

// HealthResponse is returned by /api/health
type HealthResponse struct {
	Status    string                           `json:"status"`
	Exchanges map[string]exchange.HealthStatus `json:"exchanges"`
	Clients   int                              `json:"clients"`
	Timestamp int64                            `json:"timestamp"`
}

// Config holds server settings
type Config struct {
	Port              string
	BroadcastInterval time.Duration
	DefaultTick       types.TickLevel
	MaxBookLevels     int
	Log               *logger.Log
	Metrics           *metrics.Metrics
}

type bookSubscription struct {
	exchange string
	coin     string
	tick     types.TickLevel
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte

	mu   sync.Mutex
	book *bookSubscription
}

func (c *client) subscription() *bookSubscription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.book
}

// Server exposes the snapshot, book and health endpoints and the push feed
type Server struct {
	cfg       Config
	log       *logger.Entry
	metrics   *metrics.Metrics
	builder   *snapshot.Builder
	books     *orderbook.Registry
	exchanges []exchange.Exchange
	router    *mux.Router
	upgrader  websocket.Upgrader

	clients    map[*client]bool
	clientsMux sync.RWMutex
	dirty      atomic.Bool
}

// NewServer wires the routes. exchanges are only read for health reporting.
func NewServer(cfg Config, builder *snapshot.Builder, books *orderbook.Registry, exchanges []exchange.Exchange) *Server {
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}
	if cfg.BroadcastInterval <= 0 {
		cfg.BroadcastInterval = 500 * time.Millisecond
	}
	if !types.ValidTickLevel(cfg.DefaultTick) {
		cfg.DefaultTick = types.Tick1
	}

	s := &Server{
		cfg:       cfg,
		log:       cfg.Log.WithComponent("server"),
		metrics:   cfg.Metrics,
		builder:   builder,
		books:     books,
		exchanges: exchanges,
		clients:   make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.dirty.Store(true)

	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/depth", s.handleDepth).Methods(http.MethodGet)
	api.HandleFunc("/book/{exchange}/{coin}", s.handleBook).Methods(http.MethodGet)
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", s.handleWebSocket)
	if cfg.Metrics != nil {
		r.Handle("/metrics", cfg.Metrics.Handler())
	}
	s.router = r
	return s
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves HTTP until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("port", s.cfg.Port).Info("HTTP server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.closeClients()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}

// MarkDirty flags that book data changed since the last push
func (s *Server) MarkDirty() {
	s.dirty.Store(true)
}

// Run pushes to connected clients every broadcast interval when data changed.
// Each received update marks the data dirty; with a nil channel every tick pushes.
func (s *Server) Run(ctx context.Context, updates <-chan exchange.Update) error {
	ticker := time.NewTicker(s.cfg.BroadcastInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			s.dirty.Store(true)
		case <-ticker.C:
			if s.ClientCount() == 0 {
				continue
			}
			if updates != nil && !s.dirty.Swap(false) {
				continue
			}
			s.broadcast()
		}
	}
}

// ClientCount returns the number of connected WebSocket clients
func (s *Server) ClientCount() int {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	return len(s.clients)
}

func (s *Server) handleDepth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.builder.Build(time.Now()))
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	book := s.books.Get(vars["exchange"], vars["coin"])
	if book == nil {
		writeError(w, http.StatusNotFound, "unknown book "+vars["exchange"]+"/"+vars["coin"])
		return
	}

	if raw := r.URL.Query().Get("tick"); raw != "" {
		tick, err := parseTick(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, s.aggregatedBook(book, tick))
		return
	}

	writeJSON(w, http.StatusOK, canonicalBook(book))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Exchanges: make(map[string]exchange.HealthStatus, len(s.exchanges)),
		Clients:   s.ClientCount(),
		Timestamp: time.Now().UnixMilli(),
	}
	streaming := 0
	for _, ex := range s.exchanges {
		health := ex.Health()
		resp.Exchanges[string(ex.GetName())] = health
		if health.State == exchange.Streaming {
			streaming++
		}
	}
	if streaming < len(s.exchanges) {
		resp.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade error")
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, clientBuffer),
	}
	log := s.log.WithFields(logger.Fields{"client_id": c.id, "remote_addr": r.RemoteAddr})

	s.clientsMux.Lock()
	s.clients[c] = true
	count := len(s.clients)
	s.clientsMux.Unlock()
	s.metrics.SetWSClients(count)
	log.Info("WebSocket client connected")

	if msg, err := s.snapshotMessage(); err == nil {
		c.send <- msg
	}

	go s.writePump(c)
	s.readPump(c)

	s.removeClient(c)
	log.Info("WebSocket client disconnected")
}

func (s *Server) readPump(c *client) {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.log.WithField("client_id", c.id).WithError(err).Debug("Error parsing client message")
			continue
		}
		s.handleClientMessage(c, msg)
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleClientMessage(c *client, msg ClientMessage) {
	switch msg.Type {
	case "subscribe_book":
		tick := types.TickLevel(msg.Tick)
		if msg.Tick == 0 {
			tick = s.cfg.DefaultTick
		}
		if !types.ValidTickLevel(tick) || s.books.Get(msg.Exchange, msg.Coin) == nil {
			s.sendTo(c, MessageTypeError, "invalid book subscription")
			return
		}
		c.mu.Lock()
		c.book = &bookSubscription{exchange: msg.Exchange, coin: msg.Coin, tick: tick}
		c.mu.Unlock()
		s.sendTo(c, MessageTypeBook, s.aggregatedBook(s.books.Get(msg.Exchange, msg.Coin), tick))
	case "unsubscribe_book":
		c.mu.Lock()
		c.book = nil
		c.mu.Unlock()
	default:
		s.log.WithField("type", msg.Type).Debug("Unknown client message type")
	}
}

func (s *Server) broadcast() {
	msg, err := s.snapshotMessage()
	if err != nil {
		s.log.WithError(err).Error("Failed to encode snapshot")
		return
	}

	s.clientsMux.RLock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMux.RUnlock()

	for _, c := range clients {
		s.enqueue(c, msg)
		if sub := c.subscription(); sub != nil {
			s.sendTo(c, MessageTypeBook, s.aggregatedBook(s.books.Get(sub.exchange, sub.coin), sub.tick))
		}
	}
}

func (s *Server) snapshotMessage() ([]byte, error) {
	return json.Marshal(ServerMessage{Type: MessageTypeSnapshot, Data: s.builder.Build(time.Now())})
}

func (s *Server) sendTo(c *client, typ MessageType, data interface{}) {
	msg, err := json.Marshal(ServerMessage{Type: typ, Data: data})
	if err != nil {
		s.log.WithError(err).Error("Failed to encode message")
		return
	}
	s.enqueue(c, msg)
}

// enqueue drops the message when the client is not keeping up
func (s *Server) enqueue(c *client, msg []byte) {
	s.clientsMux.RLock()
	defer s.clientsMux.RUnlock()
	if !s.clients[c] {
		return
	}
	select {
	case c.send <- msg:
	default:
		s.log.WithField("client_id", c.id).Debug("Client send buffer full, dropping message")
	}
}

func (s *Server) removeClient(c *client) {
	s.clientsMux.Lock()
	if s.clients[c] {
		delete(s.clients, c)
		close(c.send)
	}
	count := len(s.clients)
	s.clientsMux.Unlock()
	s.metrics.SetWSClients(count)
}

func (s *Server) closeClients() {
	s.clientsMux.Lock()
	for c := range s.clients {
		delete(s.clients, c)
		close(c.send)
	}
	s.clientsMux.Unlock()
	s.metrics.SetWSClients(0)
}

func (s *Server) aggregatedBook(book *orderbook.Book, tick types.TickLevel) aggregation.Book {
	if book == nil {
		return aggregation.New(tick).AggregateView(nil, 0)
	}
	agg := aggregation.New(tick).AggregateView(book.View(), s.cfg.MaxBookLevels)
	agg.Exchange = book.Exchange()
	agg.Symbol = book.Symbol()
	return agg
}

func canonicalBook(book *orderbook.Book) BookResponse {
	resp := BookResponse{
		Exchange: book.Exchange(),
		Symbol:   book.Symbol(),
		Bids:     []types.PriceLevel{},
		Asks:     []types.PriceLevel{},
	}
	if view := book.View(); view != nil {
		resp.Bids = view.Bids
		resp.Asks = view.Asks
		resp.Timestamp = view.Timestamp.UnixMilli()
	}
	return resp
}

func parseTick(raw string) (types.TickLevel, error) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New("tick must be a number")
	}
	tick := types.TickLevel(v)
	if !types.ValidTickLevel(tick) {
		return 0, errors.New("unsupported tick " + raw)
	}
	return tick, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
