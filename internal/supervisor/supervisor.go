// Package supervisor keeps an exchange connection alive. It reconnects after
// a fixed delay whenever the connection fails or drops, for as long as the
// context lives.
package supervisor

import (
	"context"
	"time"

	"perpdepth/internal/exchange"
	"perpdepth/internal/logger"
	"perpdepth/internal/metrics"
)

const (
	defaultReconnectDelay = 5 * time.Second
	defaultEventBuffer    = 64
)

// EventKind describes a connection lifecycle transition
type EventKind string

const (
	EventConnected     EventKind = "connected"
	EventConnectFailed EventKind = "connect_failed"
	EventDisconnected  EventKind = "disconnected"
)

// Event is emitted on every lifecycle transition of the supervised exchange
type Event struct {
	Exchange exchange.ExchangeName
	Kind     EventKind
	Err      error
	Attempt  int
	Time     time.Time
}

// Config holds supervisor settings
type Config struct {
	ReconnectDelay time.Duration
	EventBuffer    int
	Log            *logger.Log
	Metrics        *metrics.Metrics
}

// Supervisor owns the reconnect policy for one exchange
type Supervisor struct {
	ex      exchange.Exchange
	delay   time.Duration
	log     *logger.Entry
	metrics *metrics.Metrics
	events  chan Event
}

// New creates a supervisor for ex
func New(ex exchange.Exchange, cfg Config) *Supervisor {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}
	if cfg.Log == nil {
		cfg.Log = logger.Discard()
	}

	return &Supervisor{
		ex:      ex,
		delay:   cfg.ReconnectDelay,
		log:     cfg.Log.WithComponent("supervisor").WithField("exchange", string(ex.GetName())),
		metrics: cfg.Metrics,
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// Exchange returns the supervised exchange
func (s *Supervisor) Exchange() exchange.Exchange {
	return s.ex
}

// Events returns lifecycle events. Events are dropped when nobody reads them.
func (s *Supervisor) Events() <-chan Event {
	return s.events
}

// Run connects and keeps reconnecting until ctx is cancelled. On return the
// exchange has been disconnected.
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() {
		if err := s.ex.Disconnect(); err != nil {
			s.log.WithError(err).Warn("disconnect failed")
		}
		s.log.Info("supervisor stopped")
	}()

	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		attempt++

		if err := s.ex.Connect(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.log.WithError(err).WithField("attempt", attempt).Warn("connect failed, retrying")
			s.emit(EventConnectFailed, err, attempt)
			if waitForReconnect(ctx, s.delay) {
				return nil
			}
			continue
		}

		s.log.WithField("attempt", attempt).Info("connected")
		s.emit(EventConnected, nil, attempt)
		attempt = 0

		select {
		case <-ctx.Done():
			return nil
		case err := <-s.ex.Done():
			s.log.WithError(err).Warn("connection lost, reconnecting")
			s.emit(EventDisconnected, err, attempt)
			s.metrics.IncReconnect(string(s.ex.GetName()))
		}

		if waitForReconnect(ctx, s.delay) {
			return nil
		}
	}
}

func (s *Supervisor) emit(kind EventKind, err error, attempt int) {
	event := Event{
		Exchange: s.ex.GetName(),
		Kind:     kind,
		Err:      err,
		Attempt:  attempt,
		Time:     time.Now(),
	}
	select {
	case s.events <- event:
	default:
	}
}

// waitForReconnect sleeps for delay and reports whether ctx ended first
func waitForReconnect(ctx context.Context, delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return true
	case <-timer.C:
		return false
	}
}
