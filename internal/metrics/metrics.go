// Package metrics registers the perpdepth Prometheus collectors:
//
//	perpdepth_messages_total{exchange}
//	perpdepth_messages_dropped_total{exchange,reason}
//	perpdepth_book_updates_total{exchange,symbol,kind}
//	perpdepth_reconnects_total{exchange}
//	perpdepth_connection_state{exchange}
//	perpdepth_book_levels{exchange,symbol,side}
//	perpdepth_history_ticks_total
//	perpdepth_ws_clients
//
// plus go_* and process_* collectors. All methods are safe on a nil *Metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "perpdepth"

// Metrics owns a private registry so tests can build as many as they like
type Metrics struct {
	registry *prometheus.Registry

	messages     *prometheus.CounterVec
	dropped      *prometheus.CounterVec
	bookUpdates  *prometheus.CounterVec
	reconnects   *prometheus.CounterVec
	connState    *prometheus.GaugeVec
	bookLevels   *prometheus.GaugeVec
	historyTicks prometheus.Counter
	wsClients    prometheus.Gauge
}

// New creates and registers all collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Raw messages received from exchange transports",
		}, []string{"exchange"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dropped_total",
			Help:      "Messages dropped by adapters, by reason",
		}, []string{"exchange", "reason"}),
		bookUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "book_updates_total",
			Help:      "Replace and delta operations applied to books",
		}, []string{"exchange", "symbol", "kind"}),
		reconnects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconnects_total",
			Help:      "Reconnect attempts scheduled by supervisors",
		}, []string{"exchange"}),
		connState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connection_state",
			Help:      "0 disconnected, 1 connecting, 2 streaming",
		}, []string{"exchange"}),
		bookLevels: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "book_levels",
			Help:      "Number of price levels per book side",
		}, []string{"exchange", "symbol", "side"}),
		historyTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_ticks_total",
			Help:      "History samples recorded",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected push clients",
		}),
	}

	m.registry.MustRegister(
		m.messages,
		m.dropped,
		m.bookUpdates,
		m.reconnects,
		m.connState,
		m.bookLevels,
		m.historyTicks,
		m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncMessage(exchange string) {
	if m != nil {
		m.messages.WithLabelValues(exchange).Inc()
	}
}

func (m *Metrics) IncDropped(exchange, reason string) {
	if m != nil {
		m.dropped.WithLabelValues(exchange, reason).Inc()
	}
}

func (m *Metrics) IncBookUpdate(exchange, symbol, kind string) {
	if m != nil {
		m.bookUpdates.WithLabelValues(exchange, symbol, kind).Inc()
	}
}

func (m *Metrics) IncReconnect(exchange string) {
	if m != nil {
		m.reconnects.WithLabelValues(exchange).Inc()
	}
}

func (m *Metrics) SetConnectionState(exchange string, state int) {
	if m != nil {
		m.connState.WithLabelValues(exchange).Set(float64(state))
	}
}

func (m *Metrics) SetBookLevels(exchange, symbol string, bids, asks int) {
	if m != nil {
		m.bookLevels.WithLabelValues(exchange, symbol, "bid").Set(float64(bids))
		m.bookLevels.WithLabelValues(exchange, symbol, "ask").Set(float64(asks))
	}
}

func (m *Metrics) IncHistoryTick() {
	if m != nil {
		m.historyTicks.Inc()
	}
}

func (m *Metrics) SetWSClients(n int) {
	if m != nil {
		m.wsClients.Set(float64(n))
	}
}
