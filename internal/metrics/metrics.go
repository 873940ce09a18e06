package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

// Metrics holds all application metrics.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Order book metrics
	OrdersPlaced    *prometheus.CounterVec
	OrdersCancelled *prometheus.CounterVec
	OrdersFilled    *prometheus.CounterVec
	OrdersExpired   *prometheus.CounterVec
	OrderBookSize   *prometheus.GaugeVec

	// Trade metrics
	TradesTotal prometheus.Counter
	TradeVolume *prometheus.CounterVec
	TradeValue  *prometheus.CounterVec

	// Replica sync metrics
	UpdatesReceived   *prometheus.CounterVec
	UpdatesBroadcast  *prometheus.CounterVec
	MergesTotal       prometheus.Counter
	MergeOrdersMerged prometheus.Counter
	MergeConflicts    prometheus.Counter
	ReplicaVersion    prometheus.Gauge
	ReplicaOrderCount prometheus.Gauge

	// Peer gossip metrics
	PeerConnections prometheus.Gauge
	PeerMessagesIn  *prometheus.CounterVec
	PeerMessagesOut *prometheus.CounterVec

	// RabbitMQ metrics
	MQMessagesPublished *prometheus.CounterVec

	// Cache metrics
	SnapshotSaves  prometheus.Counter
	SnapshotLoads  prometheus.Counter
	SnapshotErrors prometheus.Counter
}

// New creates and registers all application metrics.
func New() *Metrics {
	return &Metrics{
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		OrdersPlaced: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_placed_total",
				Help: "Total number of orders placed locally",
			},
			[]string{"pair"},
		),
		OrdersCancelled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_cancelled_total",
				Help: "Total number of orders cancelled",
			},
			[]string{"pair"},
		),
		OrdersFilled: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_filled_total",
				Help: "Total number of orders fully filled",
			},
			[]string{"pair"},
		),
		OrdersExpired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orders_expired_total",
				Help: "Total number of orders expired by sweep",
			},
			[]string{"pair"},
		),
		OrderBookSize: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "orderbook_size",
				Help: "Number of resting orders in the order book",
			},
			[]string{"pair"},
		),

		TradesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "trades_total",
				Help: "Total number of trades executed",
			},
		),
		TradeVolume: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_volume_total",
				Help: "Total traded base amount by pair",
			},
			[]string{"pair"},
		),
		TradeValue: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "trade_value_total",
				Help: "Total traded quote value by pair",
			},
			[]string{"pair"},
		),

		UpdatesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replica_updates_received_total",
				Help: "Total replica updates received from peers",
			},
			[]string{"type"},
		),
		UpdatesBroadcast: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "replica_updates_broadcast_total",
				Help: "Total replica updates broadcast to peers",
			},
			[]string{"type"},
		),
		MergesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "replica_merges_total",
				Help: "Total full snapshot merges performed",
			},
		),
		MergeOrdersMerged: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "replica_merge_orders_total",
				Help: "Total orders changed by snapshot merges",
			},
		),
		MergeConflicts: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "replica_merge_conflicts_total",
				Help: "Total divergent terminal-state conflicts seen during merge",
			},
		),
		ReplicaVersion: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "replica_version",
				Help: "Local replica version counter",
			},
		),
		ReplicaOrderCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "replica_order_count",
				Help: "Number of orders in the local replica",
			},
		),

		PeerConnections: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "peer_connections_active",
				Help: "Current number of connected peers",
			},
		),
		PeerMessagesIn: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peer_messages_received_total",
				Help: "Total gossip messages received",
			},
			[]string{"type"},
		),
		PeerMessagesOut: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "peer_messages_sent_total",
				Help: "Total gossip messages sent",
			},
			[]string{"type"},
		),

		MQMessagesPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mq_messages_published_total",
				Help: "Total number of messages published to RabbitMQ",
			},
			[]string{"routing_key"},
		),

		SnapshotSaves: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshot_saves_total",
				Help: "Total replica snapshots persisted to cache",
			},
		),
		SnapshotLoads: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshot_loads_total",
				Help: "Total replica snapshots loaded from cache",
			},
		),
		SnapshotErrors: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "snapshot_errors_total",
				Help: "Total snapshot persistence failures",
			},
		),
	}
}

// RecordOrderPlaced records a new order placement.
func (m *Metrics) RecordOrderPlaced(pair string) {
	m.OrdersPlaced.WithLabelValues(pair).Inc()
}

// RecordOrderCancelled records an order cancellation.
func (m *Metrics) RecordOrderCancelled(pair string) {
	m.OrdersCancelled.WithLabelValues(pair).Inc()
}

// RecordOrderFilled records a fully-filled order.
func (m *Metrics) RecordOrderFilled(pair string) {
	m.OrdersFilled.WithLabelValues(pair).Inc()
}

// RecordOrderExpired records an order expired by sweep.
func (m *Metrics) RecordOrderExpired(pair string) {
	m.OrdersExpired.WithLabelValues(pair).Inc()
}

// RecordTrade records a trade execution.
func (m *Metrics) RecordTrade(pair string, volume, value decimal.Decimal) {
	m.TradesTotal.Inc()
	m.TradeVolume.WithLabelValues(pair).Add(volume.InexactFloat64())
	m.TradeValue.WithLabelValues(pair).Add(value.InexactFloat64())
}

// RecordUpdateReceived records a gossip update folded into the replica.
func (m *Metrics) RecordUpdateReceived(updateType string) {
	m.UpdatesReceived.WithLabelValues(updateType).Inc()
}

// RecordUpdateBroadcast records a gossip update sent to peers.
func (m *Metrics) RecordUpdateBroadcast(updateType string) {
	m.UpdatesBroadcast.WithLabelValues(updateType).Inc()
}

// RecordMerge records a full snapshot merge. Conflicts are counted
// separately via RecordMergeConflict as they are surfaced.
func (m *Metrics) RecordMerge(changed int) {
	m.MergesTotal.Inc()
	m.MergeOrdersMerged.Add(float64(changed))
}

// RecordMergeConflict records a single divergent terminal-state conflict.
func (m *Metrics) RecordMergeConflict() {
	m.MergeConflicts.Inc()
}

// RecordHTTPRequest records an HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration float64) {
	m.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}
