package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "duet_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	GatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duet_gateway_connections",
			Help: "Currently open websocket connections",
		},
	)

	GatewayRejectedHandshakes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_gateway_rejected_handshakes_total",
			Help: "Handshakes rejected by credential verification",
		},
	)

	GatewayEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_gateway_events_total",
			Help: "Events received from clients",
		},
		[]string{"type"},
	)

	GatewayDroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_gateway_dropped_events_total",
			Help: "Outbound events dropped because a connection queue was full",
		},
	)

	OnlineUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "duet_online_users",
			Help: "Users with a live connection",
		},
	)

	// Pipeline metrics
	MessagesPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_messages_persisted_total",
			Help: "Messages committed to the store",
		},
	)

	MessagesRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "duet_messages_rejected_total",
			Help: "Messages rejected before or during persistence",
		},
		[]string{"reason"}, // "invalid" or "store"
	)

	NotifyFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "duet_notify_failures_total",
			Help: "Failed push hand-offs",
		},
	)
)
