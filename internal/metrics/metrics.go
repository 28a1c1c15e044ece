package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeify_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodeify_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Gateway metrics
	ConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nodeify_connections_active",
			Help: "Authenticated websocket connections currently open",
		},
	)

	AuthFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeify_auth_failures_total",
			Help: "Rejected credentials",
		},
		[]string{"surface"}, // "gateway", "frame" or "bridge"
	)

	MessagesReplayed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeify_messages_replayed_total",
			Help: "Pending messages pushed on reconnect",
		},
	)

	// Router metrics
	MessagesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeify_messages_routed_total",
			Help: "Messages accepted by the router",
		},
		[]string{"path"}, // "live" or "pending"
	)

	PresenceRaces = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nodeify_presence_races_total",
			Help: "Live pushes that failed and fell back to pending",
		},
	)

	RejectedFrames = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeify_rejected_frames_total",
			Help: "Inbound frames rejected before persistence",
		},
		[]string{"reason"},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeify_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeify_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nodeify_store_errors_total",
			Help: "Failed message store operations",
		},
		[]string{"op"},
	)

	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nodeify_store_latency_seconds",
			Help:    "Message store operation latency",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1},
		},
		[]string{"op"},
	)
)
