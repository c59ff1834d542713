package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinchat_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kinchat_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Realtime metrics
	SessionsOnline = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kinchat_sessions_online",
			Help: "Users with a live session",
		},
	)

	PresenceTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinchat_presence_transitions_total",
			Help: "Presence transitions broadcast to connected sessions",
		},
		[]string{"status"}, // "online" or "offline"
	)

	SessionsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinchat_sessions_superseded_total",
			Help: "Sessions replaced by a newer connection of the same user",
		},
	)

	TypingNotifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinchat_typing_notifications_total",
			Help: "Typing notifications forwarded to receivers",
		},
		[]string{"state"}, // "start" or "stop"
	)

	MessagesRelayed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinchat_messages_relayed_total",
			Help: "Direct message submissions by outcome",
		},
		[]string{"outcome"}, // "delivered", "stored_offline", "rejected", "failed"
	)

	ReadReceipts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kinchat_read_receipts_total",
			Help: "Read receipts by outcome",
		},
		[]string{"outcome"}, // "forwarded" or "dropped"
	)

	DroppedEvents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinchat_dropped_events_total",
			Help: "Events dropped because a session buffer was full",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kinchat_rate_limit_hits_total",
			Help: "Inbound frames rejected by the per-connection rate limiter",
		},
	)
)
