package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce      sync.Once
	requestsTotal     *prometheus.CounterVec
	latencySeconds    *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	connectionsActive prometheus.Gauge
	usersOnline       prometheus.Gauge
	eventsPushed      *prometheus.CounterVec
	eventsDropped     *prometheus.CounterVec
	messagesSent      prometheus.Counter
	searchCache       *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the chat API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "api_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "api_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		connectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connections_active",
			Help: "Number of live websocket connections.",
		})

		usersOnline = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_users_online",
			Help: "Number of users with at least one live connection.",
		})

		eventsPushed = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_pushed_total",
			Help: "Push events enqueued to live connections.",
		}, []string{"type"})

		eventsDropped = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_events_dropped_total",
			Help: "Push events dropped because a connection was slow or closed.",
		}, []string{"type"})

		messagesSent = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Messages persisted by the chat service.",
		})

		searchCache = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "user_search_cache_total",
			Help: "User search cache lookups by result.",
		}, []string{"result"})

		prometheus.MustRegister(
			requestsTotal, latencySeconds, errorsTotal,
			connectionsActive, usersOnline, eventsPushed, eventsDropped,
			messagesSent, searchCache,
		)
	})
}

// APIRequests exposes the counter for API requests.
func APIRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// APILatency exposes the latency histogram for API requests.
func APILatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// APIErrors exposes the counter for API error responses.
func APIErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// ChatConnectionsActive tracks live websocket connections.
func ChatConnectionsActive() prometheus.Gauge {
	RegisterMetrics()
	return connectionsActive
}

// ChatUsersOnline tracks users with at least one connection.
func ChatUsersOnline() prometheus.Gauge {
	RegisterMetrics()
	return usersOnline
}

// ChatEventsPushed counts enqueued push events by type.
func ChatEventsPushed() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPushed
}

// ChatEventsDropped counts push events that could not be enqueued.
func ChatEventsDropped() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsDropped
}

// ChatMessagesSent counts persisted messages.
func ChatMessagesSent() prometheus.Counter {
	RegisterMetrics()
	return messagesSent
}

// UserSearchCache counts search cache hits and misses.
func UserSearchCache() *prometheus.CounterVec {
	RegisterMetrics()
	return searchCache
}
