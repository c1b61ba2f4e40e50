package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HttpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	HttpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderation_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	ActiveRequests = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moderation_active_requests",
			Help: "Number of requests being served",
		},
	)

	ModerationActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Moderator actions applied, by action and target kind",
		},
		[]string{"action", "kind"},
	)

	PendingNodes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moderation_pending_nodes",
			Help: "Pending nodes seen on the last moderation list fetch",
		},
	)

	EventSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "moderation_event_subscribers",
			Help: "Open websocket event streams",
		},
	)
)

// Register регистрирует все метрики в реестре
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HttpRequestsTotal,
		HttpRequestDuration,
		ActiveRequests,
		ModerationActions,
		PendingNodes,
		EventSubscribers,
	)
}
