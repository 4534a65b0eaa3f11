package http

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus metrics for the transport.
// Pass to components that need to record metrics.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	SSEEventsTotal  prometheus.Counter
	KeepalivesTotal prometheus.Counter
	HandlerTimeouts prometheus.Counter
}

// NewMetrics creates and registers all metrics with the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signalgate",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests processed",
			},
			[]string{"method", "status"}, // method=GET/POST/DELETE, status=ok/error
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "signalgate",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets, // 5ms to 10s
			},
			[]string{"method"},
		),
		SSEEventsTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "signalgate",
				Name:      "sse_events_total",
				Help:      "Total SSE message frames written to streams",
			},
		),
		KeepalivesTotal: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "signalgate",
				Name:      "sse_keepalives_total",
				Help:      "Total SSE keepalive comments written to idle streams",
			},
		),
		HandlerTimeouts: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "signalgate",
				Name:      "handler_timeouts_total",
				Help:      "Total message handler invocations that exceeded the deadline",
			},
		),
	}
}

// RegisterActiveSessions exposes a live session count gauge backed by the
// given function (typically the registry's Len).
func RegisterActiveSessions(reg prometheus.Registerer, count func() int) {
	promauto.With(reg).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "signalgate",
			Name:      "active_sessions",
			Help:      "Number of live sessions in the registry",
		},
		func() float64 { return float64(count()) },
	)
}
