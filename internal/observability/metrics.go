package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "echoframe"

var (
	registerOnce sync.Once

	sessionsAccepted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "accepted_total",
			Help:      "Accepted connections by transport.",
		},
		[]string{"transport"},
	)
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "active",
			Help:      "Sessions not yet closed.",
		},
	)
	sessionsClosed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "closed_total",
			Help:      "Closed sessions by close reason.",
		},
		[]string{"reason"},
	)
	sessionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "duration_seconds",
			Help:      "Session lifetime in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
	)
	handshakeFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "handshake_failures_total",
			Help:      "TLS handshakes that failed before the session became active.",
		},
	)
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "total",
			Help:      "Frames decoded (in) and written (out).",
		},
		[]string{"direction"},
	)
	bytesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "bytes_total",
			Help:      "Transport bytes read (in) and written (out).",
		},
		[]string{"direction"},
	)
	invalidHeaders = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frame",
			Name:      "invalid_headers_total",
			Help:      "Headers rejected for an out-of-range total_length.",
		},
	)
	readsPaused = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "reads_paused_total",
			Help:      "Times a session stopped reading because its send queue crossed the watermark.",
		},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			sessionsAccepted,
			sessionsActive,
			sessionsClosed,
			sessionDuration,
			handshakeFailures,
			framesTotal,
			bytesTotal,
			invalidHeaders,
			readsPaused,
			httpRequests,
			httpDuration,
		)
	})
}

func RecordSessionOpened(transport string) {
	RegisterMetrics()
	sessionsAccepted.WithLabelValues(transport).Inc()
	sessionsActive.Inc()
}

func RecordSessionClosed(reason string, lifetime time.Duration) {
	RegisterMetrics()
	sessionsActive.Dec()
	sessionsClosed.WithLabelValues(reason).Inc()
	sessionDuration.Observe(lifetime.Seconds())
}

func RecordHandshakeFailure() {
	RegisterMetrics()
	handshakeFailures.Inc()
}

func RecordBytesIn(n int) {
	RegisterMetrics()
	bytesTotal.WithLabelValues("in").Add(float64(n))
}

func RecordFrameIn() {
	RegisterMetrics()
	framesTotal.WithLabelValues("in").Inc()
}

func RecordFrameOut(wireLen int) {
	RegisterMetrics()
	framesTotal.WithLabelValues("out").Inc()
	bytesTotal.WithLabelValues("out").Add(float64(wireLen))
}

func RecordInvalidHeader() {
	RegisterMetrics()
	invalidHeaders.Inc()
}

func RecordReadsPaused() {
	RegisterMetrics()
	readsPaused.Inc()
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}
