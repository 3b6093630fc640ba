package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gecko",
			Subsystem: "session",
			Name:      "operations_total",
			Help:      "Protocol operations by opcode and outcome.",
		},
		[]string{"op", "result"},
	)
	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gecko",
			Subsystem: "session",
			Name:      "operation_duration_seconds",
			Help:      "Protocol operation duration including lock wait.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"op"},
	)
	disconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gecko",
			Subsystem: "session",
			Name:      "disconnects_total",
			Help:      "Session disconnects by reason.",
		},
		[]string{"reason"},
	)
	transferBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gecko",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Bytes moved by bulk transfers.",
		},
		[]string{"direction"},
	)
	transferChunks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gecko",
			Subsystem: "transfer",
			Name:      "chunks_total",
			Help:      "Bulk transfer chunks by direction and block kind.",
		},
		[]string{"direction", "block"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "gecko",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Bridge HTTP requests.",
		},
		[]string{"session", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "gecko",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Bridge HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"session", "method", "path", "status"},
	)
	transferCancels = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "gecko",
			Subsystem: "transfer",
			Name:      "cancelled_total",
			Help:      "Dumps stopped early by caller cancellation.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(operations, operationDuration, disconnects, transferBytes, transferChunks, transferCancels, httpRequests, httpDuration)
	})
}

func RecordOperation(op string, err error, duration time.Duration) {
	RegisterMetrics()
	operations.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
	operationDuration.WithLabelValues(op).Observe(duration.Seconds())
}

func RecordDisconnect(reason string) {
	RegisterMetrics()
	disconnects.WithLabelValues(reason).Inc()
}

// RecordChunk counts one bulk transfer chunk; block is "zero" or "literal".
func RecordChunk(direction, block string, n int) {
	RegisterMetrics()
	transferChunks.WithLabelValues(direction, block).Inc()
	transferBytes.WithLabelValues(direction).Add(float64(n))
}

func RecordCancel() {
	RegisterMetrics()
	transferCancels.Inc()
}

func RecordHTTPRequest(session, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(session, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(session, method, path, statusLabel).Observe(duration.Seconds())
}
