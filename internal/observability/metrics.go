package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RPC outcome labels.
const (
	OutcomeOK        = "ok"
	OutcomeRemote    = "remote"
	OutcomeProtocol  = "protocol"
	OutcomeTransport = "transport"
	OutcomeError     = "error"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fibctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fibctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fibctl",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Agent RPC calls by method and outcome.",
		},
		[]string{"method", "outcome"},
	)
	rpcDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fibctl",
			Subsystem: "rpc",
			Name:      "duration_seconds",
			Help:      "Agent RPC duration in seconds, including dial.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)
	agentDials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fibctl",
			Subsystem: "agent",
			Name:      "dials_total",
			Help:      "Agent dial attempts by result.",
		},
		[]string{"result"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, rpcCalls, rpcDuration, agentDials)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordRPC(method, outcome string, duration time.Duration) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(method, outcome).Inc()
	rpcDuration.WithLabelValues(method).Observe(duration.Seconds())
}

func RecordDial(success bool) {
	RegisterMetrics()
	result := "ok"
	if !success {
		result = "error"
	}
	agentDials.WithLabelValues(result).Inc()
}
