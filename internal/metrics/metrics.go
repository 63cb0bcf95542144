package metrics

import (
	"net/http"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus collectors for the relay. A nil *Metrics is valid and records nothing.
type Metrics struct {
	passes            *prometheus.CounterVec
	passFailures      *prometheus.CounterVec
	recordsForwarded  prometheus.Counter
	forwardFailures   prometheus.Counter
	targetsSkipped    *prometheus.CounterVec
	rpcCalls          *prometheus.CounterVec
	rpcRateLimitWaits prometheus.Counter
	cursor            *prometheus.GaugeVec
}

var (
	once    sync.Once
	metrics *Metrics
)

// Init initializes global metrics on the default registry (idempotent).
func Init() *Metrics {
	once.Do(func() {
		metrics = New(prometheus.DefaultRegisterer)
	})
	return metrics
}

// New builds a metrics set registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		passes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_relay_passes_total",
			Help: "Scan passes by outcome",
		}, []string{"target", "result"}),
		passFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_relay_pass_failures_total",
			Help: "Failed scan passes by error class",
		}, []string{"class"}),
		recordsForwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_relay_records_forwarded_total",
			Help: "Decoded records accepted by a sink",
		}),
		forwardFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_relay_forward_failures_total",
			Help: "Records a sink failed to accept",
		}),
		targetsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_relay_targets_skipped_total",
			Help: "Targets selected for a cycle but not scanned",
		}, []string{"reason"}),
		rpcCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "event_relay_rpc_calls_total",
			Help: "Chain RPC calls by method and status",
		}, []string{"method", "status"}),
		rpcRateLimitWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "event_relay_rpc_rate_limit_waits_total",
			Help: "RPC calls delayed by the client-side rate limiter",
		}),
		cursor: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "event_relay_cursor_block",
			Help: "Last fully scanned block per target",
		}, []string{"target"}),
	}
	reg.MustRegister(
		m.passes,
		m.passFailures,
		m.recordsForwarded,
		m.forwardFailures,
		m.targetsSkipped,
		m.rpcCalls,
		m.rpcRateLimitWaits,
		m.cursor,
	)
	return m
}

// PassSucceeded counts a completed pass for target.
func (m *Metrics) PassSucceeded(target string) {
	if m != nil {
		m.passes.WithLabelValues(target, "ok").Inc()
	}
}

// PassFailed counts a failed pass for target under an error class.
func (m *Metrics) PassFailed(target, class string) {
	if m != nil {
		m.passes.WithLabelValues(target, "failed").Inc()
		m.passFailures.WithLabelValues(class).Inc()
	}
}

// RecordForwarded increments the forwarded records counter.
func (m *Metrics) RecordForwarded() {
	if m != nil {
		m.recordsForwarded.Inc()
	}
}

// ForwardFailed increments the forwarding failures counter.
func (m *Metrics) ForwardFailed() {
	if m != nil {
		m.forwardFailures.Inc()
	}
}

// TargetSkipped counts a target left out of a cycle.
func (m *Metrics) TargetSkipped(reason string) {
	if m != nil {
		m.targetsSkipped.WithLabelValues(reason).Inc()
	}
}

// RPCCall records a chain RPC call with its status classification.
func (m *Metrics) RPCCall(method string, err error) {
	if m != nil {
		m.rpcCalls.WithLabelValues(method, ClassifyRPCError(err)).Inc()
	}
}

// RateLimitWait counts a call delayed by the RPC limiter.
func (m *Metrics) RateLimitWait() {
	if m != nil {
		m.rpcRateLimitWaits.Inc()
	}
}

// Cursor publishes the cursor position of target.
func (m *Metrics) Cursor(target string, block uint64) {
	if m != nil {
		m.cursor.WithLabelValues(target).Set(float64(block))
	}
}

// ClassifyRPCError buckets an RPC error for the status label.
func ClassifyRPCError(err error) string {
	if err == nil {
		return "ok"
	}
	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "deadline exceeded"):
		return "timeout"
	case strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") || strings.Contains(lower, "too many requests"):
		return "rate_limited"
	case strings.Contains(lower, "500") || strings.Contains(lower, "502") || strings.Contains(lower, "503"):
		return "server_error"
	case strings.Contains(lower, "connection refused") || strings.Contains(lower, "connection reset") ||
		strings.Contains(lower, "no such host") || strings.Contains(lower, "eof"):
		return "network_error"
	default:
		return "client_error"
	}
}

// Handler returns an HTTP handler for /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
