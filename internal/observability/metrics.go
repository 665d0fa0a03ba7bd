package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the chat daemon.
type Metrics struct {
	registry       *prometheus.Registry
	ChatRequests   *prometheus.CounterVec
	ChatDuration   *prometheus.HistogramVec
	ModelUsage     *prometheus.CounterVec
	ModelFailures  *prometheus.CounterVec
	ModelFallbacks *prometheus.CounterVec
	TokensUsed     *prometheus.CounterVec
	ActiveStreams  *prometheus.GaugeVec
	TransportErrs  *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with chat collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	reqs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelzoo_chat_requests_total",
		Help: "Total chat requests by outcome",
	}, []string{"outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "modelzoo_chat_duration_seconds",
		Help:    "Chat completion duration in seconds by model",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	usage := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelzoo_model_usage_total",
		Help: "Model selections by model and selection mode",
	}, []string{"model", "mode"})

	failures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelzoo_model_failures_total",
		Help: "Upstream completion failures by model",
	}, []string{"model"})

	fallbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelzoo_model_fallbacks_total",
		Help: "High-tier to low-tier fallback retries by original model",
	}, []string{"model"})

	tokens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelzoo_tokens_used_total",
		Help: "Tokens reported by upstream responses by model",
	}, []string{"model"})

	streams := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "modelzoo_active_streams",
		Help: "Active streaming chat sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "modelzoo_transport_errors_total",
		Help: "Transport-level errors by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(reqs, durs, usage, failures, fallbacks, tokens, streams, trErrors)

	return &Metrics{
		registry:       reg,
		ChatRequests:   reqs,
		ChatDuration:   durs,
		ModelUsage:     usage,
		ModelFailures:  failures,
		ModelFallbacks: fallbacks,
		TokensUsed:     tokens,
		ActiveStreams:  streams,
		TransportErrs:  trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordChat records one chat completion outcome with duration and usage.
func (m *Metrics) RecordChat(outcome, model string, duration time.Duration, tokens int) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	if model == "" {
		model = "unknown"
	}
	m.ChatRequests.WithLabelValues(outcome).Inc()
	m.ChatDuration.WithLabelValues(model).Observe(duration.Seconds())
	m.TokensUsed.WithLabelValues(model).Add(float64(tokens))
}

// RecordModelUsage increments usage for a model and selection mode (auto or user).
func (m *Metrics) RecordModelUsage(model string, auto bool) {
	if m == nil {
		return
	}
	mode := "user"
	if auto {
		mode = "auto"
	}
	m.ModelUsage.WithLabelValues(model, mode).Inc()
}

// RecordModelFailure increments the failure counter for a model.
func (m *Metrics) RecordModelFailure(model string) {
	if m == nil {
		return
	}
	m.ModelFailures.WithLabelValues(model).Inc()
}

// RecordFallback counts a high-tier failure retried on the low tier.
func (m *Metrics) RecordFallback(model string) {
	if m == nil {
		return
	}
	m.ModelFallbacks.WithLabelValues(model).Inc()
}

// IncActiveStreams increments the streaming session gauge.
func (m *Metrics) IncActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Inc()
}

// DecActiveStreams decrements the streaming session gauge.
func (m *Metrics) DecActiveStreams(transport string) {
	if m == nil {
		return
	}
	m.ActiveStreams.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
