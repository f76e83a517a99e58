package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes counters/histograms for the booking pipeline. All
// methods are safe on a nil receiver so instrumentation can be optional.
type Metrics struct {
	inboundTotal     *prometheus.CounterVec
	llmLatency       *prometheus.HistogramVec
	llmFailures      *prometheus.CounterVec
	extractionsTotal *prometheus.CounterVec
	bookingsTotal    *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atendeai",
			Subsystem: "webhook",
			Name:      "inbound_total",
			Help:      "Total inbound channel webhooks",
		}, []string{"event_type", "status"}),
		llmLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "atendeai",
			Subsystem: "llm",
			Name:      "request_latency_seconds",
			Help:      "Latency of model calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		llmFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atendeai",
			Subsystem: "llm",
			Name:      "failures_total",
			Help:      "Total failed model calls",
		}, []string{"operation"}),
		extractionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atendeai",
			Subsystem: "booking",
			Name:      "extractions_total",
			Help:      "Booking extraction attempts by outcome",
		}, []string{"outcome"}),
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "atendeai",
			Subsystem: "booking",
			Name:      "commits_total",
			Help:      "Booking commit attempts by outcome",
		}, []string{"outcome"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.llmLatency, m.llmFailures, m.extractionsTotal, m.bookingsTotal)
	return m
}

func (m *Metrics) ObserveInbound(eventType, status string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(eventType, status).Inc()
}

func (m *Metrics) ObserveLLMLatency(operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.llmLatency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *Metrics) IncLLMFailure(operation string) {
	if m == nil {
		return
	}
	m.llmFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncExtraction(outcome string) {
	if m == nil {
		return
	}
	m.extractionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) IncBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}
