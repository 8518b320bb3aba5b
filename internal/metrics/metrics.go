// Package metrics exposes Prometheus instrumentation for the exchange.
package metrics

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/condex/internal/domain"
)

const namespace = "condex"

// Outcome labels.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Metrics holds the exchange collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	executed   prometheus.Counter
	open       prometheus.Gauge
	published  *prometheus.CounterVec
}

// New creates and registers every collector.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Exchange operations by name and outcome.",
		}, []string{"op", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of exchange operations.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 4, 10),
		}, []string{"op"}),
		executed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "proposals_executed_total",
			Help:      "Proposals settled by measurement.",
		}),
		open: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "open_proposals",
			Help:      "Proposals currently open.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Exchange events handed to each sink, by outcome.",
		}, []string{"sink", "outcome"}),
	}
	m.registry.MustRegister(
		m.operations, m.duration, m.executed, m.open, m.published,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveOp records one operation. Errors carrying a domain kind count as
// rejections; anything else is an error.
func (m *Metrics) ObserveOp(op string, start time.Time, err error) {
	m.duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	m.operations.WithLabelValues(op, Outcome(err)).Inc()
}

// ProposalExecuted increments the executed counter.
func (m *Metrics) ProposalExecuted() { m.executed.Inc() }

// SetOpenProposals sets the open proposal gauge.
func (m *Metrics) SetOpenProposals(n int) { m.open.Set(float64(n)) }

// ObserveSink records a publish attempt to sink.
func (m *Metrics) ObserveSink(sink string, err error) {
	outcome := OutcomeOK
	if err != nil {
		outcome = OutcomeError
	}
	m.published.WithLabelValues(sink, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Outcome maps an operation error to its outcome label.
func Outcome(err error) string {
	if err == nil {
		return OutcomeOK
	}
	var de *domain.Error
	if errors.As(err, &de) && de.Kind != domain.KindInternal {
		return OutcomeRejected
	}
	return OutcomeError
}
