package metrics

import (
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Invocation outcomes.
const (
	OutcomeWritten             = "written"
	OutcomeUpstreamUnavailable = "upstream_unavailable"
	OutcomeStoreFailed         = "store_failed"
)

// Metrics holds the counters for one process. Lambda has no scrape endpoint, so the
// registry is private and its values are logged after each invocation.
type Metrics struct {
	Registry         *prometheus.Registry
	Invocations      *prometheus.CounterVec
	MessagesSelected *prometheus.CounterVec
	UpstreamLatency  prometheus.Histogram
}

func New() *Metrics {
	invocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subway_monitor_invocations_total",
		Help: "Invocations by outcome.",
	}, []string{"outcome"})
	selected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "subway_monitor_messages_selected_total",
		Help: "Disruption messages appended to a monitored line.",
	}, []string{"line"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "subway_monitor_upstream_latency_seconds",
		Help:    "Latency of the Navitia traffic reports request.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 8),
	})

	reg := prometheus.NewRegistry()
	reg.MustRegister(invocations, selected, latency)

	return &Metrics{
		Registry:         reg,
		Invocations:      invocations,
		MessagesSelected: selected,
		UpstreamLatency:  latency,
	}
}

func (m *Metrics) ObserveInvocation(outcome string) {
	m.Invocations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveMessage(line string) {
	m.MessagesSelected.WithLabelValues(line).Inc()
}

func (m *Metrics) ObserveUpstream(d time.Duration) {
	m.UpstreamLatency.Observe(d.Seconds())
}

// Attrs flattens the counters of the registry into log attributes,
// keyed by metric name and label values.
func (m *Metrics) Attrs() []slog.Attr {
	families, err := m.Registry.Gather()
	if err != nil {
		return []slog.Attr{slog.String("metrics_error", err.Error())}
	}

	var attrs []slog.Attr
	for _, family := range families {
		if family.GetType() != dto.MetricType_COUNTER {
			continue
		}
		for _, metric := range family.GetMetric() {
			attrs = append(attrs, slog.Float64(metricKey(family.GetName(), metric), metric.GetCounter().GetValue()))
		}
	}
	sort.Slice(attrs, func(i, j int) bool { return attrs[i].Key < attrs[j].Key })
	return attrs
}

func metricKey(name string, metric *dto.Metric) string {
	labels := metric.GetLabel()
	if len(labels) == 0 {
		return name
	}
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, label.GetValue())
	}
	return name + "." + strings.Join(parts, ".")
}
