// Package metrics instruments the API client and the stores with Prometheus
// collectors registered on a private registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "marathon_client"

// Outcome labels for RequestsTotal.
const (
	OutcomeOK          = "ok"
	OutcomeHTTPError   = "http_error"
	OutcomeNetworkErr  = "network_error"
	OutcomeSoftFailure = "soft_degraded"
)

// Metrics holds every collector the client reports.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	Degradations     *prometheus.CounterVec
	StoreOperations  *prometheus.CounterVec
	StaleResponses   *prometheus.CounterVec
	SessionAnonymous prometheus.Gauge
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Outbound API requests by method and outcome.",
		}, []string{"method", "outcome"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Outbound API request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		Degradations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "soft_degradations_total",
			Help:      "Failures resolved to an empty value instead of an error, by reason.",
		}, []string{"reason"}),
		StoreOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Store operations by store, operation and result.",
		}, []string{"store", "op", "result"}),
		StaleResponses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "stale_responses_total",
			Help:      "List responses discarded because a newer request was issued.",
		}, []string{"store", "kind"}),
		SessionAnonymous: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "anonymous",
			Help:      "1 while no user is signed in.",
		}),
	}

	m.Registry.MustRegister(
		m.RequestsTotal,
		m.RequestDuration,
		m.Degradations,
		m.StoreOperations,
		m.StaleResponses,
		m.SessionAnonymous,
	)
	return m
}

// ObserveRequest records one finished round trip. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(method, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, outcome).Inc()
	m.RequestDuration.WithLabelValues(method).Observe(elapsed.Seconds())
}

// ObserveDegradation counts a soft failure. Safe on a nil receiver.
func (m *Metrics) ObserveDegradation(reason string) {
	if m == nil {
		return
	}
	m.Degradations.WithLabelValues(reason).Inc()
}

// ObserveOperation counts a store operation. Safe on a nil receiver.
func (m *Metrics) ObserveOperation(store, op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreOperations.WithLabelValues(store, op, result).Inc()
}

// ObserveStale counts a discarded out-of-order response. Safe on a nil receiver.
func (m *Metrics) ObserveStale(store, kind string) {
	if m == nil {
		return
	}
	m.StaleResponses.WithLabelValues(store, kind).Inc()
}

// SetAnonymous tracks the session state. Safe on a nil receiver.
func (m *Metrics) SetAnonymous(anonymous bool) {
	if m == nil {
		return
	}
	if anonymous {
		m.SessionAnonymous.Set(1)
		return
	}
	m.SessionAnonymous.Set(0)
}

// Snapshot flattens every counter and gauge into name{labels} → value, for
// logging at exit.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.Registry.Gather()
	if err != nil {
		return nil, err
	}
	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "," + lp.GetName() + "=" + lp.GetValue()
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				out[key+",count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
