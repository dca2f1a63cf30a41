package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// defaultLatencyBuckets covers 50µs to ~400ms; every latency metric here is
// reported in milliseconds.
var defaultLatencyBuckets = prometheus.ExponentialBuckets(0.05, 2, 14) //nolint:gochecknoglobals // read-only defaults

// Option configures a Manager.
type Option func(*Manager)

// WithNamespace overrides the metric namespace ("repsense").
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem overrides the metric subsystem ("pipeline").
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithLatencyBuckets sets the millisecond buckets shared by the frame, queue,
// worker, store and HTTP latency histograms.
func WithLatencyBuckets(buckets []float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.latencyBuckets = buckets
		}
	}
}

// WithConstLabels attaches fixed labels, such as an instance name, to every metric.
func WithConstLabels(labels prometheus.Labels) Option {
	return func(m *Manager) {
		if len(labels) > 0 {
			m.constLabels = labels
		}
	}
}

// WithRegistry registers the metrics on registry instead of the default registerer.
func WithRegistry(registry prometheus.Registerer) Option {
	return func(m *Manager) {
		if registry != nil {
			m.registry = registry
		}
	}
}
