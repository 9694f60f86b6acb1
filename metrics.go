package tsbundle

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "tsbundle"

type metrics struct {
	transpiled      prometheus.Counter
	failures        *prometheus.CounterVec
	helpersReplaced prometheus.Counter
	duration        prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		transpiled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "files_transpiled_total",
			Help:      "Files transpiled successfully.",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "transpile_failures_total",
			Help:      "Files that failed to transpile, by reason.",
		}, []string{"reason"}),
		helpersReplaced: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "helpers_replaced_total",
			Help:      "Inline helper definitions replaced by imports of the shared helper modules.",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "transpile_duration_seconds",
			Help:      "Time spent in the compiler per file.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		}),
	}

	if reg == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.transpiled, m.failures, m.helpersReplaced, m.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}

func (m *metrics) observe(start time.Time) {
	m.duration.Observe(time.Since(start).Seconds())
}

func (m *metrics) fail(reason string) {
	m.failures.WithLabelValues(reason).Inc()
}
