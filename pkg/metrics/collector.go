package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "loadgen"

// Collector mirrors recorded results into Prometheus metrics.
type Collector struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
}

func NewCollector() *Collector {
	return &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Operations issued against the store by kind and outcome.",
		}, []string{"kind", "outcome"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Latency of successful operations by kind.",
			Buckets:   prometheus.ExponentialBuckets(0.00005, 2, 16),
		}, []string{"kind"}),
	}
}

var _ prometheus.Collector = (*Collector)(nil)

func (c *Collector) Register(reg prometheus.Registerer) error {
	return reg.Register(c)
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.operations.Describe(ch)
	c.latency.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.operations.Collect(ch)
	c.latency.Collect(ch)
}

func (c *Collector) Observe(r Result) {
	kind := r.Kind.String()
	if r.Success() {
		c.operations.WithLabelValues(kind, "success").Inc()
		c.latency.WithLabelValues(kind).Observe(r.Duration.Seconds())
		return
	}
	c.operations.WithLabelValues(kind, r.Reason()).Inc()
}
