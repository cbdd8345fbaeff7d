package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector records exchange metrics in Prometheus. It implements
// interceptors.MetricsCollector.
type Collector struct {
	messages *prometheus.CounterVec
	duration *prometheus.HistogramVec
	faults   *prometheus.CounterVec
}

// NewCollector creates the collector. Metrics are named
// <namespace>_exchange_*; an empty namespace defaults to relay.
func NewCollector(namespace string) *Collector {
	if namespace == "" {
		namespace = "relay"
	}
	return &Collector{
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "messages_total",
			Help:      "Total number of completed exchanges",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "duration_seconds",
			Help:      "Exchange duration from first interceptor to completion",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		faults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "exchange",
			Name:      "faults_total",
			Help:      "Total number of exchanges that ended with a fault",
		}, []string{"operation", "code"}),
	}
}

// Register adds the metrics to reg. When an equal collector is already
// registered the existing metrics are adopted.
func (c *Collector) Register(reg prometheus.Registerer) error {
	if err := register(reg, &c.messages); err != nil {
		return err
	}
	if err := register(reg, &c.duration); err != nil {
		return err
	}
	return register(reg, &c.faults)
}

func register[T prometheus.Collector](reg prometheus.Registerer, m *T) error {
	err := reg.Register(*m)
	if err == nil {
		return nil
	}
	var already prometheus.AlreadyRegisteredError
	if !errors.As(err, &already) {
		return err
	}
	existing, ok := already.ExistingCollector.(T)
	if !ok {
		return err
	}
	*m = existing
	return nil
}

// IncrementMessageCount implements interceptors.MetricsCollector
func (c *Collector) IncrementMessageCount(operation string) {
	c.messages.WithLabelValues(operation).Inc()
}

// RecordProcessingTime implements interceptors.MetricsCollector
func (c *Collector) RecordProcessingTime(operation string, duration time.Duration) {
	c.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncrementErrorCount implements interceptors.MetricsCollector
func (c *Collector) IncrementErrorCount(operation, code string) {
	c.faults.WithLabelValues(operation, code).Inc()
}
