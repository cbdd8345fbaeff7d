// Package metrics exports exchange metrics to Prometheus.
//
//	collector := metrics.NewCollector("relay")
//	if err := collector.Register(prometheus.DefaultRegisterer); err != nil {
//		return err
//	}
//	b, err := bus.New(bus.WithMetrics(collector))
package metrics
