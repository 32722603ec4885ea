// Package metrics instruments backend operations with Prometheus collectors.
package metrics

import (
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

type metricsOps struct {
	once sync.Once

	operations *prometheus.CounterVec
	durations  *prometheus.HistogramVec
}

var opMetrics metricsOps

func (m *metricsOps) init() {
	m.once.Do(func() {
		m.operations = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "descriptorstore_operations_total",
			Help: "Backend operations by outcome",
		}, []string{"backend", "operation", "outcome"})

		buckets := []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5}
		m.durations = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "descriptorstore_operation_seconds",
			Help:    "Duration of backend operations",
			Buckets: buckets,
		}, []string{"backend", "operation"})
	})
}

// Register adds the collectors to reg. Registering twice on the same
// registerer is not an error.
func Register(reg prometheus.Registerer) error {
	opMetrics.init()
	for _, c := range []prometheus.Collector{opMetrics.operations, opMetrics.durations} {
		if err := reg.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if !errors.As(err, &are) {
				return err
			}
		}
	}
	return nil
}

// Observe records one operation that started at start.
func Observe(backend, op string, start time.Time, ok bool) {
	opMetrics.init()
	outcome := OutcomeSuccess
	if !ok {
		outcome = OutcomeFailure
	}
	opMetrics.operations.WithLabelValues(backend, op, outcome).Inc()
	opMetrics.durations.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
}

// Timer returns a func that records the operation when called.
//
//	defer metrics.Timer("qdrant", "query")(&ok)
func Timer(backend, op string) func(ok *bool) {
	start := time.Now()
	return func(ok *bool) {
		Observe(backend, op, start, ok != nil && *ok)
	}
}
