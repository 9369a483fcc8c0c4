// Package metrics exposes queue counters through Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// QueueMetrics implements store.Collector on top of Prometheus counters.
type QueueMetrics struct {
	leased       prometheus.Counter
	completed    prometheus.Counter
	rescheduled  prometheus.Counter
	deadlettered prometheus.Counter
	corrupt      prometheus.Counter
}

func New(reg prometheus.Registerer, worker string) *QueueMetrics {
	labels := prometheus.Labels{"worker": worker}
	factory := promauto.With(reg)

	return &QueueMetrics{
		leased: factory.NewCounter(prometheus.CounterOpts{
			Name:        "duraq_tasks_leased_total",
			Help:        "Tasks leased for execution.",
			ConstLabels: labels,
		}),
		completed: factory.NewCounter(prometheus.CounterOpts{
			Name:        "duraq_tasks_completed_total",
			Help:        "Tasks completed and moved to the outbox.",
			ConstLabels: labels,
		}),
		rescheduled: factory.NewCounter(prometheus.CounterOpts{
			Name:        "duraq_tasks_rescheduled_total",
			Help:        "Failed tasks rescheduled with backoff.",
			ConstLabels: labels,
		}),
		deadlettered: factory.NewCounter(prometheus.CounterOpts{
			Name:        "duraq_tasks_deadlettered_total",
			Help:        "Tasks moved to the deadletter after exhausting attempts.",
			ConstLabels: labels,
		}),
		corrupt: factory.NewCounter(prometheus.CounterOpts{
			Name:        "duraq_artifacts_corrupt_total",
			Help:        "Unparsable queue artifacts skipped during scans.",
			ConstLabels: labels,
		}),
	}
}

func (m *QueueMetrics) IncLeased()       { m.leased.Inc() }
func (m *QueueMetrics) IncCompleted()    { m.completed.Inc() }
func (m *QueueMetrics) IncRescheduled()  { m.rescheduled.Inc() }
func (m *QueueMetrics) IncDeadlettered() { m.deadlettered.Inc() }
func (m *QueueMetrics) IncCorrupt()      { m.corrupt.Inc() }
