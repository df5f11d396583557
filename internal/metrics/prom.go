package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tvermeulen/disporelay/internal/models"
)

var (
	// EventsTotal tracks recorded pipeline outcomes by kind and result.
	EventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "disporelay_events_total",
			Help: "Total pipeline outcome events",
		},
		[]string{"kind", "outcome"},
	)

	// EventDuration tracks outcome durations by kind.
	EventDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "disporelay_event_duration_seconds",
			Help:    "Pipeline event duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// QueueDepth tracks the current number of pending submissions.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "disporelay_queue_depth",
			Help: "Pending submissions in the durable queue",
		},
	)
)

func observe(e models.MetricEvent) {
	outcome := "failure"
	if e.Success {
		outcome = "success"
	}
	EventsTotal.WithLabelValues(string(e.Kind), outcome).Inc()
	EventDuration.WithLabelValues(string(e.Kind)).Observe(float64(e.DurationMs) / 1000)
}
