// Package metrics exposes controller counters and gauges to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/sweeney/crossing-controller/internal/logic"
)

var (
	EventsCollected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossing_events_collected_total",
			Help: "Events popped from the input queue, by code",
		},
		[]string{"event"},
	)

	Transitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossing_transitions_total",
			Help: "Scheduler state changes",
		},
		[]string{"from", "to"},
	)

	Preemptions = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crossing_preemptions_total",
			Help: "State changes forced by an ambulance latch",
		},
	)

	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossing_queue_depth",
			Help: "Events waiting between sampler and collector",
		},
	)

	Dwell = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "crossing_dwell_ticks",
			Help: "Ticks spent in the current state",
		},
	)

	DroppedNotifications = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "crossing_notifications_dropped_total",
			Help: "Transition notifications dropped because the reporter fell behind",
		},
	)

	IOErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "crossing_gpio_errors_total",
			Help: "GPIO read and write failures",
		},
		[]string{"op"},
	)
)

// ObserveTransition records a state change.
func ObserveTransition(t logic.Transition) {
	Transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
	if t.Preempted {
		Preemptions.Inc()
	}
}
