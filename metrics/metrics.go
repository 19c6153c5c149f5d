// Package metrics exposes Prometheus collectors for reminder delivery and
// self-role handling. Label values are drawn from small fixed sets so
// cardinality stays bounded.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ReminderExecutions counts executions by trigger (scheduled|manual) and
	// aggregate status (success|partial|error).
	ReminderExecutions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_executions_total",
			Help: "Total number of reminder executions.",
		},
		[]string{"trigger", "status"},
	)

	// ReminderDMs counts direct-message attempts by result
	// (sent|failed|unreachable).
	ReminderDMs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reminder_dms_total",
			Help: "Total number of reminder direct-message attempts.",
		},
		[]string{"result"},
	)

	// SelfRolePresses counts self-role button presses by outcome.
	SelfRolePresses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "selfrole_presses_total",
			Help: "Total number of self-role button presses.",
		},
		[]string{"outcome"},
	)

	// TickDuration records how long one scheduler tick takes.
	TickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reminder_tick_duration_seconds",
			Help:    "Duration of reminder scheduler ticks in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(ReminderExecutions, ReminderDMs, SelfRolePresses, TickDuration)
}
