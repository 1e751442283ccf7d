// Package metric holds the process-wide prometheus collectors.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	InstancesExpanded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daycal_instances_expanded_total",
		Help: "Instances produced by recurrence expansion",
	})

	ExpansionCapped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daycal_expansion_capped_total",
		Help: "Recurring events that hit the per-call occurrence cap",
	})

	RemindersFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daycal_reminders_fired_total",
		Help: "Reminders delivered, by channel",
	}, []string{"channel"})

	RemindersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daycal_reminders_skipped_total",
		Help: "Reminders suppressed, by reason",
	}, []string{"reason"})

	RemindersPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "daycal_reminders_pending",
		Help: "Armed reminders waiting for their fire time",
	})

	ImportBlocksDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daycal_import_blocks_dropped_total",
		Help: "Calendar blocks dropped during decode",
	})
)

// Channel labels for RemindersFired.
const (
	ChannelInApp    = "in_app"
	ChannelPlatform = "platform"
)
