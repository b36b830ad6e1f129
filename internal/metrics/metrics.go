package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	TasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campeng_tasks_total",
			Help: "Queue task lifecycle counter by stage and channel",
		},
		[]string{"stage", "channel"}, // enqueued|sent|retried|failed|cancelled , email|sms|push
	)

	ClaimedPerCycle = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "campeng_claimed_per_cycle",
			Help:    "Tasks claimed per dispatch poll cycle",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	StaleSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "campeng_stale_swept_total",
			Help: "Processing rows returned to pending by the janitor",
		},
	)

	DeliveryEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campeng_delivery_events_total",
			Help: "Provider delivery events recorded, by type",
		},
		[]string{"type"},
	)
)

func MustRegister(r prometheus.Registerer) {
	r.MustRegister(
		TasksTotal,
		ClaimedPerCycle,
		StaleSweptTotal,
		DeliveryEventsTotal,
	)
}
