package consolidate

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsApplied = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glucomem",
			Name:      "events_applied_total",
			Help:      "Memory events appended, by event type.",
		},
		[]string{"type"},
	)

	entriesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glucomem",
			Name:      "entries_dropped_total",
			Help:      "Delta entries dropped by validation, by section.",
		},
		[]string{"section"},
	)

	storageFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glucomem",
			Name:      "storage_failures_total",
			Help:      "Storage reads or writes that failed after retries, by operation.",
		},
		[]string{"op"},
	)

	habitPromotions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glucomem",
			Name:      "habit_promotions_total",
			Help:      "Habit detector upserts, by domain and action.",
		},
		[]string{"domain", "action"},
	)

	turnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "glucomem",
			Name:      "turns_total",
			Help:      "Processed conversational turns, by status.",
		},
		[]string{"status"},
	)

	turnDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "glucomem",
			Name:      "turn_duration_seconds",
			Help:      "Time spent consolidating one turn.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)
