// Package metrics exposes Prometheus collectors for the batch runner.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TasksCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidaudit_tasks_completed_total",
		Help: "Tasks that finished successfully.",
	})

	TasksFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidaudit_tasks_failed_total",
		Help: "Tasks that exhausted their retries.",
	})

	TaskRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidaudit_task_retries_total",
		Help: "Task attempts that failed and were retried.",
	})

	RestrictedVideos = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vidaudit_restricted_videos_total",
		Help: "Restriction interstitials hit on autoplay paths.",
	})

	RecommendationsCollected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vidaudit_recommendations_collected_total",
		Help: "Recommendations scraped, by source.",
	}, []string{"source"})

	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "vidaudit_task_duration_seconds",
		Help:    "Wall time of one task attempt.",
		Buckets: prometheus.ExponentialBuckets(30, 2, 10),
	})

	ExperimentRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidaudit_experiment_running",
		Help: "1 while a batch is executing.",
	})

	LastTaskCompleted = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "vidaudit_last_task_completed_timestamp_seconds",
		Help: "Unix time of the last successful task.",
	})
)
