package reminder

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	scanRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_reminder_scan_runs_total",
		Help: "Deadline scan runs by scan and result.",
	}, []string{"scan", "result"})

	scanTasks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "taskflow_reminder_tasks_total",
		Help: "Tasks examined by deadline scans, by outcome.",
	}, []string{"scan", "outcome"})

	scanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "taskflow_reminder_scan_duration_seconds",
		Help:    "Duration of deadline scan runs.",
		Buckets: prometheus.DefBuckets,
	}, []string{"scan"})
)
