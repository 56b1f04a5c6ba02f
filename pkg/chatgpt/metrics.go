package chatgpt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	metricTasksStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "llmscraper",
		Name:      "tasks_started_total",
		Help:      "Number of scrape tasks started.",
	})
	metricTasksSucceeded = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "llmscraper",
		Name:      "tasks_succeeded_total",
		Help:      "Number of scrape tasks that produced a successful answer.",
	})
	metricTasksFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "llmscraper",
		Name:      "tasks_failed_total",
		Help:      "Number of scrape tasks that failed, by fault code.",
	}, []string{"code"})
	metricTaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "llmscraper",
		Name:      "task_duration_seconds",
		Help:      "Wall-clock duration of scrape tasks.",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
	})
)
