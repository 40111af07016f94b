package worker

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"go.uber.org/zap"
)

const jobName = "epic_engine_worker"

var (
	// Task metrics live in a private registry and are pushed to a
	// Pushgateway; the worker's /metrics endpoint only serves the
	// default registry.
	registry = prometheus.NewRegistry()

	tasksReceived = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "epic_worker_tasks_received_total",
			Help: "Total number of generation tasks received by the worker.",
		},
	)
	tasksFailed = promauto.With(registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "epic_worker_tasks_failed_total",
			Help: "Total number of generation tasks failed, partitioned by failure reason.",
		},
		[]string{"reason"},
	)
	tasksSucceeded = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "epic_worker_tasks_succeeded_total",
			Help: "Total number of generation tasks successfully processed.",
		},
	)
	chaptersCommitted = promauto.With(registry).NewCounter(
		prometheus.CounterOpts{
			Name: "epic_worker_chapters_committed_total",
			Help: "Total number of chapters committed by the worker.",
		},
	)
	taskDuration = promauto.With(registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "epic_worker_task_duration_seconds",
			Help:    "Duration of generation task processing.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
	)

	pusher      *push.Pusher
	groupingKey map[string]string
)

// InitMetricsPusher initializes the Pushgateway client. Each worker instance
// is identified by hostname and pid so parallel workers do not overwrite each
// other's series.
func InitMetricsPusher(pushgatewayURL string) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
		zap.L().Warn("Could not get hostname for metrics instance label", zap.Error(err))
	}
	instanceID := fmt.Sprintf("%s-%d", hostname, os.Getpid())

	groupingKey = map[string]string{"instance": instanceID}

	pusher = push.New(pushgatewayURL, jobName).Gatherer(registry).Grouping("instance", instanceID)

	if err := pusher.Push(); err != nil {
		return fmt.Errorf("could not push initial metrics to Pushgateway: %w", err)
	}
	zap.L().Info("Pushgateway pusher initialized",
		zap.String("job", jobName),
		zap.String("instance", instanceID),
		zap.String("url", pushgatewayURL))
	return nil
}

// StartMetricsPusher starts a goroutine pushing metrics on an interval.
func StartMetricsPusher(interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			if pusher == nil {
				ticker.Stop()
				return
			}
			_ = pushMetrics()
		}
	}()
	zap.L().Info("Started periodic metrics pusher", zap.Duration("interval", interval))
}

// PushMetricsNow forces an immediate push, used at the end of each task so
// short-lived workers do not lose their last counters.
func PushMetricsNow() error {
	return pushMetrics()
}

func pushMetrics() error {
	if pusher == nil {
		return errors.New("pusher not initialized")
	}
	if err := pusher.Push(); err != nil {
		zap.L().Warn("Error pushing metrics to Pushgateway", zap.Error(err))
		return err
	}
	return nil
}

// CleanupMetrics deletes this instance's series from the Pushgateway. Call it
// via defer in main.
func CleanupMetrics() {
	if pusher == nil {
		return
	}
	if err := pusher.Delete(); err != nil {
		zap.L().Warn("Error deleting metrics from Pushgateway",
			zap.Any("groupingKey", groupingKey),
			zap.Error(err))
	}
}

func incrementTasksReceived()           { tasksReceived.Inc() }
func incrementTaskFailed(reason string) { tasksFailed.WithLabelValues(reason).Inc() }
func incrementTaskSucceeded()           { tasksSucceeded.Inc() }
func incrementChapterCommitted()        { chaptersCommitted.Inc() }
func recordTaskDuration(d time.Duration) {
	taskDuration.Observe(d.Seconds())
}
