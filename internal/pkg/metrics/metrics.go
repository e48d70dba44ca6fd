// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 任务处理结果的 label 取值
const (
	ResultProcessed        = "processed"
	ResultAlreadyProcessed = "already_processed"
	ResultDropped          = "dropped"
	ResultDeadLettered     = "dead_lettered"
	ResultFailed           = "failed"
)

var (
	OrdersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Orders admitted and persisted with status RECEIVED.",
	})

	PublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_publish_failures_total",
		Help: "Processing tasks that could not be published after the order was stored.",
	})

	TasksHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_tasks_handled_total",
		Help: "Processing tasks handled by the worker, by result.",
	}, []string{"result"})

	TaskDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_task_duration_seconds",
		Help:    "Time from fetching a processing task to acknowledging it.",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
	})

	OrdersReconciled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_reconciled_total",
		Help: "Stale RECEIVED orders whose processing task was republished.",
	})
)
