package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"craftcv/internal/tasks"
)

const namespace = "craftcv"

var (
	tasksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "后台任务处理次数。outcome 为 ok、retry、skip 或 exhausted。",
		},
		[]string{"task_type", "outcome"},
	)

	taskSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "任务耗时（秒）。解析调用外部服务，品牌化需要渲染 PDF。",
			Buckets:   []float64{0.25, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"task_type"},
	)

	tasksRunning = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "tasks_running",
			Help:      "正在执行的任务数。",
		},
		[]string{"task_type"},
	)
)

// AsynqMetricsMiddleware 包装任务处理器并记录耗时与结果。
func AsynqMetricsMiddleware() asynq.MiddlewareFunc {
	return func(next asynq.Handler) asynq.Handler {
		return asynq.HandlerFunc(func(ctx context.Context, task *asynq.Task) error {
			running := tasksRunning.WithLabelValues(task.Type())
			running.Inc()
			defer running.Dec()

			start := time.Now()
			err := next.ProcessTask(ctx, task)
			taskSeconds.WithLabelValues(task.Type()).Observe(time.Since(start).Seconds())
			tasksTotal.WithLabelValues(task.Type(), taskOutcome(ctx, err)).Inc()
			return err
		})
	}
}

// taskOutcome 中的 exhausted 表示最后一次重试仍然失败。
func taskOutcome(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, asynq.SkipRetry):
		return "skip"
	case tasks.IsFinalAttempt(ctx, err):
		return "exhausted"
	}
	return "retry"
}
