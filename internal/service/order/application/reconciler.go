// internal/service/order/application/reconciler.go
package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/metrics"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/domain/port"
)

// Reconciler 为长时间停留在 RECEIVED 的订单补发处理任务，
// 弥补 Intake 在写入存储之后发布失败留下的缺口。Worker 是幂等的，多发是安全的，
// 但同一订单在一个 staleAfter 窗口内最多补发一次，避免积压时每轮都灌入重复任务。
type Reconciler struct {
	scanner    domain.OrderScanner
	publisher  port.TaskPublisher
	staleAfter time.Duration
	tracer     trace.Tracer
	now        func() time.Time

	mu          sync.Mutex
	republished map[string]time.Time // order id -> 最近一次补发成功的时间
}

func NewReconciler(scanner domain.OrderScanner, publisher port.TaskPublisher, staleAfter time.Duration, tracer trace.Tracer) *Reconciler {
	return &Reconciler{
		scanner:     scanner,
		publisher:   publisher,
		staleAfter:  staleAfter,
		tracer:      tracer,
		now:         time.Now,
		republished: make(map[string]time.Time),
	}
}

// SweepResult 汇总一次扫描
type SweepResult struct {
	Scanned     int
	Republished int
	Deferred    int // 窗口内已补发过，本轮跳过
	Failed      int
}

// Sweep 扫描全部订单并补发过期的 RECEIVED 任务。单个发布失败不会中断扫描。
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	ctx, span := r.tracer.Start(ctx, "app.ReconcileSweep")
	defer span.End()

	r.mu.Lock()
	defer r.mu.Unlock()

	var (
		res     SweepResult
		pubErrs []error
	)
	stale := make(map[string]struct{})
	now := r.now()
	cutoff := now.Add(-r.staleAfter)

	err := r.scanner.Scan(ctx, func(order *domain.Order) error {
		res.Scanned++
		if order.Status != domain.StatusReceived || order.UpdatedAt.After(cutoff) {
			return nil
		}
		stale[order.ID] = struct{}{}
		if last, ok := r.republished[order.ID]; ok && now.Sub(last) < r.staleAfter {
			res.Deferred++
			return nil
		}
		if err := r.publisher.Publish(ctx, order.Task()); err != nil {
			res.Failed++
			pubErrs = append(pubErrs, err)
			logger.Ctx(ctx).Error().Err(err).Str("order_id", order.ID).Msg("Failed to republish stale order")
			return nil
		}
		r.republished[order.ID] = now
		res.Republished++
		metrics.OrdersReconciled.Inc()
		logger.Ctx(ctx).Info().
			Str("order_id", order.ID).
			Time("updated_at", order.UpdatedAt).
			Msg("Republished processing task for stale RECEIVED order")
		return nil
	})

	if err == nil {
		// 已离开 RECEIVED 或已被删除的订单不再需要记住
		for id := range r.republished {
			if _, ok := stale[id]; !ok {
				delete(r.republished, id)
			}
		}
	}

	span.SetAttributes(
		attribute.Int("reconcile.scanned", res.Scanned),
		attribute.Int("reconcile.republished", res.Republished),
		attribute.Int("reconcile.deferred", res.Deferred),
		attribute.Int("reconcile.failed", res.Failed),
	)
	if err != nil {
		span.RecordError(err)
		return res, err
	}
	return res, errors.Join(pubErrs...)
}
