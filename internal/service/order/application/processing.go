// internal/service/order/application/processing.go
package application

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/domain/port"
)

// Outcome 是一次任务处理的结果，三种结果都意味着消息可以被确认
type Outcome int

const (
	OutcomeProcessed        Outcome = iota + 1 // 本次处理把订单推进到了 PROCESSED
	OutcomeAlreadyProcessed                    // 订单已是终态，重复投递被忽略
	OutcomeDropped                             // 记录不存在，任务被丢弃
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProcessed:
		return "processed"
	case OutcomeAlreadyProcessed:
		return "already_processed"
	case OutcomeDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// ProcessingService 是 Worker 的业务逻辑：RECEIVED -> PROCESSING -> 处理 -> PROCESSED。
// 它不假设对订单的独占，重复投递、并发重投都是安全的。
type ProcessingService struct {
	store  domain.OrderStore
	work   port.Work
	tracer trace.Tracer
}

func NewProcessingService(store domain.OrderStore, work port.Work, tracer trace.Tracer) *ProcessingService {
	return &ProcessingService{store: store, work: work, tracer: tracer}
}

// HandleTask 处理一条任务。返回 error 时调用方不得确认消息。
func (s *ProcessingService) HandleTask(ctx context.Context, task domain.ProcessingTask) (Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "app.HandleProcessingTask",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("order.id", task.OrderID)),
	)
	defer span.End()

	outcome, err := s.handle(logger.WithOrder(ctx, task.OrderID), task)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "processing task failed")
		return 0, err
	}
	span.SetAttributes(attribute.String("task.outcome", outcome.String()))
	return outcome, nil
}

func (s *ProcessingService) handle(ctx context.Context, task domain.ProcessingTask) (Outcome, error) {
	if err := task.Validate(); err != nil {
		return 0, err
	}

	// 1. 读取当前记录，不存在说明 Intake 从未提交，丢弃
	order, err := s.store.Get(ctx, task.OrderID)
	if errors.Is(err, domain.ErrNotFound) {
		logger.Ctx(ctx).Warn().Msg("Order record not found, dropping stale task")
		return OutcomeDropped, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "read order")
	}
	if order.Status.IsTerminal() {
		logger.Ctx(ctx).Info().Msg("Order already processed, ignoring redelivered task")
		return OutcomeAlreadyProcessed, nil
	}

	// 2. RECEIVED -> PROCESSING（已是 PROCESSING 时为幂等重写）
	if outcome, err := s.advance(ctx, task.OrderID, domain.StatusProcessing); outcome != 0 || err != nil {
		return outcome, err
	}
	logger.Ctx(ctx).Info().Str("status", domain.StatusProcessing.String()).Msg("Order status advanced")

	// 3. 处理工作，占用当前消费槽位直到完成或被取消
	if err := s.work.Do(ctx, order); err != nil {
		return 0, errors.Wrap(err, "processing work")
	}

	// 4. PROCESSING -> PROCESSED
	if outcome, err := s.advance(ctx, task.OrderID, domain.StatusProcessed); outcome != 0 || err != nil {
		return outcome, err
	}
	logger.Ctx(ctx).Info().Str("status", domain.StatusProcessed.String()).Msg("Order status advanced")
	return OutcomeProcessed, nil
}

// advance 推进状态；返回非零 Outcome 表示处理应就此结束
func (s *ProcessingService) advance(ctx context.Context, id string, to domain.Status) (Outcome, error) {
	_, err := s.store.Advance(ctx, id, to)
	switch {
	case err == nil:
		return 0, nil
	case errors.Is(err, domain.ErrNotFound):
		logger.Ctx(ctx).Warn().Msg("Order record disappeared during processing, dropping task")
		return OutcomeDropped, nil
	case errors.Is(err, domain.ErrInvalidTransition):
		// 另一次投递已经把订单推进得更远
		logger.Ctx(ctx).Info().Err(err).Msg("Order already advanced by another delivery")
		return OutcomeAlreadyProcessed, nil
	default:
		return 0, errors.Wrapf(err, "advance order to %s", to)
	}
}

// TimedWork 用固定时长模拟业务处理，可被 ctx 取消
type TimedWork struct {
	Duration time.Duration
}

var _ port.Work = TimedWork{}

func (w TimedWork) Do(ctx context.Context, order *domain.Order) error {
	if w.Duration <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(w.Duration)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
