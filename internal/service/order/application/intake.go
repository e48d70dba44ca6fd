// internal/service/order/application/intake.go
package application

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/metrics"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/domain/port"
)

// OrderIntake 是 Intake 对外暴露的两个用例。
// IntakeService 在进程内实现它，interfaces.IntakeClient 通过 RPC 实现它。
type OrderIntake interface {
	CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error)
	GetOrderStatus(ctx context.Context, orderID string) (*OrderView, error)
}

// IntakeService 负责接收新订单与回答状态查询，是新记录的唯一写者。
type IntakeService struct {
	store     domain.OrderStore
	publisher port.TaskPublisher
	tracer    trace.Tracer
	now       func() time.Time
}

var _ OrderIntake = (*IntakeService)(nil)

func NewIntakeService(store domain.OrderStore, publisher port.TaskPublisher, tracer trace.Tracer) *IntakeService {
	return &IntakeService{store: store, publisher: publisher, tracer: tracer, now: time.Now}
}

// CreateOrder 校验输入，先写状态存储再发布任务。
// 发布失败只记录日志和指标，订单停留在 RECEIVED，由对账任务补发。
func (s *IntakeService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (*CreateOrderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()

	if req == nil {
		req = &CreateOrderRequest{}
	}
	order, err := domain.NewOrder(req.CustomerName, req.Items, req.Total, s.now())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid create order request")
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", order.ID))
	ctx = logger.WithOrder(ctx, order.ID)

	if err := s.store.Create(ctx, order); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to store order")
		logger.Ctx(ctx).Error().Err(err).Msg("Failed to store new order")
		return nil, errors.Wrap(err, "store order")
	}
	metrics.OrdersCreated.Inc()
	span.AddEvent("Order stored with RECEIVED status.")

	if err := s.publisher.Publish(ctx, order.Task()); err != nil {
		metrics.PublishFailures.Inc()
		span.RecordError(err)
		span.AddEvent("Processing task publish failed; order left in RECEIVED.")
		logger.Ctx(ctx).Warn().Err(err).Msg("Failed to publish processing task, order stays RECEIVED until reconciled")
	} else {
		logger.Ctx(ctx).Info().Msg("Order received and processing task published")
	}

	return &CreateOrderResponse{OrderID: order.ID, Status: order.Status}, nil
}

// GetOrderStatus 返回最近一次持久化的完整记录
func (s *IntakeService) GetOrderStatus(ctx context.Context, orderID string) (*OrderView, error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrderStatus", trace.WithAttributes(attribute.String("order.id", orderID)))
	defer span.End()

	if strings.TrimSpace(orderID) == "" {
		return nil, errors.Wrap(domain.ErrNotFound, "empty order id")
	}
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to read order")
		}
		return nil, err
	}
	return ToOrderView(order), nil
}
