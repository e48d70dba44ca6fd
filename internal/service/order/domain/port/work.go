package port

import (
	"context"

	"orderflow/internal/service/order/domain"
)

// Work 代表一次业务处理。
// 实现必须响应 ctx 的取消，并且对同一订单重复执行是安全的。
type Work interface {
	Do(ctx context.Context, order *domain.Order) error
}
