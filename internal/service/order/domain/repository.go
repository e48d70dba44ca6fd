// internal/service/order/domain/repository.go
package domain

import "context"

// OrderStore 定义了订单记录的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderStore interface {
	// Create 写入一条新记录；id 已存在时返回 ErrAlreadyExists，绝不覆盖。
	Create(ctx context.Context, order *Order) error

	// Get 读取最近一次持久化的记录；不存在返回 ErrNotFound。
	Get(ctx context.Context, id string) (*Order, error)

	// Advance 原子地把状态推进到 to 并返回写入后的记录。
	// 同状态重写视为幂等；回退或跳级返回 *TransitionError，此时返回的订单是存储中的当前值。
	Advance(ctx context.Context, id string, to Status) (*Order, error)
}

// OrderScanner 遍历存储中的全部订单，供对账任务使用
type OrderScanner interface {
	Scan(ctx context.Context, fn func(*Order) error) error
}
