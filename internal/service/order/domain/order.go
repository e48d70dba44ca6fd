// internal/service/order/domain/order.go
package domain

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Order 是订单聚合的根实体。
// 除 Status 与 UpdatedAt 之外的字段在创建后都不可变。
type Order struct {
	ID           string
	CustomerName string
	Items        []string // 不透明的商品描述，保持调用方给出的顺序
	Total        float64
	Status       Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewOrderID 生成 128 位随机标识 (UUID v4)
func NewOrderID() string {
	return uuid.New().String()
}

// ValidateOrderInput 校验创建订单的三个必填字段，不产生任何副作用
func ValidateOrderInput(customerName string, items []string, total float64) error {
	if strings.TrimSpace(customerName) == "" {
		return invalidArg("customer_name", "must not be empty")
	}
	if len(items) == 0 {
		return invalidArg("items", "must contain at least one item")
	}
	if total == 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		return invalidArg("total", "must be a non-zero finite number")
	}
	return nil
}

// 工厂函数: NewOrder 校验输入并创建一个处于 RECEIVED 状态的新订单
func NewOrder(customerName string, items []string, total float64, now time.Time) (*Order, error) {
	if err := ValidateOrderInput(customerName, items, total); err != nil {
		return nil, err
	}
	copied := make([]string, len(items))
	copy(copied, items)

	return &Order{
		ID:           NewOrderID(),
		CustomerName: customerName,
		Items:        copied,
		Total:        total,
		Status:       StatusReceived, // 初始状态
		CreatedAt:    now.UTC(),
		UpdatedAt:    now.UTC(),
	}, nil
}

// AdvanceTo 在内存中推进订单状态，不合法的流转返回 *TransitionError。
// 持久化层的原子推进使用同一条规则。
func (o *Order) AdvanceTo(to Status, now time.Time) error {
	if err := to.Validate(); err != nil {
		return err
	}
	if !o.Status.CanAdvanceTo(to) {
		return &TransitionError{OrderID: o.ID, From: o.Status, To: to}
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return nil
}

// Task 生成该订单对应的处理任务
func (o *Order) Task() ProcessingTask {
	return ProcessingTask{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		Items:        o.Items,
		Total:        o.Total,
	}
}
