// internal/service/order/application/dto.go
package application

import "orderflow/internal/service/order/domain"

// CreateOrderRequest 是创建订单用例的输入数据
type CreateOrderRequest struct {
	CustomerName string   `json:"customer_name"`
	Items        []string `json:"items"`
	Total        float64  `json:"total"`
}

// CreateOrderResponse 是创建订单用例的输出数据
type CreateOrderResponse struct {
	OrderID string        `json:"order_id"`
	Status  domain.Status `json:"status"`
}

// GetOrderStatusRequest 是查询订单用例的输入数据
type GetOrderStatusRequest struct {
	OrderID string `json:"order_id"`
}

// OrderView 是订单的对外视图，字段顺序与存储记录一致
type OrderView struct {
	OrderID      string        `json:"order_id"`
	CustomerName string        `json:"customer_name"`
	Items        []string      `json:"items"`
	Total        float64       `json:"total"`
	Status       domain.Status `json:"status"`
}

// ToOrderView 从领域实体转换为输出 DTO
func ToOrderView(o *domain.Order) *OrderView {
	items := o.Items
	if items == nil {
		items = []string{}
	}
	return &OrderView{
		OrderID:      o.ID,
		CustomerName: o.CustomerName,
		Items:        items,
		Total:        o.Total,
		Status:       o.Status,
	}
}
