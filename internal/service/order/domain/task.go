// internal/service/order/domain/task.go
package domain

import "strings"

// ProcessingTask 是工作队列上的消息体。
// 它只携带订单引用和重建任务所需的数据，从不携带权威状态。
type ProcessingTask struct {
	OrderID      string   `json:"order_id"`
	CustomerName string   `json:"customer_name"`
	Items        []string `json:"items"`
	Total        float64  `json:"total"`
}

// Validate 只检查消费端必须依赖的字段；其余字段以状态存储中的记录为准
func (t ProcessingTask) Validate() error {
	if strings.TrimSpace(t.OrderID) == "" {
		return invalidArg("order_id", "must not be empty")
	}
	return nil
}
