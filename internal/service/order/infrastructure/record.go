package infrastructure

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"orderflow/internal/service/order/domain"
)

const orderKeyPrefix = "order:"

// orderKey 返回订单在状态存储中的键
func orderKey(id string) string {
	return orderKeyPrefix + id
}

// orderRecord 是订单在 Redis 中的序列化形态，order_id 只体现在键上
type orderRecord struct {
	CustomerName string    `json:"customer_name"`
	Items        []string  `json:"items"`
	Total        float64   `json:"total"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toRecord(o *domain.Order) orderRecord {
	return orderRecord{
		CustomerName: o.CustomerName,
		Items:        o.Items,
		Total:        o.Total,
		Status:       o.Status.String(),
		CreatedAt:    o.CreatedAt,
		UpdatedAt:    o.UpdatedAt,
	}
}

func encodeRecord(o *domain.Order) (string, error) {
	if err := o.Status.Validate(); err != nil {
		return "", err
	}
	raw, err := json.Marshal(toRecord(o))
	if err != nil {
		return "", errors.Wrap(err, "encode order record")
	}
	return string(raw), nil
}

// decodeRecord 反序列化记录，失败时返回 ErrCorruptRecord；
// 状态不在三个合法值之内时同时匹配 ErrInvalidStatus
func decodeRecord(id, raw string) (*domain.Order, error) {
	var rec orderRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: decode order record %s: %w", domain.ErrCorruptRecord, id, err)
	}
	status, err := domain.ParseStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: order record %s: %w", domain.ErrCorruptRecord, id, err)
	}
	return &domain.Order{
		ID:           id,
		CustomerName: rec.CustomerName,
		Items:        rec.Items,
		Total:        rec.Total,
		Status:       status,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}, nil
}
