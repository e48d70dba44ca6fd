// internal/service/order/domain/errors.go
package domain

import (
	"errors"
	"fmt"
)

// 领域错误。基础设施层用 errors.Wrap 包裹它们，边界层用 errors.Is 映射为调用方可见的错误码。
var (
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrNotFound          = errors.New("order not found")
	ErrAlreadyExists     = errors.New("order already exists")
	ErrUnavailable       = errors.New("dependency unavailable")
	ErrInvalidStatus     = errors.New("invalid order status")
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrCorruptRecord 表示存储中的记录无法解析，重试不会让它变好
	ErrCorruptRecord = errors.New("corrupt order record")
)

// InvalidArgumentError 指明是哪个字段没有通过校验
type InvalidArgumentError struct {
	Field  string
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return fmt.Sprintf("invalid argument %s: %s", e.Field, e.Reason)
}

func (e *InvalidArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// TransitionError 描述一次被拒绝的状态流转
type TransitionError struct {
	OrderID string
	From    Status
	To      Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: cannot move from %s to %s", e.OrderID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

func invalidArg(field, reason string) error {
	return &InvalidArgumentError{Field: field, Reason: reason}
}
