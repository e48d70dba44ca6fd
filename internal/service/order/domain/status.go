// internal/service/order/domain/status.go
package domain

import (
	"fmt"
	"strings"
)

// Status 定义了订单的生命周期状态
//
//	RECEIVED ──> PROCESSING ──> PROCESSED
//
// 状态只能沿着上面的顺序前进，不允许跳过 PROCESSING，也不允许回退。
type Status string

const (
	StatusReceived   Status = "RECEIVED"   // 已被 Intake 接收并落库，等待处理
	StatusProcessing Status = "PROCESSING" // Worker 已领取任务，正在处理
	StatusProcessed  Status = "PROCESSED"  // 处理完成（终态）
)

// statusRank 给出每个状态在生命周期中的位置，用于判断单调性
var statusRank = map[Status]int{
	StatusReceived:   1,
	StatusProcessing: 2,
	StatusProcessed:  3,
}

// Statuses 按生命周期顺序返回全部合法状态
func Statuses() []Status {
	return []Status{StatusReceived, StatusProcessing, StatusProcessed}
}

// ParseStatus 把存储或网络上读到的字符串解析为 Status，未知值返回 ErrInvalidStatus
func ParseStatus(s string) (Status, error) {
	st := Status(strings.TrimSpace(s))
	if err := st.Validate(); err != nil {
		return "", err
	}
	return st, nil
}

// Validate 检查状态是否属于三个已定义的值之一
func (s Status) Validate() error {
	if _, ok := statusRank[s]; !ok {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, string(s))
	}
	return nil
}

func (s Status) String() string {
	return string(s)
}

// Rank 返回状态在生命周期中的序号，非法状态返回 0
func (s Status) Rank() int {
	return statusRank[s]
}

// IsTerminal 判断是否为终态
func (s Status) IsTerminal() bool {
	return s == StatusProcessed
}

// CanAdvanceTo 判断从 s 到 to 的流转是否合法。
// 相同状态的重写被视为幂等操作，允许；只允许前进一步。
func (s Status) CanAdvanceTo(to Status) bool {
	from, next := s.Rank(), to.Rank()
	if from == 0 || next == 0 {
		return false
	}
	return next == from || next == from+1
}

// IsBehind 判断 s 是否落后于 other（即 other 已经走得更远）
func (s Status) IsBehind(other Status) bool {
	return s.Rank() < other.Rank()
}
