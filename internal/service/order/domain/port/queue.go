package port

import (
	"context"

	"orderflow/internal/service/order/domain"
)

// TaskPublisher 是工作队列的出站端口。
// 应用层只依赖此接口，Intake 与 Worker 之间没有任何直接调用。
type TaskPublisher interface {
	// Publish 把处理任务投递到持久化队列，返回时 broker 已确认写入。
	Publish(ctx context.Context, task domain.ProcessingTask) error
}

// DeadLetter 描述一条无法解码、只能旁路保存的消息
type DeadLetter struct {
	Topic     string
	Partition int
	Offset    int64
	Key       []byte
	Value     []byte
	Reason    error
}

// DeadLetterPublisher 把毒消息转存到死信主题
type DeadLetterPublisher interface {
	PublishDeadLetter(ctx context.Context, letter DeadLetter) error
}
