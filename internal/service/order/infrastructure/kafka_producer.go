package infrastructure

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/domain/port"
)

const tracerName = "orderflow/infrastructure"

// TaskProducerAdapter 把处理任务写入订单主题，是 port.TaskPublisher 的 Kafka 实现。
// 以 order_id 作为 key，同一订单的任务总落在同一分区。
type TaskProducerAdapter struct {
	writer mq.MessageWriter
	topic  string
}

var _ port.TaskPublisher = (*TaskProducerAdapter)(nil)

func NewTaskProducerAdapter(writer mq.MessageWriter, topic string) *TaskProducerAdapter {
	return &TaskProducerAdapter{writer: writer, topic: topic}
}

func (p *TaskProducerAdapter) Publish(ctx context.Context, task domain.ProcessingTask) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "orders.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", p.topic),
			attribute.String("order.id", task.OrderID),
		),
	)
	defer span.End()

	if err := task.Validate(); err != nil {
		span.RecordError(err)
		return err
	}
	body, err := json.Marshal(task)
	if err != nil {
		span.RecordError(err)
		return errors.Wrap(err, "marshal processing task")
	}

	if err := mq.ProduceMessage(ctx, p.writer, []byte(task.OrderID), body); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return errors.Wrapf(domain.ErrUnavailable, "publish task for order %s: %v", task.OrderID, err)
	}
	logger.Ctx(ctx).Debug().Str("order_id", task.OrderID).Str("topic", p.topic).Msg("Processing task published")
	return nil
}

// DeadLetterProducerAdapter 把无法解码的消息原样转存到死信主题，并在头中记录来源与原因
type DeadLetterProducerAdapter struct {
	writer mq.MessageWriter
}

var _ port.DeadLetterPublisher = (*DeadLetterProducerAdapter)(nil)

func NewDeadLetterProducerAdapter(writer mq.MessageWriter) *DeadLetterProducerAdapter {
	return &DeadLetterProducerAdapter{writer: writer}
}

func (p *DeadLetterProducerAdapter) PublishDeadLetter(ctx context.Context, letter port.DeadLetter) error {
	reason := "unknown"
	if letter.Reason != nil {
		reason = letter.Reason.Error()
	}
	headers := []kafka.Header{
		{Key: mq.HeaderOriginalTopic, Value: []byte(letter.Topic)},
		{Key: mq.HeaderOriginalPartition, Value: []byte(strconv.Itoa(letter.Partition))},
		{Key: mq.HeaderOriginalOffset, Value: []byte(strconv.FormatInt(letter.Offset, 10))},
		{Key: mq.HeaderExceptionFqcn, Value: []byte(errorKind(letter.Reason))},
		{Key: mq.HeaderExceptionMessage, Value: []byte(reason)},
	}
	if err := mq.ProduceMessage(ctx, p.writer, letter.Key, letter.Value, headers...); err != nil {
		return errors.Wrapf(domain.ErrUnavailable, "publish dead letter: %v", err)
	}
	return nil
}

func errorKind(err error) string {
	var invalid *domain.InvalidArgumentError
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &invalid):
		return "invalid_task"
	default:
		return "undecodable_task"
	}
}
