package interfaces

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"golang.org/x/sync/errgroup"

	"orderflow/internal/pkg/logger"
	"orderflow/internal/pkg/metrics"
	"orderflow/internal/pkg/mq"
	"orderflow/internal/pkg/retry"
	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/domain/port"
)

// TaskHandler 是 Worker 业务逻辑的入口，由 application.ProcessingService 实现
type TaskHandler interface {
	HandleTask(ctx context.Context, task domain.ProcessingTask) (application.Outcome, error)
}

// RetryConfig 控制处理失败时的原地重试间隔
type RetryConfig struct {
	Initial time.Duration
	Max     time.Duration
}

// TaskConsumerAdapter 是一个消费槽位：同一时刻只持有一条未确认的消息。
// 只有在处理结果已持久化之后才提交 offset；处理失败时原地重试，不提交。
type TaskConsumerAdapter struct {
	slot       int
	topic      string
	reader     mq.MessageReader
	handler    TaskHandler
	deadLetter port.DeadLetterPublisher
	retry      RetryConfig
}

func NewTaskConsumerAdapter(slot int, topic string, reader mq.MessageReader, handler TaskHandler, deadLetter port.DeadLetterPublisher, retryCfg RetryConfig) *TaskConsumerAdapter {
	if retryCfg.Initial <= 0 {
		retryCfg.Initial = 500 * time.Millisecond
	}
	if retryCfg.Max < retryCfg.Initial {
		retryCfg.Max = retryCfg.Initial
	}
	return &TaskConsumerAdapter{
		slot:       slot,
		topic:      topic,
		reader:     reader,
		handler:    handler,
		deadLetter: deadLetter,
		retry:      retryCfg,
	}
}

// Run 循环拉取并处理消息。
// fetchCtx 结束后不再拉取新消息；workCtx 只在关停超时后才取消，用来中断在途任务。
func (a *TaskConsumerAdapter) Run(fetchCtx, workCtx context.Context) error {
	log := logger.Ctx(fetchCtx).With().Int("slot", a.slot).Str("topic", a.topic).Logger()
	log.Info().Msg("✅ Task consumer slot started.")

	for {
		// 我们使用 FetchMessage 而不是 ReadMessage，offset 由我们在处理成功后提交
		msg, err := a.reader.FetchMessage(fetchCtx)
		if err != nil {
			if fetchCtx.Err() != nil {
				log.Info().Msg("🛑 Task consumer slot stopped fetching.")
				return nil
			}
			log.Error().Err(err).Msg("could not fetch message, retrying")
			select {
			case <-fetchCtx.Done():
				return nil
			case <-time.After(time.Second): // 避免快速失败循环
			}
			continue
		}

		if !a.handleMessage(workCtx, msg) {
			log.Warn().Int64("offset", msg.Offset).Msg("Task abandoned without commit, it will be redelivered")
			return nil
		}

		if err := a.reader.CommitMessages(workCtx, msg); err != nil {
			// 未提交的消息会被重投，Worker 的处理是幂等的
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit message")
			if workCtx.Err() != nil {
				return nil
			}
		}
	}
}

// handleMessage 返回 true 表示消息可以确认
func (a *TaskConsumerAdapter) handleMessage(ctx context.Context, msg kafka.Message) bool {
	start := time.Now()
	ctx = mq.ExtractTraceContext(ctx, msg.Headers)

	task, err := decodeTask(msg.Value)
	if err != nil {
		return a.sendToDeadLetter(ctx, msg, err)
	}
	ctx = logger.WithOrder(ctx, task.OrderID)

	var outcome application.Outcome
	err = retry.Forever(ctx, a.retry.Initial, a.retry.Max, func(ctx context.Context) error {
		var handleErr error
		outcome, handleErr = a.handler.HandleTask(ctx, task)
		if isPoison(handleErr) {
			return retry.Permanent(handleErr)
		}
		return handleErr
	}, func(err error, wait time.Duration) {
		logger.Ctx(ctx).Warn().Err(err).Dur("next_in", wait).Msg("Task handling failed, retrying without ack")
	})
	if err != nil {
		if isPoison(err) {
			return a.sendToDeadLetter(ctx, msg, err)
		}
		metrics.TasksHandled.WithLabelValues(metrics.ResultFailed).Inc()
		return false
	}

	metrics.TasksHandled.WithLabelValues(outcomeLabel(outcome)).Inc()
	metrics.TaskDuration.Observe(time.Since(start).Seconds())
	return true
}

// sendToDeadLetter 转存毒消息；转存成功才允许确认原消息
func (a *TaskConsumerAdapter) sendToDeadLetter(ctx context.Context, msg kafka.Message, reason error) bool {
	logger.Ctx(ctx).Error().Err(reason).Int64("offset", msg.Offset).Msg("Poison message, moving to dead letter topic")
	if a.deadLetter == nil {
		metrics.TasksHandled.WithLabelValues(metrics.ResultDeadLettered).Inc()
		return true
	}

	letter := port.DeadLetter{
		Topic:     msg.Topic,
		Partition: msg.Partition,
		Offset:    msg.Offset,
		Key:       msg.Key,
		Value:     msg.Value,
		Reason:    reason,
	}
	err := retry.Forever(ctx, a.retry.Initial, a.retry.Max, func(ctx context.Context) error {
		return a.deadLetter.PublishDeadLetter(ctx, letter)
	}, func(err error, wait time.Duration) {
		logger.Ctx(ctx).Warn().Err(err).Dur("next_in", wait).Msg("Dead letter publish failed, retrying")
	})
	if err != nil {
		return false
	}
	metrics.TasksHandled.WithLabelValues(metrics.ResultDeadLettered).Inc()
	return true
}

// isPoison 判断错误是否与重试次数无关：任务本身非法，或订单记录已损坏。
// 存储不可用（ErrUnavailable）不在此列，继续原地重试。
func isPoison(err error) bool {
	return errors.Is(err, domain.ErrInvalidArgument) ||
		errors.Is(err, domain.ErrCorruptRecord) ||
		errors.Is(err, domain.ErrInvalidStatus)
}

func decodeTask(body []byte) (domain.ProcessingTask, error) {
	var task domain.ProcessingTask
	if err := json.Unmarshal(body, &task); err != nil {
		return task, errors.Wrap(err, "decode processing task")
	}
	if err := task.Validate(); err != nil {
		return task, err
	}
	return task, nil
}

func outcomeLabel(o application.Outcome) string {
	switch o {
	case application.OutcomeProcessed:
		return metrics.ResultProcessed
	case application.OutcomeAlreadyProcessed:
		return metrics.ResultAlreadyProcessed
	case application.OutcomeDropped:
		return metrics.ResultDropped
	default:
		return o.String()
	}
}

// ConsumerGroup 把多个消费槽位作为一个组件启动和关停
type ConsumerGroup struct {
	slots []*TaskConsumerAdapter

	mu          sync.Mutex
	cancelFetch context.CancelFunc
	cancelWork  context.CancelFunc
	done        chan struct{}
	err         error
}

func NewConsumerGroup(slots ...*TaskConsumerAdapter) *ConsumerGroup {
	return &ConsumerGroup{slots: slots}
}

// Start 为每个槽位启动一个 goroutine，立即返回
func (g *ConsumerGroup) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done != nil {
		return errors.New("consumer group already started")
	}

	fetchCtx, cancelFetch := context.WithCancel(ctx)
	// 在途任务不随退出信号取消，只在关停超时后由 Stop 取消
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	g.cancelFetch, g.cancelWork = cancelFetch, cancelWork
	g.done = make(chan struct{})

	var eg errgroup.Group
	for _, slot := range g.slots {
		slot := slot
		eg.Go(func() error {
			return slot.Run(fetchCtx, workCtx)
		})
	}
	go func() {
		g.err = eg.Wait()
		close(g.done)
	}()
	return nil
}

// Stop 停止拉取新消息并等待在途任务完成；ctx 到期后中断在途任务，未确认的消息会被重投
func (g *ConsumerGroup) Stop(ctx context.Context) {
	g.mu.Lock()
	done := g.done
	g.mu.Unlock()
	if done == nil {
		return
	}

	g.cancelFetch()
	select {
	case <-done:
	case <-ctx.Done():
		logger.Ctx(ctx).Warn().Msg("Shutdown timeout reached, interrupting in-flight tasks")
		g.cancelWork()
		<-done
	}
	g.cancelWork()

	for _, slot := range g.slots {
		if err := slot.reader.Close(); err != nil {
			logger.Ctx(ctx).Error().Err(err).Int("slot", slot.slot).Msg("Failed to close reader")
		}
	}
	if g.err != nil {
		logger.Ctx(ctx).Error().Err(g.err).Msg("Consumer group exited with error")
	}
	logger.Ctx(ctx).Info().Int("slots", len(g.slots)).Msg("✅ Consumer group stopped.")
}

// Done 在所有槽位退出后关闭
func (g *ConsumerGroup) Done() <-chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.done
}
