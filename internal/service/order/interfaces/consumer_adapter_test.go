package interfaces_test

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/interfaces"
)

var fastRetry = interfaces.RetryConfig{Initial: 5 * time.Millisecond, Max: 20 * time.Millisecond}

type runningSlot struct {
	cancelFetch context.CancelFunc
	cancelWork  context.CancelFunc
	done        chan error
}

func startSlot(t *testing.T, a *interfaces.TaskConsumerAdapter) *runningSlot {
	t.Helper()
	fetchCtx, cancelFetch := context.WithCancel(context.Background())
	workCtx, cancelWork := context.WithCancel(context.Background())
	s := &runningSlot{cancelFetch: cancelFetch, cancelWork: cancelWork, done: make(chan error, 1)}
	go func() { s.done <- a.Run(fetchCtx, workCtx) }()
	t.Cleanup(func() {
		cancelFetch()
		cancelWork()
	})
	return s
}

func (s *runningSlot) wait(t *testing.T) {
	t.Helper()
	select {
	case err := <-s.done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("consumer slot did not stop")
	}
}

func taskMessage(offset int64, body string) kafka.Message {
	return kafka.Message{Topic: "orders", Partition: 0, Offset: offset, Key: []byte("o-1"), Value: []byte(body)}
}

const validTask = `{"order_id":"o-1","customer_name":"Ana","items":["book"],"total":42.5}`

func TestTaskConsumerAdapter_AckAfterHandling(t *testing.T) {
	outcomes := []application.Outcome{application.OutcomeProcessed, application.OutcomeAlreadyProcessed, application.OutcomeDropped}
	for _, outcome := range outcomes {
		t.Run("should commit when the outcome is "+outcome.String(), func(t *testing.T) {
			reader := newChanReader()
			handler := &scriptedHandler{results: []handlerResult{{outcome: outcome}}}
			slot := startSlot(t, interfaces.NewTaskConsumerAdapter(1, "orders", reader, handler, &memDeadLetters{}, fastRetry))

			reader.msgs <- taskMessage(7, validTask)
			require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
			assert.Equal(t, int64(7), reader.commits()[0].Offset)

			slot.cancelFetch()
			slot.wait(t)
		})
	}
}

func TestTaskConsumerAdapter_RetriesTransientFailures(t *testing.T) {
	reader := newChanReader()
	handler := &scriptedHandler{results: []handlerResult{
		{err: domain.ErrUnavailable},
		{err: domain.ErrUnavailable},
		{outcome: application.OutcomeProcessed},
	}}
	slot := startSlot(t, interfaces.NewTaskConsumerAdapter(1, "orders", reader, handler, &memDeadLetters{}, fastRetry))

	reader.msgs <- taskMessage(0, validTask)
	require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 3, handler.callCount())

	slot.cancelFetch()
	slot.wait(t)
}

func TestTaskConsumerAdapter_NoAckWhenInterrupted(t *testing.T) {
	reader := newChanReader()
	handler := &scriptedHandler{results: []handlerResult{{err: domain.ErrUnavailable}}}
	slot := startSlot(t, interfaces.NewTaskConsumerAdapter(1, "orders", reader, handler, &memDeadLetters{}, fastRetry))

	reader.msgs <- taskMessage(0, validTask)
	require.Eventually(t, func() bool { return handler.callCount() >= 3 }, 2*time.Second, 5*time.Millisecond)

	// 停止拉取不会中断在途任务
	slot.cancelFetch()
	select {
	case <-slot.done:
		t.Fatal("slot returned before the in-flight task was interrupted")
	case <-time.After(50 * time.Millisecond):
	}

	slot.cancelWork()
	slot.wait(t)
	assert.Empty(t, reader.commits())
}

func TestTaskConsumerAdapter_DeadLetters(t *testing.T) {
	bodies := map[string]string{
		"undecodable body": `{broken`,
		"missing order id": `{"customer_name":"Ana","items":["book"],"total":1}`,
	}
	for name, body := range bodies {
		t.Run("should dead-letter and commit a message with "+name, func(t *testing.T) {
			reader := newChanReader()
			handler := &scriptedHandler{results: []handlerResult{{outcome: application.OutcomeProcessed}}}
			dlt := &memDeadLetters{}
			slot := startSlot(t, interfaces.NewTaskConsumerAdapter(1, "orders", reader, handler, dlt, fastRetry))

			reader.msgs <- taskMessage(3, body)
			require.Eventually(t, func() bool { return len(reader.commits()) == 1 }, 2*time.Second, 5*time.Millisecond)

			letters := dlt.all()
			require.Len(t, letters, 1)
			assert.Equal(t, "orders", letters[0].Topic)
			assert.Equal(t, int64(3), letters[0].Offset)
			assert.Equal(t, body, string(letters[0].Value))
			assert.Error(t, letters[0].Reason)
			assert.Zero(t, handler.callCount())

			slot.cancelFetch()
			slot.wait(t)
		})
	}
}

func TestConsumerGroup_StartStop(t *testing.T) {
	readers := []*chanReader{newChanReader(), newChanReader()}
	handler := &scriptedHandler{results: []handlerResult{{outcome: application.OutcomeProcessed}}}

	var slots []*interfaces.TaskConsumerAdapter
	for i, r := range readers {
		slots = append(slots, interfaces.NewTaskConsumerAdapter(i, "orders", r, handler, nil, fastRetry))
	}
	group := interfaces.NewConsumerGroup(slots...)

	require.NoError(t, group.Start(context.Background()))
	assert.Error(t, group.Start(context.Background()))

	readers[0].msgs <- taskMessage(0, validTask)
	readers[1].msgs <- taskMessage(0, validTask)
	require.Eventually(t, func() bool {
		return len(readers[0].commits()) == 1 && len(readers[1].commits()) == 1
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	group.Stop(ctx)

	select {
	case <-group.Done():
	default:
		t.Fatal("group not done after Stop")
	}
	for _, r := range readers {
		assert.True(t, r.closed)
	}
}
