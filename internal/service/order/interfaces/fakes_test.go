package interfaces_test

import (
	"context"
	"sync"

	"github.com/segmentio/kafka-go"

	"orderflow/internal/service/order/application"
	"orderflow/internal/service/order/domain"
	"orderflow/internal/service/order/domain/port"
)

// chanReader 是 mq.MessageReader 的内存实现，消息通过 channel 投递
type chanReader struct {
	msgs chan kafka.Message

	mu        sync.Mutex
	committed []kafka.Message
	closed    bool
}

func newChanReader() *chanReader {
	return &chanReader{msgs: make(chan kafka.Message, 16)}
}

func (r *chanReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *chanReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.committed = append(r.committed, msgs...)
	return nil
}

func (r *chanReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *chanReader) commits() []kafka.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]kafka.Message(nil), r.committed...)
}

// chanWriter 把写入的消息直接转交给 reader，模拟 broker
type chanWriter struct {
	reader *chanReader
	offset int64
	mu     sync.Mutex
}

func (w *chanWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, m := range msgs {
		m.Topic = "orders"
		m.Offset = w.offset
		w.offset++
		w.reader.msgs <- m
	}
	return nil
}

// fakeIntake 是 application.OrderIntake 的脚本化实现
type fakeIntake struct {
	mu        sync.Mutex
	created   []application.CreateOrderRequest
	createErr error
	views     map[string]*application.OrderView
	getErr    error
}

func (f *fakeIntake) CreateOrder(_ context.Context, req *application.CreateOrderRequest) (*application.CreateOrderResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created = append(f.created, *req)
	return &application.CreateOrderResponse{OrderID: "o-1", Status: domain.StatusReceived}, nil
}

func (f *fakeIntake) GetOrderStatus(_ context.Context, orderID string) (*application.OrderView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	if v, ok := f.views[orderID]; ok {
		return v, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeIntake) createCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// scriptedHandler 依次返回预设的结果，用完后一直返回最后一个
type scriptedHandler struct {
	mu      sync.Mutex
	results []handlerResult
	calls   int
}

type handlerResult struct {
	outcome application.Outcome
	err     error
}

func (h *scriptedHandler) HandleTask(_ context.Context, _ domain.ProcessingTask) (application.Outcome, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := h.calls
	if i >= len(h.results) {
		i = len(h.results) - 1
	}
	h.calls++
	return h.results[i].outcome, h.results[i].err
}

func (h *scriptedHandler) callCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

type memDeadLetters struct {
	mu      sync.Mutex
	letters []port.DeadLetter
}

func (d *memDeadLetters) PublishDeadLetter(_ context.Context, letter port.DeadLetter) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.letters = append(d.letters, letter)
	return nil
}

func (d *memDeadLetters) all() []port.DeadLetter {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]port.DeadLetter(nil), d.letters...)
}
