package application

import (
	"context"
	"errors"
	"sync"
	"time"

	"orderflow/internal/service/order/domain"
)

// memStore 是 OrderStore 的内存实现，按调用顺序记录事件
type memStore struct {
	mu      sync.Mutex
	orders  map[string]domain.Order
	events  *[]string
	failGet error
	failAdv error
	failNew error
}

func newMemStore(events *[]string) *memStore {
	return &memStore{orders: make(map[string]domain.Order), events: events}
}

func (s *memStore) record(ev string) {
	if s.events != nil {
		*s.events = append(*s.events, ev)
	}
}

func (s *memStore) Create(_ context.Context, o *domain.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNew != nil {
		return s.failNew
	}
	if _, ok := s.orders[o.ID]; ok {
		return domain.ErrAlreadyExists
	}
	cp := *o
	cp.Items = append([]string(nil), o.Items...)
	s.orders[o.ID] = cp
	s.record("store:" + o.ID)
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return nil, s.failGet
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &o, nil
}

func (s *memStore) Advance(_ context.Context, id string, to domain.Status) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failAdv != nil {
		return nil, s.failAdv
	}
	o, ok := s.orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if err := o.AdvanceTo(to, time.Now()); err != nil {
		return &o, err
	}
	s.orders[id] = o
	s.record("advance:" + to.String())
	return &o, nil
}

func (s *memStore) Scan(_ context.Context, fn func(*domain.Order) error) error {
	s.mu.Lock()
	snapshot := make([]domain.Order, 0, len(s.orders))
	for _, o := range s.orders {
		snapshot = append(snapshot, o)
	}
	s.mu.Unlock()
	for i := range snapshot {
		if err := fn(&snapshot[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *memStore) put(o domain.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[o.ID] = o
}

// memPublisher 记录发布过的任务，fail 非空时全部失败
type memPublisher struct {
	mu     sync.Mutex
	tasks  []domain.ProcessingTask
	events *[]string
	fail   error
}

func (p *memPublisher) Publish(_ context.Context, task domain.ProcessingTask) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.tasks = append(p.tasks, task)
	if p.events != nil {
		*p.events = append(*p.events, "publish:"+task.OrderID)
	}
	return nil
}

func (p *memPublisher) setFail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *memPublisher) published() []domain.ProcessingTask {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.ProcessingTask(nil), p.tasks...)
}

var errBrokerDown = errors.New("broker down")
