package ivr

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/arzzra/ivr_control/pkg/logging"
)

// Listener получатель ответов endpoint'а.
// OnResponse вызывается из горутины доставки endpoint'а в порядке ответов.
// Из него можно вызывать Start, Stop и Close того же endpoint'а.
type Listener interface {
	OnResponse(Response) error
}

// ListenerFunc адаптер функции к Listener
type ListenerFunc func(Response) error

func (f ListenerFunc) OnResponse(r Response) error { return f(r) }

// ErrListenerOverflow канал наблюдателя переполнен
var ErrListenerOverflow = errors.New("listener channel is full")

// ChannelListener доставляет ответы в канал без блокировки.
// Если в канале нет места, ответ теряется и возвращается ErrListenerOverflow.
func ChannelListener(ch chan<- Response) Listener {
	return ListenerFunc(func(r Response) error {
		select {
		case ch <- r:
			return nil
		default:
			return ErrListenerOverflow
		}
	})
}

// SubscriptionID идентификатор подписки
type SubscriptionID uint64

type subscription struct {
	id       SubscriptionID
	listener Listener
}

// ObserverRegistry список наблюдателей с доставкой в порядке подписки
type ObserverRegistry struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   []subscription

	logger  logging.Logger
	metrics *Metrics
}

// NewObserverRegistry создает пустой реестр
func NewObserverRegistry(logger logging.Logger, metrics *Metrics) *ObserverRegistry {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &ObserverRegistry{logger: logger, metrics: metrics}
}

// Subscribe добавляет наблюдателя. Ранее отправленные ответы не доставляются.
func (r *ObserverRegistry) Subscribe(l Listener) SubscriptionID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.subs = append(r.subs, subscription{id: r.nextID, listener: l})
	return r.nextID
}

// Unsubscribe удаляет наблюдателя. Возвращает false, если подписки нет.
func (r *ObserverRegistry) Unsubscribe(id SubscriptionID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i:i], r.subs[i+1:]...)
			return true
		}
	}
	return false
}

// Len количество наблюдателей
func (r *ObserverRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Notify доставляет ответ всем текущим наблюдателям.
// Ошибка или паника одного наблюдателя не мешает остальным.
func (r *ObserverRegistry) Notify(ctx context.Context, resp Response) {
	r.notify(ctx, r.snapshot(), resp)
}

func (r *ObserverRegistry) snapshot() []subscription {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snapshot := make([]subscription, len(r.subs))
	copy(snapshot, r.subs)
	return snapshot
}

func (r *ObserverRegistry) notify(ctx context.Context, subs []subscription, resp Response) {
	for _, s := range subs {
		if err := r.deliver(s.listener, resp); err != nil {
			r.metrics.listenerError()
			r.logger.Warn(ctx, "observer failed to handle response",
				logging.Any("subscription", uint64(s.id)),
				logging.Uint32("transaction_id", resp.TransactionID),
				logging.Err(err))
		}
	}
}

func (r *ObserverRegistry) deliver(l Listener, resp Response) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("observer panic: %v", p)
		}
	}()
	return l.OnResponse(resp)
}

type queuedResponse struct {
	subs []subscription
	resp Response
}

// dispatcher доставляет ответы наблюдателям в отдельной горутине.
// Наблюдатели фиксируются в момент push, порядок сохраняется.
type dispatcher struct {
	registry *ObserverRegistry

	mu     sync.Mutex
	queue  []queuedResponse
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

func newDispatcher(registry *ObserverRegistry) *dispatcher {
	d := &dispatcher{
		registry: registry,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go d.run()
	return d
}

func (d *dispatcher) push(resp Response) {
	subs := d.registry.snapshot()
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.queue = append(d.queue, queuedResponse{subs: subs, resp: resp})
	d.mu.Unlock()
	d.signal()
}

// close не ждет горутину доставки: его может вызвать сам наблюдатель.
// Уже поставленные в очередь ответы доставляются.
func (d *dispatcher) close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.signal()
}

func (d *dispatcher) signal() {
	select {
	case d.wake <- struct{}{}:
	default:
	}
}

func (d *dispatcher) run() {
	defer close(d.done)
	for {
		d.mu.Lock()
		batch := d.queue
		d.queue = nil
		closed := d.closed
		d.mu.Unlock()

		for _, q := range batch {
			d.registry.notify(context.Background(), q.subs, q.resp)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-d.wake
	}
}
