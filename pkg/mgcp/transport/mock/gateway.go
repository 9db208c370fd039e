package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport"
)

// Gateway in-memory медиашлюз, реализующий transport.Transport.
//
// Ответ на команду возвращается синхронно из SendRequest, уведомления
// доставляются отдельной горутиной строго в порядке постановки в очередь.
type Gateway struct {
	mu       sync.Mutex
	behavior Behavior
	requests []*message.Request
	handlers map[string][]*subscriber
	notifyID uint32

	queue     chan func()
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

var _ transport.Transport = (*Gateway)(nil)

// NewGateway создает шлюз со сценарием b
func NewGateway(b Behavior) *Gateway {
	g := &Gateway{
		behavior: b,
		handlers: make(map[string][]*subscriber),
		notifyID: 1000,
		queue:    make(chan func(), 256),
		closed:   make(chan struct{}),
	}
	g.wg.Add(1)
	go g.dispatch()
	return g
}

// SetBehavior заменяет сценарий
func (g *Gateway) SetBehavior(b Behavior) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.behavior = b
}

// SendRequest реализует transport.Transport
func (g *Gateway) SendRequest(ctx context.Context, req *message.Request) (*message.Response, error) {
	select {
	case <-g.closed:
		return nil, &transport.TransportError{Transport: "mock", Operation: "send", Err: transport.ErrTransportClosed}
	case <-ctx.Done():
		return nil, &transport.TransportError{Transport: "mock", Operation: "send", Err: ctx.Err()}
	default:
	}

	g.mu.Lock()
	g.requests = append(g.requests, req)
	behavior := g.behavior
	g.mu.Unlock()

	reply := behavior(req)
	resp := message.NewResponse(reply.Code, req.ID, "")

	endpoint := req.Endpoint
	if reply.SpecificEndpoint != "" {
		resp.Params().Set(message.ParamSpecificEndpointID, reply.SpecificEndpoint)
		g.alias(req.Endpoint, reply.SpecificEndpoint)
		endpoint = reply.SpecificEndpoint
	}

	tid, _ := requestTransaction(req)
	for _, ev := range reply.Notifications {
		g.Notify(transport.NotifyEvent{
			TransactionID: tid,
			Endpoint:      endpoint,
			Package:       ev.Package,
			EventCode:     ev.Code,
			Parameters:    ev.Parameters,
		})
	}

	return resp, nil
}

type subscriber struct {
	handler transport.NotifyHandler
}

// Subscribe реализует transport.Transport. На одно имя можно подписать
// несколько обработчиков, каждый получит все уведомления.
func (g *Gateway) Subscribe(endpoint string, handler transport.NotifyHandler) func() {
	sub := &subscriber{handler: handler}
	key := strings.ToLower(endpoint)
	g.mu.Lock()
	g.handlers[key] = append(g.handlers[key], sub)
	g.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			defer g.mu.Unlock()
			for name, list := range g.handlers {
				kept := list[:0:0]
				for _, s := range list {
					if s != sub {
						kept = append(kept, s)
					}
				}
				if len(kept) == 0 {
					delete(g.handlers, name)
				} else {
					g.handlers[name] = kept
				}
			}
		})
	}
}

func (g *Gateway) alias(wildcard, specific string) {
	from, to := strings.ToLower(wildcard), strings.ToLower(specific)
	if from == to {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
next:
	for _, sub := range g.handlers[from] {
		for _, existing := range g.handlers[to] {
			if existing == sub {
				continue next
			}
		}
		g.handlers[to] = append(g.handlers[to], sub)
	}
}

// Notify ставит уведомление в очередь доставки
func (g *Gateway) Notify(ev transport.NotifyEvent) {
	g.mu.Lock()
	g.notifyID++
	ev.NotifyID = g.notifyID
	g.mu.Unlock()
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = time.Now()
	}

	select {
	case g.queue <- func() { g.deliver(ev) }:
	case <-g.closed:
	}
}

func (g *Gateway) deliver(ev transport.NotifyEvent) {
	g.mu.Lock()
	subs := append([]*subscriber(nil), g.handlers[strings.ToLower(ev.Endpoint)]...)
	g.mu.Unlock()
	for _, sub := range subs {
		sub.handler(ev)
	}
}

func (g *Gateway) dispatch() {
	defer g.wg.Done()
	for {
		select {
		case fn := <-g.queue:
			fn()
		case <-g.closed:
			return
		}
	}
}

// Requests возвращает копию всех принятых команд
func (g *Gateway) Requests() []*message.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*message.Request, len(g.requests))
	copy(out, g.requests)
	return out
}

// LastRequest возвращает последнюю команду или nil
func (g *Gateway) LastRequest() *message.Request {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return nil
	}
	return g.requests[len(g.requests)-1]
}

// Close останавливает доставку уведомлений
func (g *Gateway) Close() error {
	g.closeOnce.Do(func() {
		close(g.closed)
		g.wg.Wait()
	})
	return nil
}
