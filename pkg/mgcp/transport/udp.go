package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arzzra/ivr_control/pkg/logging"
	"github.com/arzzra/ivr_control/pkg/mgcp/message"
)

// UDPConfig настройки UDP транспорта
type UDPConfig struct {
	// LocalAddr адрес call agent'а, например "0.0.0.0:2727"
	LocalAddr string
	// GatewayAddr адрес медиашлюза, например "127.0.0.1:2427"
	GatewayAddr string
	// RequestTimeout ожидание финального ответа, если у ctx нет deadline
	RequestTimeout time.Duration

	Logger logging.Logger
}

// DefaultRequestTimeout ожидание ответа по умолчанию
const DefaultRequestTimeout = 5 * time.Second

// UDPTransport MGCP транспорт поверх UDP
type UDPTransport struct {
	conn    *net.UDPConn
	gateway *net.UDPAddr
	parser  *message.Parser
	timeout time.Duration
	logger  logging.Logger

	pending *pendingStore
	subs    *subscriptions

	closed  atomic.Bool
	done    chan struct{}
	stats   Stats
	statsMu sync.Mutex
	wg      sync.WaitGroup
}

var _ Transport = (*UDPTransport)(nil)

// NewUDPTransport открывает сокет и запускает чтение
func NewUDPTransport(cfg UDPConfig) (*UDPTransport, error) {
	local, err := net.ResolveUDPAddr("udp", cfg.LocalAddr)
	if err != nil {
		return nil, &TransportError{Transport: "udp", Operation: "resolve local address", Err: fmt.Errorf("%w: %v", ErrInvalidAddress, err)}
	}
	gateway, err := net.ResolveUDPAddr("udp", cfg.GatewayAddr)
	if err != nil {
		return nil, &TransportError{Transport: "udp", Operation: "resolve gateway address", Err: fmt.Errorf("%w: %v", ErrInvalidAddress, err)}
	}

	conn, err := net.ListenUDP("udp", local)
	if err != nil {
		return nil, &TransportError{Transport: "udp", Operation: "listen", Err: err}
	}

	t := &UDPTransport{
		conn:    conn,
		gateway: gateway,
		parser:  message.NewParser(false),
		timeout: cfg.RequestTimeout,
		logger:  cfg.Logger,
		pending: newPendingStore(),
		subs:    newSubscriptions(),
		done:    make(chan struct{}),
	}
	if t.timeout <= 0 {
		t.timeout = DefaultRequestTimeout
	}
	if t.logger == nil {
		t.logger = logging.NewNop()
	}
	t.logger = t.logger.WithComponent("mgcp-udp").WithFields(
		logging.String("local", conn.LocalAddr().String()),
		logging.String("gateway", gateway.String()),
	)

	t.wg.Add(1)
	go t.readLoop()

	return t, nil
}

// LocalAddr возвращает фактический адрес сокета
func (t *UDPTransport) LocalAddr() net.Addr {
	return t.conn.LocalAddr()
}

// SendRequest отправляет команду и ждет финального ответа
func (t *UDPTransport) SendRequest(ctx context.Context, req *message.Request) (*message.Response, error) {
	if t.closed.Load() {
		return nil, &TransportError{Transport: "udp", Operation: "send", Err: ErrTransportClosed}
	}

	p, err := t.pending.add(req)
	if err != nil {
		return nil, &TransportError{Transport: "udp", Operation: "send", Err: err}
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if _, err := t.conn.WriteToUDP(req.Bytes(), t.gateway); err != nil {
		t.pending.remove(req.ID)
		t.incErrors()
		return nil, &TransportError{Transport: "udp", Operation: "send", Err: err, Temporary: isTemporaryError(err)}
	}
	t.incSent()

	t.logger.Debug(ctx, "request sent",
		logging.String("verb", req.Verb),
		logging.Uint32("transaction_id", req.ID),
		logging.String("endpoint", req.Endpoint),
	)

	select {
	case resp := <-p.response:
		t.logger.Debug(ctx, "response received",
			logging.Uint32("transaction_id", resp.ID),
			logging.Int("code", resp.Code),
			logging.Duration("rtt", time.Since(p.sentAt)),
		)
		return resp, nil
	case <-ctx.Done():
		t.pending.remove(req.ID)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			t.incTimeouts()
			return nil, &TransportError{Transport: "udp", Operation: "await response", Err: ErrRequestTimeout, Temporary: true}
		}
		return nil, &TransportError{Transport: "udp", Operation: "await response", Err: ctx.Err()}
	case <-t.done:
		return nil, &TransportError{Transport: "udp", Operation: "await response", Err: ErrTransportClosed}
	}
}

// Subscribe регистрирует обработчик уведомлений endpoint'а
func (t *UDPTransport) Subscribe(endpoint string, handler NotifyHandler) func() {
	return t.subs.add(endpoint, handler)
}

// Close закрывает сокет и дожидается остановки чтения
func (t *UDPTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(t.done)
	err := t.conn.Close()
	t.wg.Wait()
	return err
}

// Stats возвращает счетчики транспорта
func (t *UDPTransport) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	s := t.stats
	s.Pending = t.pending.count()
	s.PendingMaxObserved = t.pending.maxObserved()
	return s
}

func (t *UDPTransport) readLoop() {
	defer t.wg.Done()

	buf := make([]byte, message.MaxMessageSize)
	for !t.closed.Load() {
		n, addr, err := t.conn.ReadFromUDP(buf)
		if err != nil {
			if t.closed.Load() {
				return
			}
			t.incErrors()
			t.logger.Warn(context.Background(), "read failed", logging.Err(err))
			continue
		}

		data := make([]byte, n)
		copy(data, buf[:n])

		msg, err := t.parser.ParseMessage(data)
		if err != nil {
			t.incErrors()
			t.logger.Warn(context.Background(), "malformed message dropped",
				logging.String("from", addr.String()), logging.Err(err))
			continue
		}

		switch m := msg.(type) {
		case *message.Response:
			t.handleResponse(m)
		case *message.Request:
			t.handleRequest(m, addr)
		}
	}
}

// handleResponse доставляет финальный ответ ожидающей команде.
// Если шлюз сообщил конкретное имя endpoint'а (Z:), уведомления для
// него будут направлены подписчикам wildcard имени еще до того, как
// ответ попадет к отправителю.
func (t *UDPTransport) handleResponse(resp *message.Response) {
	t.statsMu.Lock()
	t.stats.ResponsesReceived++
	t.statsMu.Unlock()

	if resp.IsProvisional() {
		return
	}

	if specific := resp.Params().Value(message.ParamSpecificEndpointID); specific != "" {
		if p, ok := t.pending.get(resp.ID); ok {
			t.subs.alias(p.request.Endpoint, specific)
		}
	}

	if !t.pending.resolve(resp) {
		t.logger.Debug(context.Background(), "response for unknown transaction dropped",
			logging.Uint32("transaction_id", resp.ID), logging.Int("code", resp.Code))
	}
}

// handleRequest обрабатывает команды от шлюза. Поддерживается только NTFY.
func (t *UDPTransport) handleRequest(req *message.Request, from *net.UDPAddr) {
	if req.Verb != message.VerbNotify {
		t.reply(message.NewResponse(504, req.ID, "Unknown or unsupported command"), from)
		return
	}

	t.statsMu.Lock()
	t.stats.NotifiesReceived++
	t.statsMu.Unlock()

	events, err := notifyEvents(req)
	if err != nil {
		t.incErrors()
		t.logger.Warn(context.Background(), "malformed notify", logging.Uint32("transaction_id", req.ID), logging.Err(err))
		t.reply(message.NewResponse(message.CodeProtocolError, req.ID, ""), from)
		return
	}
	// X: уже проверен в notifyEvents
	tid, _ := message.ParseRequestIdentifier(req.Params().Value(message.ParamRequestIdentifier))
	handlers := t.route(req.Endpoint, tid)
	if len(handlers) == 0 {
		t.statsMu.Lock()
		t.stats.NotifiesUnrouted++
		t.statsMu.Unlock()
		t.logger.Debug(context.Background(), "notify for unsubscribed endpoint", logging.String("endpoint", req.Endpoint))
		t.reply(message.NewResponse(message.CodeEndpointUnknown, req.ID, ""), from)
		return
	}
	t.reply(message.NewResponse(message.CodeTransactionExecuted, req.ID, ""), from)

	for _, ev := range events {
		for _, handler := range handlers {
			handler(ev)
		}
	}
}

// route находит подписчиков NTFY. Шлюз может прислать NTFY раньше
// ответа на RQNT с Z:, тогда specific имя связывается с wildcard
// по X: ожидающей команды.
func (t *UDPTransport) route(endpoint string, tid uint32) []NotifyHandler {
	if handlers := t.subs.lookup(endpoint); len(handlers) > 0 {
		return handlers
	}
	p, ok := t.pending.get(tid)
	if !ok || p.request.Verb != message.VerbNotificationRequest {
		return nil
	}
	if t.subs.alias(p.request.Endpoint, endpoint) {
		t.logger.Debug(context.Background(), "notify routed by request identifier",
			logging.Uint32("transaction_id", tid),
			logging.String("wildcard", p.request.Endpoint),
			logging.String("endpoint", endpoint))
	}
	return t.subs.lookup(endpoint)
}

func (t *UDPTransport) reply(resp *message.Response, to *net.UDPAddr) {
	if _, err := t.conn.WriteToUDP(resp.Bytes(), to); err != nil {
		t.incErrors()
		t.logger.Warn(context.Background(), "reply failed", logging.Err(err))
	}
}

func (t *UDPTransport) incSent() {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.stats.RequestsSent++
}

func (t *UDPTransport) incErrors() {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.stats.Errors++
}

func (t *UDPTransport) incTimeouts() {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	t.stats.RequestTimeouts++
}
