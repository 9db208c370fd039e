package ivr

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"github.com/arzzra/ivr_control/pkg/logging"
	"github.com/arzzra/ivr_control/pkg/mgcp/message"
	"github.com/arzzra/ivr_control/pkg/mgcp/transaction"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport"
)

// DefaultMailboxSize размер очереди сообщений endpoint'а по умолчанию
const DefaultMailboxSize = 64

// EndpointConfig параметры IVR endpoint'а
type EndpointConfig struct {
	// Session медиа-сессия, к которой привязан endpoint
	Session *MediaSession
	// Address имя endpoint'а на шлюзе, может быть wildcard (ivr/$@mgw)
	Address string
	// Transport обязателен
	Transport transport.Transport
	// Allocator источник ID транзакций; по умолчанию собственный счетчик
	Allocator transaction.Allocator

	MailboxSize int
	Logger      logging.Logger
	Metrics     *Metrics
}

// Endpoint управляет жизненным циклом сигналов распознавания на одном
// endpoint'е шлюза. Все изменения состояния выполняются в одной горутине,
// которая читает mailbox; публичные методы только отправляют в нее сообщения.
type Endpoint struct {
	session   *MediaSession
	transport transport.Transport
	allocator transaction.Allocator
	observers *ObserverRegistry
	outbox    *dispatcher

	// Поля ниже принадлежат циклу endpoint'а
	fsm     *fsm.FSM
	pending uint32
	acked   bool

	addrMu  sync.RWMutex
	address string

	mailbox     chan any
	ctx         context.Context
	cancel      context.CancelFunc
	stopped     chan struct{}
	inflight    sync.WaitGroup
	unsubscribe func()
	closeOnce   sync.Once
	onClose     func(*Endpoint)

	logger  logging.Logger
	metrics *Metrics
}

// Сообщения mailbox'а
type (
	startMsg struct {
		signal *AsrSignal
		reply  chan error
	}
	stopMsg struct {
		reply chan error
	}
	ackMsg struct {
		tid     uint32
		resp    *message.Response
		err     error
		latency time.Duration
	}
	notifyMsg struct {
		event transport.NotifyEvent
	}
)

// NewEndpoint создает endpoint и запускает его цикл
func NewEndpoint(cfg EndpointConfig) (*Endpoint, error) {
	if cfg.Transport == nil {
		return nil, errors.New("ivr: transport is required")
	}
	if cfg.Address == "" {
		return nil, errors.New("ivr: endpoint address is required")
	}
	if cfg.Allocator == nil {
		cfg.Allocator = transaction.NewCounter(0)
	}
	if cfg.MailboxSize <= 0 {
		cfg.MailboxSize = DefaultMailboxSize
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNop()
	}

	fields := []logging.Field{logging.String("endpoint", cfg.Address)}
	if cfg.Session != nil {
		fields = append(fields, logging.String("session", cfg.Session.String()))
	}
	logger := cfg.Logger.WithComponent("ivr-endpoint").WithFields(fields...)

	ctx, cancel := context.WithCancel(context.Background())
	observers := NewObserverRegistry(logger, cfg.Metrics)
	e := &Endpoint{
		session:   cfg.Session,
		transport: cfg.Transport,
		allocator: cfg.Allocator,
		observers: observers,
		outbox:    newDispatcher(observers),
		fsm:       newStateMachine(logger, cfg.Metrics),
		address:   cfg.Address,
		mailbox:   make(chan any, cfg.MailboxSize),
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
		logger:    logger,
		metrics:   cfg.Metrics,
	}

	e.unsubscribe = cfg.Transport.Subscribe(cfg.Address, func(ev transport.NotifyEvent) {
		e.post(notifyMsg{event: ev})
	})
	e.metrics.endpointOpened()

	go e.run()
	return e, nil
}

// Session медиа-сессия endpoint'а
func (e *Endpoint) Session() *MediaSession {
	return e.session
}

// Address текущее имя endpoint'а. После первого подтверждения с Z:
// wildcard имя заменяется конкретным.
func (e *Endpoint) Address() string {
	e.addrMu.RLock()
	defer e.addrMu.RUnlock()
	return e.address
}

// State текущее состояние
func (e *Endpoint) State() State {
	return State(e.fsm.Current())
}

// Subscribe добавляет наблюдателя ответов
func (e *Endpoint) Subscribe(l Listener) SubscriptionID {
	return e.observers.Subscribe(l)
}

// Unsubscribe удаляет наблюдателя
func (e *Endpoint) Unsubscribe(id SubscriptionID) bool {
	return e.observers.Unsubscribe(id)
}

// Start запускает распознавание. Возвращает ErrEndpointBusy, если
// предыдущий сигнал еще не завершен. Результаты приходят наблюдателям.
func (e *Endpoint) Start(ctx context.Context, sig *AsrSignal) error {
	if sig == nil {
		return ErrInvalidSignal
	}
	reply := make(chan error, 1)
	return e.call(ctx, startMsg{signal: sig, reply: reply}, reply)
}

// Stop останавливает активный сигнал командой AU/es. Возвращает
// ErrNoActiveSignal, если останавливать нечего.
func (e *Endpoint) Stop(ctx context.Context) error {
	reply := make(chan error, 1)
	return e.call(ctx, stopMsg{reply: reply}, reply)
}

// Close останавливает цикл endpoint'а и отписывается от транспорта.
// Повторный вызов безопасен, в том числе из наблюдателя. Ответы,
// выданные до Close, доставляются наблюдателям.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() {
		e.cancel()
		<-e.stopped
		e.inflight.Wait()
		e.unsubscribe()
		e.outbox.close()
		e.metrics.endpointClosed()
		if e.onClose != nil {
			e.onClose(e)
		}
		e.logger.Debug(context.Background(), "endpoint closed")
	})
	return nil
}

func (e *Endpoint) call(ctx context.Context, msg any, reply chan error) error {
	select {
	case e.mailbox <- msg:
	case <-e.ctx.Done():
		return ErrEndpointClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-reply:
		return err
	case <-e.ctx.Done():
		return ErrEndpointClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Endpoint) post(msg any) {
	select {
	case e.mailbox <- msg:
	case <-e.ctx.Done():
	}
}

func (e *Endpoint) run() {
	defer close(e.stopped)
	for {
		select {
		case <-e.ctx.Done():
			return
		case msg := <-e.mailbox:
			e.handle(msg)
		}
	}
}

func (e *Endpoint) handle(msg any) {
	switch m := msg.(type) {
	case startMsg:
		m.reply <- e.handleStart(m.signal)
	case stopMsg:
		m.reply <- e.handleStop()
	case ackMsg:
		e.handleAck(m)
	case notifyMsg:
		e.handleNotify(m.event)
	}
}

func (e *Endpoint) handleStart(sig *AsrSignal) error {
	if e.State() != StateIdle {
		return ErrEndpointBusy
	}

	tid := e.allocator.Next()
	req := message.NewNotificationRequest(tid, e.Address(), requestedEvents(), AsrSignalEvent(sig))

	e.pending = tid
	e.acked = false
	e.fire(eventStart)
	e.metrics.signalSent(SignalAsr)

	e.logger.Info(e.ctx, "asr signal sent",
		logging.Uint32("transaction_id", tid),
		logging.String("driver", sig.Driver()),
		logging.String("language", sig.Language()))
	e.send(req)
	return nil
}

func (e *Endpoint) handleStop() error {
	switch e.State() {
	case StateRequestSent, StateActive:
	default:
		return ErrNoActiveSignal
	}

	tid := e.allocator.Next()
	req := message.NewNotificationRequest(tid, e.Address(), requestedEvents(), StopSignalEvent(SignalAsr))

	e.pending = tid
	e.acked = false
	e.fire(eventCancel)
	e.metrics.signalSent(SignalEnd)

	e.logger.Info(e.ctx, "stop signal sent", logging.Uint32("transaction_id", tid))
	e.send(req)
	return nil
}

func (e *Endpoint) handleAck(m ackMsg) {
	// Z: описывает endpoint даже в устаревшем подтверждении
	if m.err == nil && m.resp != nil && m.resp.IsSuccess() {
		e.learnAddress(m.resp.Params().Value(message.ParamSpecificEndpointID))
	}
	if m.tid != e.pending || e.pending == 0 {
		e.discard("ack", m.tid)
		return
	}
	e.metrics.acknowledged(m.latency)

	switch o := DecodeAcknowledgment(m.resp, m.err).(type) {
	case Failure:
		if e.acked {
			// уведомление уже пришло, значит шлюз команду принял
			e.discard("ack", m.tid)
			return
		}
		e.fail(o.Cause)
	case Acknowledgment:
		if e.acked {
			return
		}
		e.acked = true
		if e.State() == StateRequestSent {
			e.fire(eventAck)
		}
	}
}

func (e *Endpoint) handleNotify(ev transport.NotifyEvent) {
	if !strings.EqualFold(ev.Package, PackageAdvancedAudio) {
		e.discard("foreign", ev.TransactionID)
		return
	}
	if ev.TransactionID != e.pending || e.pending == 0 {
		e.discard("notify", ev.TransactionID)
		return
	}

	// Уведомление обогнало подтверждение
	if !e.acked {
		e.logger.Debug(e.ctx, "notify before acknowledgment",
			logging.Uint32("transaction_id", ev.TransactionID),
			logging.Bool("implicit_ack", true))
		e.acked = true
		if e.State() == StateRequestSent {
			e.fire(eventAck)
		}
	}

	switch o := DecodeNotification(ev).(type) {
	case InterimResult:
		e.emit(success(e.pending, o.Text), false)
	case FinalResult:
		tid := e.pending
		event := eventComplete
		if e.State() == StateCancelSent {
			event = eventCancelled
		}
		e.clear()
		e.emit(success(tid, ""), true)
		e.fire(event)
	case Failure:
		e.fail(o.Cause)
	}
}

// fail завершает жизненный цикл ошибкой: failed, один ответ наблюдателям, idle
func (e *Endpoint) fail(cause error) {
	tid := e.pending
	e.clear()

	category := ErrorCategory("UNKNOWN")
	var ie *IvrError
	if errors.As(cause, &ie) {
		category = ie.Category
	}
	e.metrics.failure(category)
	e.logger.Warn(e.ctx, "ivr signal failed",
		logging.Uint32("transaction_id", tid),
		logging.String("category", category.String()),
		logging.Err(cause))

	e.fire(eventFail)
	e.emit(failure(tid, cause), true)
	e.fire(eventReset)
}

func (e *Endpoint) clear() {
	e.pending = 0
	e.acked = false
}

func (e *Endpoint) emit(r Response, final bool) {
	e.metrics.responseEmitted(r, final)
	e.outbox.push(r)
}

func (e *Endpoint) fire(event string) {
	if err := e.fsm.Event(e.ctx, event); err != nil {
		e.logger.Error(e.ctx, "invalid state transition",
			logging.String("event", event),
			logging.String("state", e.fsm.Current()),
			logging.Err(err))
	}
}

func (e *Endpoint) discard(kind string, tid uint32) {
	e.metrics.discarded(kind)
	e.logger.Debug(e.ctx, "stale message discarded",
		logging.String("kind", kind),
		logging.Uint32("transaction_id", tid),
		logging.Uint32("pending", e.pending))
}

func (e *Endpoint) learnAddress(specific string) {
	if specific == "" {
		return
	}
	e.addrMu.Lock()
	defer e.addrMu.Unlock()
	if strings.EqualFold(e.address, specific) {
		return
	}
	e.logger.Info(e.ctx, "specific endpoint learned",
		logging.String("wildcard", e.address),
		logging.String("specific", specific))
	e.address = specific
}

// send отправляет команду в отдельной горутине; ответ возвращается в mailbox
func (e *Endpoint) send(req *message.Request) {
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		sentAt := time.Now()
		resp, err := e.transport.SendRequest(e.ctx, req)
		e.post(ackMsg{tid: req.ID, resp: resp, err: err, latency: time.Since(sentAt)})
	}()
}

// requestedEvents R: AU/oc(N),AU/of(N)
func requestedEvents() []message.EventName {
	return []message.EventName{
		message.NewEvent(PackageAdvancedAudio, EventOperationComplete, "N"),
		message.NewEvent(PackageAdvancedAudio, EventOperationFailed, "N"),
	}
}
