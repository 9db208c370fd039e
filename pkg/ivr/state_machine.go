package ivr

import (
	"context"

	"github.com/looplab/fsm"

	"github.com/arzzra/ivr_control/pkg/logging"
)

// State состояние IVR endpoint'а
type State string

const (
	// StateIdle нет активного сигнала
	StateIdle State = "idle"
	// StateRequestSent сигнал отправлен, ждем подтверждения шлюза
	StateRequestSent State = "request_sent"
	// StateActive шлюз выполняет сигнал, приходят уведомления
	StateActive State = "active"
	// StateCancelSent отправлена команда остановки сигнала
	StateCancelSent State = "cancel_sent"
	// StateFailed ошибка, сразу после уведомления наблюдателей переходим в idle
	StateFailed State = "failed"
)

func (s State) String() string {
	return string(s)
}

// События автомата
const (
	eventStart     = "start"
	eventAck       = "ack"
	eventComplete  = "complete"
	eventCancel    = "cancel"
	eventCancelled = "cancelled"
	eventFail      = "fail"
	eventReset     = "reset"
)

// newStateMachine создает автомат жизненного цикла сигнала.
// Все вызовы Event выполняются только из цикла endpoint'а.
func newStateMachine(logger logging.Logger, metrics *Metrics) *fsm.FSM {
	idle := StateIdle.String()
	sent := StateRequestSent.String()
	active := StateActive.String()
	cancel := StateCancelSent.String()
	failed := StateFailed.String()

	return fsm.NewFSM(
		idle,
		fsm.Events{
			// Отправка сигнала
			{Name: eventStart, Src: []string{idle}, Dst: sent},
			// Нормальное подтверждение
			{Name: eventAck, Src: []string{sent}, Dst: active},
			// Сигнал завершен (rc=100)
			{Name: eventComplete, Src: []string{active}, Dst: idle},
			// Остановка сигнала
			{Name: eventCancel, Src: []string{sent, active}, Dst: cancel},
			// Остановка подтверждена
			{Name: eventCancelled, Src: []string{cancel}, Dst: idle},
			// Любая ошибка
			{Name: eventFail, Src: []string{sent, active, cancel}, Dst: failed},
			{Name: eventReset, Src: []string{failed}, Dst: idle},
		},
		fsm.Callbacks{
			"enter_state": func(ctx context.Context, e *fsm.Event) {
				metrics.transition(e.Src, e.Dst, e.Event)
				logger.Debug(ctx, "state changed",
					logging.String("from", e.Src),
					logging.String("to", e.Dst),
					logging.String("event", e.Event))
			},
		},
	)
}
