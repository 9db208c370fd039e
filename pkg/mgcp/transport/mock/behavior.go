package mock

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
)

// Reply описывает реакцию шлюза на одну команду.
type Reply struct {
	// Code код возврата финального ответа
	Code int
	// Provisional отправить 100 перед финальным ответом
	Provisional bool
	// SpecificEndpoint значение Z: в ответе
	SpecificEndpoint string
	// Notifications события, которые шлюз сообщит после ответа (по порядку)
	Notifications []message.EventName
}

// Behavior сценарий шлюза: команда -> ответ и уведомления.
type Behavior func(req *message.Request) Reply

// Сигналы пакета AU, которые понимают сценарии
const (
	signalAsr = "asr"
	signalEnd = "es"
)

// SignalOf возвращает первый сигнал из S: команды
func SignalOf(req *message.Request) (message.EventName, bool) {
	events, err := message.ParseEventList(req.Params().Value(message.ParamSignalRequests))
	if err != nil || len(events) == 0 {
		return message.EventName{}, false
	}
	return events[0], true
}

func isSignal(req *message.Request, code string) bool {
	sig, ok := SignalOf(req)
	return ok && strings.EqualFold(sig.Package, "AU") && strings.EqualFold(sig.Code, code)
}

// OperationComplete AU/oc с заданными параметрами
func OperationComplete(params string) message.EventName {
	return message.NewEvent("AU", "oc", params)
}

// OperationFailed AU/of с заданными параметрами
func OperationFailed(params string) message.EventName {
	return message.NewEvent("AU", "of", params)
}

// InterimResult AU/oc(rc=101 asrr=<hex>)
func InterimResult(text string) message.EventName {
	return OperationComplete("rc=101 asrr=" + hex.EncodeToString([]byte(text)))
}

// Completed AU/oc(rc=100)
func Completed() message.EventName {
	return OperationComplete("rc=100")
}

// AsrBehavior успешное распознавание: interim промежуточных результатов
// с текстом text и завершающее rc=100. Остановка сигнала подтверждается rc=100.
func AsrBehavior(text string, interim int) Behavior {
	return func(req *message.Request) Reply {
		switch {
		case isSignal(req, signalAsr):
			notes := make([]message.EventName, 0, interim+1)
			for i := 0; i < interim; i++ {
				notes = append(notes, InterimResult(text))
			}
			notes = append(notes, Completed())
			return Reply{Code: message.CodeTransactionExecuted, Notifications: notes}
		case isSignal(req, signalEnd):
			return Reply{Code: message.CodeTransactionExecuted, Notifications: []message.EventName{Completed()}}
		default:
			return Reply{Code: message.CodeTransactionExecuted}
		}
	}
}

// FailingBehavior шлюз принимает сигнал и сообщает об ошибке rc
func FailingBehavior(rc int) Behavior {
	return func(req *message.Request) Reply {
		if isSignal(req, signalAsr) {
			return Reply{
				Code:          message.CodeTransactionExecuted,
				Notifications: []message.EventName{OperationFailed(fmt.Sprintf("rc=%d", rc))},
			}
		}
		return Reply{Code: message.CodeTransactionExecuted}
	}
}

// RejectingBehavior шлюз отклоняет любую команду кодом code
func RejectingBehavior(code int) Behavior {
	return func(*message.Request) Reply {
		return Reply{Code: code}
	}
}

// EndSignalBehavior один промежуточный результат, дальше тишина до
// команды AU/es, которая завершается rc=100.
func EndSignalBehavior(text string) Behavior {
	return func(req *message.Request) Reply {
		switch {
		case isSignal(req, signalEnd):
			return Reply{Code: message.CodeTransactionExecuted, Notifications: []message.EventName{Completed()}}
		case isSignal(req, signalAsr):
			return Reply{Code: message.CodeTransactionExecuted, Notifications: []message.EventName{InterimResult(text)}}
		default:
			return Reply{Code: message.CodeTransactionExecuted}
		}
	}
}

// ManualBehavior подтверждает команды и ничего не сообщает;
// уведомления тест отправляет сам через Gateway.Notify.
func ManualBehavior() Behavior {
	return func(*message.Request) Reply {
		return Reply{Code: message.CodeTransactionExecuted}
	}
}

// WithSpecificEndpoint добавляет Z: ко всем успешным ответам
func WithSpecificEndpoint(b Behavior, specific string) Behavior {
	return func(req *message.Request) Reply {
		r := b(req)
		if r.Code >= 200 && r.Code < 300 {
			r.SpecificEndpoint = specific
		}
		return r
	}
}

// requestTransaction ID транзакции, который шлюз вернет в X: уведомлений
func requestTransaction(req *message.Request) (uint32, string) {
	x := req.Params().Value(message.ParamRequestIdentifier)
	if x == "" {
		return req.ID, message.RequestIdentifier(req.ID)
	}
	id, err := message.ParseRequestIdentifier(x)
	if err != nil {
		return req.ID, x
	}
	return id, x
}
