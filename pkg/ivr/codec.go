package ivr

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
	"github.com/arzzra/ivr_control/pkg/mgcp/transport"
)

// Ключи параметров сигнала AU/asr
const (
	keyDriver      = "dr"
	keyLanguage    = "ln"
	keyPrompts     = "ip"
	keyEndInputKey = "eik"
	keyMaxDuration = "mt"
	keyWaitingTime = "wt"
	keyPostSpeech  = "pst"
	keyHints       = "hw"

	keyReturnCode = "rc"
	keyAsrResult  = "asrr"
	keySignal     = "sg"
)

// Коды возврата в параметре rc уведомлений AU
const (
	ReturnCodeSuccess = 100
	ReturnCodePartial = 101
)

// EncodeAsrSignal параметры сигнала AU/asr без имени сигнала и скобок
func EncodeAsrSignal(sig *AsrSignal) string {
	parts := make([]string, 0, 8)
	parts = append(parts,
		keyDriver+"="+sig.driver,
		keyLanguage+"="+sig.language,
	)
	if len(sig.prompts) > 0 {
		uris := make([]string, len(sig.prompts))
		for i, u := range sig.prompts {
			uris[i] = u.String()
		}
		parts = append(parts, keyPrompts+"="+strings.Join(uris, ","))
	}
	if sig.endInputKey != "" {
		parts = append(parts, keyEndInputKey+"="+sig.endInputKey)
	}
	parts = append(parts,
		keyMaxDuration+"="+strconv.FormatInt(int64(sig.maxDuration/timerUnit), 10),
		keyWaitingTime+"="+strconv.FormatInt(int64(sig.waitingTime/timerUnit), 10),
		keyPostSpeech+"="+strconv.FormatInt(int64(sig.postSpeechTime/timerUnit), 10),
	)
	if sig.hints != "" {
		parts = append(parts, keyHints+"="+EncodeHex(sig.hints))
	}
	return strings.Join(parts, " ")
}

// AsrSignalEvent сигнал для строки S: команды RQNT
func AsrSignalEvent(sig *AsrSignal) message.EventName {
	return message.NewEvent(PackageAdvancedAudio, SignalAsr, EncodeAsrSignal(sig))
}

// EncodeStopSignal AU/es(sg=<signal>)
func EncodeStopSignal(signal string) string {
	return StopSignalEvent(signal).String()
}

// StopSignalEvent сигнал остановки для строки S: команды RQNT
func StopSignalEvent(signal string) message.EventName {
	return message.NewEvent(PackageAdvancedAudio, SignalEnd, keySignal+"="+signal)
}

// EncodeHex кодирует UTF-8 текст в шестнадцатеричную строку
func EncodeHex(s string) string {
	return hex.EncodeToString([]byte(s))
}

// DecodeHex обратная операция к EncodeHex. Нечетная длина, недопустимые
// символы и не-UTF-8 результат считаются ошибкой.
func DecodeHex(s string) (string, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("decoded payload is not valid UTF-8")
	}
	return string(b), nil
}

// Outcome результат разбора ответа или уведомления шлюза.
// Варианты: Acknowledgment, InterimResult, FinalResult, Failure.
type Outcome interface {
	ReturnCode() int
	outcome()
}

// Acknowledgment шлюз принял команду
type Acknowledgment struct {
	Code int
	// SpecificEndpoint имя endpoint'а из Z:, если шлюз его сообщил
	SpecificEndpoint string
}

// InterimResult промежуточный текст распознавания
type InterimResult struct {
	Code int
	Text string
}

// FinalResult сигнал завершен
type FinalResult struct {
	Code int
}

// Failure команда или сигнал завершились ошибкой
type Failure struct {
	Code  int
	Cause error
}

func (a Acknowledgment) ReturnCode() int { return a.Code }
func (r InterimResult) ReturnCode() int  { return r.Code }
func (r FinalResult) ReturnCode() int    { return r.Code }
func (f Failure) ReturnCode() int        { return f.Code }

func (Acknowledgment) outcome() {}
func (InterimResult) outcome()  {}
func (FinalResult) outcome()    {}
func (Failure) outcome()        {}

// IsFinal завершает ли исход текущий жизненный цикл сигнала
func IsFinal(o Outcome) bool {
	switch o.(type) {
	case FinalResult, Failure:
		return true
	default:
		return false
	}
}

// parseParameters разбирает "k=v k=v". Повторный ключ перезаписывает предыдущий.
func parseParameters(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, tok := range strings.Fields(s) {
		k, v, ok := strings.Cut(tok, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("token %q is not key=value", tok)
		}
		out[strings.ToLower(k)] = v
	}
	return out, nil
}

// DecodeNotification разбирает параметры события AU/oc или AU/of.
// Функция тотальная: любой некорректный ввод превращается в Failure.
func DecodeNotification(ev transport.NotifyEvent) Outcome {
	params, err := parseParameters(ev.Parameters)
	if err != nil {
		return Failure{Cause: errDecode(ev.Parameters, err)}
	}

	raw, ok := params[keyReturnCode]
	if !ok {
		return Failure{Cause: errDecode(ev.Parameters, errors.New("missing rc"))}
	}
	rc, err := strconv.Atoi(raw)
	if err != nil {
		return Failure{Cause: errDecode(ev.Parameters, fmt.Errorf("rc %q: %w", raw, err))}
	}

	switch rc {
	case ReturnCodeSuccess:
		return FinalResult{Code: rc}
	case ReturnCodePartial:
		payload, ok := params[keyAsrResult]
		if !ok {
			return Failure{Code: rc, Cause: errDecode(ev.Parameters, errors.New("missing asrr"))}
		}
		text, err := DecodeHex(payload)
		if err != nil {
			return Failure{Code: rc, Cause: errDecode(ev.Parameters, err)}
		}
		return InterimResult{Code: rc, Text: text}
	default:
		return Failure{Code: rc, Cause: errRecognition(rc)}
	}
}

// DecodeAcknowledgment разбирает финальный ответ на команду.
// Ошибка транспорта тоже превращается в Failure.
func DecodeAcknowledgment(resp *message.Response, err error) Outcome {
	if err != nil {
		return Failure{Cause: errTransport(err)}
	}
	if resp == nil {
		return Failure{Cause: errTransport(errors.New("no response"))}
	}
	if !resp.IsSuccess() {
		return Failure{Code: resp.Code, Cause: errAdmission(resp.Code, resp.Comment)}
	}
	return Acknowledgment{
		Code:             resp.Code,
		SpecificEndpoint: resp.Params().Value(message.ParamSpecificEndpointID),
	}
}
