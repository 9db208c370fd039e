package ivr

import (
	"errors"
	"fmt"
)

// ErrorCategory категории ошибок IVR endpoint'а
type ErrorCategory string

const (
	// Шлюз отклонил команду (ненормальный ответ на RQNT)
	ErrorCategoryAdmission ErrorCategory = "ADMISSION"
	// Шлюз сообщил об ошибке распознавания (rc вне {100,101})
	ErrorCategoryRecognition ErrorCategory = "RECOGNITION"
	// Параметры уведомления не удалось разобрать
	ErrorCategoryDecode ErrorCategory = "DECODE"
	// Транспорт не доставил команду или не дождался ответа
	ErrorCategoryTransport ErrorCategory = "TRANSPORT"
)

// String возвращает строковое представление категории ошибки
func (ec ErrorCategory) String() string {
	return string(ec)
}

var (
	// ErrAdmissionRejected шлюз отклонил команду
	ErrAdmissionRejected = errors.New("request rejected by media gateway")
	// ErrRecognitionFailed шлюз сообщил об ошибке выполнения сигнала
	ErrRecognitionFailed = errors.New("recognition failed")
	// ErrDecode параметры уведомления некорректны
	ErrDecode = errors.New("malformed notification parameters")
	// ErrTransport ошибка транспорта
	ErrTransport = errors.New("media gateway transport failure")

	// ErrEndpointBusy endpoint уже выполняет сигнал
	ErrEndpointBusy = errors.New("endpoint busy")
	// ErrNoActiveSignal нечего останавливать
	ErrNoActiveSignal = errors.New("no active signal")
	// ErrEndpointClosed endpoint закрыт
	ErrEndpointClosed = errors.New("endpoint closed")
	// ErrInvalidSignal сигнал не прошел валидацию
	ErrInvalidSignal = errors.New("invalid signal")

	// ErrUnknownSession сессия не создавалась этим контроллером или уже уничтожена
	ErrUnknownSession = errors.New("unknown media session")
	// ErrControllerClosed контроллер закрыт
	ErrControllerClosed = errors.New("controller closed")
)

// IvrError ошибка, которую получают наблюдатели в Response.Cause
type IvrError struct {
	// Code короткий машинный код ошибки
	Code     string
	Category ErrorCategory
	Message  string
	// ReturnCode код возврата шлюза (0 если его нет)
	ReturnCode int
	// TransactionID транзакция, в которой произошла ошибка
	TransactionID uint32
	// Cause исходная ошибка
	Cause error
}

// Error реализует интерфейс error
func (e *IvrError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *IvrError) Unwrap() error {
	return e.Cause
}

// Is сопоставляет ошибку с sentinel-ошибкой ее категории
func (e *IvrError) Is(target error) bool {
	switch target {
	case ErrAdmissionRejected:
		return e.Category == ErrorCategoryAdmission
	case ErrRecognitionFailed:
		return e.Category == ErrorCategoryRecognition
	case ErrDecode:
		return e.Category == ErrorCategoryDecode
	case ErrTransport:
		return e.Category == ErrorCategoryTransport
	}
	return false
}

// Предопределенные ошибки для частых случаев

func errRecognition(code int) *IvrError {
	return &IvrError{
		Code:       "RECOGNITION_FAILED",
		Category:   ErrorCategoryRecognition,
		Message:    fmt.Sprintf("The IVR request failed with the following error code %d", code),
		ReturnCode: code,
	}
}

func errAdmission(code int, comment string) *IvrError {
	msg := fmt.Sprintf("The IVR request was rejected by the media gateway with return code %d", code)
	if comment != "" {
		msg += " (" + comment + ")"
	}
	return &IvrError{
		Code:       "REQUEST_REJECTED",
		Category:   ErrorCategoryAdmission,
		Message:    msg,
		ReturnCode: code,
	}
}

func errDecode(params string, cause error) *IvrError {
	return &IvrError{
		Code:     "MALFORMED_NOTIFICATION",
		Category: ErrorCategoryDecode,
		Message:  fmt.Sprintf("Could not decode IVR notification %q", params),
		Cause:    cause,
	}
}

func errTransport(cause error) *IvrError {
	return &IvrError{
		Code:     "TRANSPORT_FAILED",
		Category: ErrorCategoryTransport,
		Message:  "The IVR request could not be delivered to the media gateway",
		Cause:    cause,
	}
}

// ReturnCodeOf извлекает код возврата шлюза из ошибки
func ReturnCodeOf(err error) (int, bool) {
	var ie *IvrError
	if errors.As(err, &ie) && ie.ReturnCode != 0 {
		return ie.ReturnCode, true
	}
	return 0, false
}
