package ivr

import "errors"

// CollectedResult данные успешного ответа endpoint'а.
// Пустой Text означает завершение (или отмену) сигнала.
type CollectedResult struct {
	Text  string
	IsAsr bool
}

// Response событие, которое получают наблюдатели endpoint'а
type Response struct {
	Succeeded bool
	// Result заполнен только для успешных ответов
	Result *CollectedResult
	// Cause заполнен только для неуспешных ответов
	Cause error
	// TransactionID транзакция, к которой относится событие
	TransactionID uint32
}

// IsCompletion последний ответ успешного жизненного цикла сигнала.
// Промежуточный результат с пустым asrr выглядит так же; различить их
// можно только по TransactionID и состоянию endpoint'а (после
// завершения он в idle, после промежуточного остается в active).
func (r Response) IsCompletion() bool {
	return r.Succeeded && r.Result != nil && r.Result.Text == ""
}

// CauseText текст ошибки или пустая строка
func (r Response) CauseText() string {
	if r.Cause == nil {
		return ""
	}
	return r.Cause.Error()
}

func success(tid uint32, text string) Response {
	return Response{
		Succeeded:     true,
		Result:        &CollectedResult{Text: text, IsAsr: true},
		TransactionID: tid,
	}
}

func failure(tid uint32, cause error) Response {
	var ie *IvrError
	if errors.As(cause, &ie) && ie.TransactionID == 0 {
		ie.TransactionID = tid
	}
	return Response{Cause: cause, TransactionID: tid}
}
