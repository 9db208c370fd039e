package message

// NewNotificationRequest builds an RQNT command. The request identifier
// is derived from the transaction id so that notifications can be
// correlated back to the transaction that armed them.
func NewNotificationRequest(id uint32, endpoint string, requested []EventName, signals ...EventName) *Request {
	req := &Request{
		Verb:     VerbNotificationRequest,
		ID:       id,
		Endpoint: endpoint,
		params:   NewParams(),
	}
	req.params.Add(ParamRequestIdentifier, RequestIdentifier(id))
	if len(requested) > 0 {
		req.params.Add(ParamRequestedEvents, JoinEvents(requested...))
	}
	if len(signals) > 0 {
		req.params.Add(ParamSignalRequests, JoinEvents(signals...))
	}
	return req
}

// NewNotify builds an NTFY command reporting observed events
func NewNotify(id uint32, endpoint, requestID string, observed ...EventName) *Request {
	req := &Request{
		Verb:     VerbNotify,
		ID:       id,
		Endpoint: endpoint,
		params:   NewParams(),
	}
	req.params.Add(ParamRequestIdentifier, requestID)
	req.params.Add(ParamObservedEvents, JoinEvents(observed...))
	return req
}

// NewResponse builds a response to the given transaction
func NewResponse(code int, id uint32, comment string) *Response {
	if comment == "" {
		comment = DefaultComment(code)
	}
	return &Response{Code: code, ID: id, Comment: comment, params: NewParams()}
}

// DefaultComment returns a conventional comment for a return code
func DefaultComment(code int) string {
	switch {
	case code == CodeTransactionBeingExecuted:
		return "Transaction being executed"
	case code == CodeTransactionQueued:
		return "Transaction queued"
	case code >= 200 && code < 300:
		return "OK"
	case code >= CodeTransientError && code < CodeEndpointUnknown:
		return "Transient error"
	case code == CodeEndpointUnknown:
		return "Endpoint unknown"
	case code == CodeProtocolError:
		return "Protocol error"
	default:
		return "Error"
	}
}
