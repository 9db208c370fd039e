package transport

import (
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTransportClosed is returned when operation is attempted on closed transport
	ErrTransportClosed = errors.New("transport closed")

	// ErrRequestTimeout is returned when the gateway did not acknowledge a command in time
	ErrRequestTimeout = errors.New("request timeout")

	// ErrDuplicateTransaction is returned when a transaction id is already pending
	ErrDuplicateTransaction = errors.New("transaction already pending")

	// ErrInvalidAddress is returned for malformed addresses
	ErrInvalidAddress = errors.New("invalid address")
)

// TransportError network level error with operation context
type TransportError struct {
	Transport string
	Operation string
	Err       error
	Temporary bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Transport, e.Operation, e.Err)
}

// Unwrap позволяет использовать errors.Is и errors.As
func (e *TransportError) Unwrap() error {
	return e.Err
}

func isTemporaryError(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
