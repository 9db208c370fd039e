package message

import "errors"

var (
	// Parser errors
	ErrInvalidMessage      = errors.New("invalid MGCP message")
	ErrInvalidCommandLine  = errors.New("invalid command line")
	ErrInvalidResponseLine = errors.New("invalid response line")
	ErrInvalidParameter    = errors.New("invalid parameter line")
	ErrInvalidVersion      = errors.New("invalid MGCP version")
	ErrInvalidReturnCode   = errors.New("invalid return code")
	ErrInvalidTransaction  = errors.New("invalid transaction id")
	ErrInvalidEventName    = errors.New("invalid event name")

	// Size errors
	ErrMessageTooLarge = errors.New("message too large")
)
