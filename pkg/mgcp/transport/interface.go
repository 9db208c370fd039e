// Package transport defines how the IVR control plane talks to a media
// gateway and ships a UDP implementation of it.
//
// Correlation contract at this boundary:
//   - every command carries its transaction id on the command line;
//   - RQNT commands carry X: <hex transaction id> (message.RequestIdentifier);
//   - the gateway echoes X: in NTFY, and the transport reports it as
//     NotifyEvent.TransactionID;
//   - the gateway may answer a command addressed to a wildcard endpoint
//     with Z: <specific endpoint>, the transport then routes notifications
//     for the specific name to the subscriber of the wildcard name.
package transport

import (
	"context"
	"time"

	"github.com/arzzra/ivr_control/pkg/mgcp/message"
)

// NotifyEvent single observed event reported by the gateway
type NotifyEvent struct {
	// TransactionID transaction of the RQNT that armed the event (from X:)
	TransactionID uint32
	// NotifyID transaction id of the NTFY command itself
	NotifyID uint32
	// Endpoint endpoint name reported by the gateway
	Endpoint string

	Package    string
	EventCode  string
	Parameters string

	ReceivedAt time.Time
}

// Event returns the observed event as an event name
func (e NotifyEvent) Event() message.EventName {
	return message.NewEvent(e.Package, e.EventCode, e.Parameters)
}

// NotifyHandler is called for every observed event of a subscribed endpoint.
// Handlers must not block.
type NotifyHandler func(NotifyEvent)

// Transport sends commands to a media gateway and delivers notifications.
// Implementations must be safe for concurrent use by many endpoints.
type Transport interface {
	// SendRequest sends a command and waits for its final response (the
	// acknowledgment). Provisional responses are consumed internally.
	SendRequest(ctx context.Context, req *message.Request) (*message.Response, error)

	// Subscribe registers a notification handler for an endpoint name
	Subscribe(endpoint string, handler NotifyHandler) (unsubscribe func())

	// Close releases transport resources
	Close() error
}

// Stats transport counters
type Stats struct {
	RequestsSent       uint64
	ResponsesReceived  uint64
	NotifiesReceived   uint64
	NotifiesUnrouted   uint64
	RequestTimeouts    uint64
	Errors             uint64
	Pending            int
	PendingMaxObserved int
}
