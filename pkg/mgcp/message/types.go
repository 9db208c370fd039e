package message

import (
	"fmt"
	"strconv"
	"strings"
)

// Version protocol version carried in every command line
const Version = "MGCP 1.0"

// Command verbs (RFC 3435, section 2.3)
const (
	VerbNotificationRequest = "RQNT"
	VerbNotify              = "NTFY"
	VerbCreateConnection    = "CRCX"
	VerbModifyConnection    = "MDCX"
	VerbDeleteConnection    = "DLCX"
	VerbAuditEndpoint       = "AUEP"
)

// Parameter names used by the IVR control plane
const (
	ParamRequestIdentifier  = "X"
	ParamRequestedEvents    = "R"
	ParamSignalRequests     = "S"
	ParamObservedEvents     = "O"
	ParamSpecificEndpointID = "Z"
)

// Return codes (RFC 3435, section 2.4)
const (
	CodeTransactionBeingExecuted = 100
	CodeTransactionQueued        = 101
	CodeTransactionExecuted      = 200
	CodeTransientError           = 400
	CodeEndpointUnknown          = 500
	CodeProtocolError            = 510
)

// Message is the common interface for MGCP commands and responses
type Message interface {
	// IsRequest returns true for commands
	IsRequest() bool

	// TransactionID returns the transaction identifier of the message
	TransactionID() uint32

	// Params returns message parameters
	Params() *Params

	// String returns the wire representation
	String() string
}

// Request represents an MGCP command
type Request struct {
	Verb     string
	ID       uint32
	Endpoint string
	params   *Params
}

// Response represents an MGCP response
type Response struct {
	Code    int
	ID      uint32
	Comment string
	params  *Params
}

// Param single "name: value" line
type Param struct {
	Name  string
	Value string
}

// Params ordered parameter lines with case-insensitive names
type Params struct {
	lines []Param
}

// NewParams creates an empty parameter set
func NewParams() *Params {
	return &Params{}
}

// Get returns the first value of a parameter
func (p *Params) Get(name string) (string, bool) {
	if p == nil {
		return "", false
	}
	for _, l := range p.lines {
		if strings.EqualFold(l.Name, name) {
			return l.Value, true
		}
	}
	return "", false
}

// Value returns the first value of a parameter or empty string
func (p *Params) Value(name string) string {
	v, _ := p.Get(name)
	return v
}

// Set replaces all values of a parameter
func (p *Params) Set(name, value string) {
	p.Remove(name)
	p.lines = append(p.lines, Param{Name: name, Value: value})
}

// Add appends a parameter line
func (p *Params) Add(name, value string) {
	p.lines = append(p.lines, Param{Name: name, Value: value})
}

// Remove deletes all values of a parameter
func (p *Params) Remove(name string) {
	kept := p.lines[:0]
	for _, l := range p.lines {
		if !strings.EqualFold(l.Name, name) {
			kept = append(kept, l)
		}
	}
	p.lines = kept
}

// Len returns the number of parameter lines
func (p *Params) Len() int {
	if p == nil {
		return 0
	}
	return len(p.lines)
}

// All returns a copy of all parameter lines in order
func (p *Params) All() []Param {
	if p == nil {
		return nil
	}
	out := make([]Param, len(p.lines))
	copy(out, p.lines)
	return out
}

func (p *Params) writeTo(sb *strings.Builder) {
	if p == nil {
		return
	}
	for _, l := range p.lines {
		sb.WriteString(l.Name)
		sb.WriteString(": ")
		sb.WriteString(l.Value)
		sb.WriteString("\r\n")
	}
}

func (r *Request) IsRequest() bool       { return true }
func (r *Request) TransactionID() uint32 { return r.ID }

// Params returns command parameters
func (r *Request) Params() *Params {
	if r.params == nil {
		r.params = NewParams()
	}
	return r.params
}

// String returns the wire representation of the command
func (r *Request) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %d %s %s\r\n", r.Verb, r.ID, r.Endpoint, Version)
	r.params.writeTo(&sb)
	return sb.String()
}

// Bytes returns the wire representation as bytes
func (r *Request) Bytes() []byte {
	return []byte(r.String())
}

func (r *Response) IsRequest() bool       { return false }
func (r *Response) TransactionID() uint32 { return r.ID }

// Params returns response parameters
func (r *Response) Params() *Params {
	if r.params == nil {
		r.params = NewParams()
	}
	return r.params
}

// String returns the wire representation of the response
func (r *Response) String() string {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(r.Code))
	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatUint(uint64(r.ID), 10))
	if r.Comment != "" {
		sb.WriteByte(' ')
		sb.WriteString(r.Comment)
	}
	sb.WriteString("\r\n")
	r.params.writeTo(&sb)
	return sb.String()
}

// Bytes returns the wire representation as bytes
func (r *Response) Bytes() []byte {
	return []byte(r.String())
}

// IsProvisional reports 1xx return codes
func (r *Response) IsProvisional() bool {
	return r.Code >= 100 && r.Code < 200
}

// IsSuccess reports 2xx return codes
func (r *Response) IsSuccess() bool {
	return r.Code >= 200 && r.Code < 300
}

// RequestIdentifier converts a transaction id into the hex request
// identifier placed in the X: line. Notifications echo it back.
func RequestIdentifier(id uint32) string {
	return strings.ToUpper(strconv.FormatUint(uint64(id), 16))
}

// ParseRequestIdentifier is the inverse of RequestIdentifier
func ParseRequestIdentifier(s string) (uint32, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: request identifier %q", ErrInvalidTransaction, s)
	}
	return uint32(v), nil
}
