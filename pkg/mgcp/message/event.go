package message

import (
	"fmt"
	"strings"
)

// EventName package/event pair with optional parameters,
// e.g. "AU/oc(rc=101 asrr=48656c6c6f)" or "AU/es(sg=asr)".
type EventName struct {
	Package    string
	Code       string
	Parameters string
	// HasParams отличает "AU/oc()" от "AU/oc"
	HasParams bool
}

// NewEvent creates an event name with parameters
func NewEvent(pkg, code, params string) EventName {
	return EventName{Package: pkg, Code: code, Parameters: params, HasParams: true}
}

// String returns the wire form of the event
func (e EventName) String() string {
	var sb strings.Builder
	if e.Package != "" {
		sb.WriteString(e.Package)
		sb.WriteByte('/')
	}
	sb.WriteString(e.Code)
	if e.HasParams || e.Parameters != "" {
		sb.WriteByte('(')
		sb.WriteString(e.Parameters)
		sb.WriteByte(')')
	}
	return sb.String()
}

// ParseEvent parses a single event name
func ParseEvent(s string) (EventName, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return EventName{}, fmt.Errorf("%w: empty", ErrInvalidEventName)
	}

	var ev EventName
	name := s
	if open := strings.IndexByte(s, '('); open >= 0 {
		if !strings.HasSuffix(s, ")") {
			return EventName{}, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidEventName, s)
		}
		name = s[:open]
		ev.Parameters = s[open+1 : len(s)-1]
		ev.HasParams = true
	}

	if slash := strings.IndexByte(name, '/'); slash >= 0 {
		ev.Package = name[:slash]
		ev.Code = name[slash+1:]
	} else {
		ev.Code = name
	}
	if ev.Code == "" {
		return EventName{}, fmt.Errorf("%w: missing event code in %q", ErrInvalidEventName, s)
	}
	return ev, nil
}

// ParseEventList splits a comma separated list of events.
// Commas inside parentheses belong to the event parameters.
func ParseEventList(s string) ([]EventName, error) {
	var (
		events []EventName
		depth  int
		start  int
	)
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidEventName, s)
			}
		case ',':
			if depth == 0 {
				ev, err := ParseEvent(s[start:i])
				if err != nil {
					return nil, err
				}
				events = append(events, ev)
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced parentheses in %q", ErrInvalidEventName, s)
	}
	if strings.TrimSpace(s[start:]) != "" {
		ev, err := ParseEvent(s[start:])
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// JoinEvents formats events as a comma separated list
func JoinEvents(events ...EventName) string {
	parts := make([]string, len(events))
	for i, e := range events {
		parts[i] = e.String()
	}
	return strings.Join(parts, ",")
}
