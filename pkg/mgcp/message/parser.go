package message

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// MaxMessageSize максимальный размер UDP датаграма
const MaxMessageSize = 65535

const maxParams = 64

// Parser parses MGCP messages
type Parser struct {
	strict bool // RFC compliance mode
}

// NewParser creates a new parser
func NewParser(strict bool) *Parser {
	return &Parser{strict: strict}
}

// Parse parses a message with a non-strict parser
func Parse(data []byte) (Message, error) {
	return defaultParser.ParseMessage(data)
}

var defaultParser = NewParser(false)

// ParseMessage parses an MGCP message from bytes.
// Session description (after the empty line) is ignored, the IVR
// control plane never carries SDP.
func (p *Parser) ParseMessage(data []byte) (Message, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrInvalidMessage
	}
	if len(data) > MaxMessageSize {
		return nil, ErrMessageTooLarge
	}

	// Отрезаем SDP
	if end := bytes.Index(data, []byte("\r\n\r\n")); end >= 0 {
		data = data[:end]
	} else if end := bytes.Index(data, []byte("\n\n")); end >= 0 {
		data = data[:end]
	}

	lines := bytes.Split(data, []byte("\n"))
	for i := range lines {
		lines[i] = bytes.TrimRight(lines[i], "\r")
	}

	firstLine := strings.TrimSpace(string(lines[0]))
	if firstLine == "" {
		return nil, ErrInvalidMessage
	}

	params, err := p.parseParams(lines[1:])
	if err != nil {
		return nil, err
	}

	// Ответ начинается с трехзначного кода
	if firstLine[0] >= '0' && firstLine[0] <= '9' {
		return p.parseResponse(firstLine, params)
	}
	return p.parseRequest(firstLine, params)
}

// parseRequest parses command line: VERB TID ENDPOINT MGCP 1.0
func (p *Parser) parseRequest(firstLine string, params *Params) (*Request, error) {
	parts := strings.Fields(firstLine)
	if len(parts) != 5 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidCommandLine, firstLine)
	}

	verb := strings.ToUpper(parts[0])
	if p.strict {
		switch verb {
		case VerbNotificationRequest, VerbNotify, VerbCreateConnection,
			VerbModifyConnection, VerbDeleteConnection, VerbAuditEndpoint,
			"AUCX", "RSIP", "EPCF":
		default:
			return nil, fmt.Errorf("%w: unknown verb %q", ErrInvalidCommandLine, verb)
		}
	}

	id, err := parseTransactionID(parts[1])
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(parts[3], "MGCP") {
		return nil, ErrInvalidVersion
	}
	if p.strict && parts[4] != "1.0" {
		return nil, ErrInvalidVersion
	}

	return &Request{
		Verb:     verb,
		ID:       id,
		Endpoint: parts[2],
		params:   params,
	}, nil
}

// parseResponse parses response line: CODE TID [COMMENT]
func (p *Parser) parseResponse(firstLine string, params *Params) (*Response, error) {
	parts := strings.SplitN(firstLine, " ", 3)
	if len(parts) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidResponseLine, firstLine)
	}

	code, err := strconv.Atoi(parts[0])
	if err != nil || code < 0 || code > 999 {
		return nil, fmt.Errorf("%w: %q", ErrInvalidReturnCode, parts[0])
	}

	id, err := parseTransactionID(parts[1])
	if err != nil {
		return nil, err
	}

	resp := &Response{
		Code:   code,
		ID:     id,
		params: params,
	}
	if len(parts) > 2 {
		resp.Comment = strings.TrimSpace(parts[2])
	}
	return resp, nil
}

// parseParams parses "Name: value" lines
func (p *Parser) parseParams(lines [][]byte) (*Params, error) {
	params := NewParams()

	for _, line := range lines {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		if params.Len() >= maxParams {
			return nil, fmt.Errorf("too many parameters: %d", len(lines))
		}

		colonIdx := bytes.IndexByte(line, ':')
		if colonIdx <= 0 {
			if p.strict {
				return nil, fmt.Errorf("%w: %q", ErrInvalidParameter, line)
			}
			continue
		}

		name := string(bytes.TrimSpace(line[:colonIdx]))
		value := string(bytes.TrimSpace(line[colonIdx+1:]))
		params.Add(name, value)
	}

	return params, nil
}

func parseTransactionID(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil || v == 0 || v > 999999999 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTransaction, s)
	}
	return uint32(v), nil
}
