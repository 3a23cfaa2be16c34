// Package sipdialog parses SIP request/response lines and SDP media
// descriptors from UDP payloads, and drives the per-call dialog state
// machine (spec C3/§4.2).
package sipdialog

import (
	"strconv"
	"strings"
)

// Message is the minimally-parsed shape of one SIP request or response
// needed to drive the dialog FSM and locate an embedded SDP body.
type Message struct {
	IsRequest   bool
	Method      string // request method, or the method named in CSeq for a response
	StatusCode  int    // 0 for requests
	CallID      string
	FromTag     string
	ToTag       string
	CSeqMethod  string
	Body        string
}

// ParseMessage parses raw (one SIP message, as would arrive as a UDP
// payload on the signaling port) into a Message. Malformed header lines
// are skipped individually; only a missing/unparsable start line is a
// hard error.
func ParseMessage(raw string) (*Message, error) {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	headerBlock, body, _ := strings.Cut(raw, "\n\n")

	lines := strings.Split(headerBlock, "\n")
	if len(lines) == 0 {
		return nil, errEmptyMessage
	}
	startLine := strings.TrimSpace(lines[0])
	if startLine == "" {
		return nil, errEmptyMessage
	}

	m := &Message{Body: body}
	if strings.HasPrefix(startLine, "SIP/2.0") {
		m.IsRequest = false
		fields := strings.Fields(startLine)
		if len(fields) >= 2 {
			if code, err := strconv.Atoi(fields[1]); err == nil {
				m.StatusCode = code
			}
		}
	} else {
		fields := strings.Fields(startLine)
		if len(fields) == 0 {
			return nil, errEmptyMessage
		}
		m.IsRequest = true
		m.Method = strings.ToUpper(fields[0])
	}

	for _, line := range lines[1:] {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		switch name {
		case "call-id", "i":
			m.CallID = value
		case "from", "f":
			m.FromTag = extractTag(value)
		case "to", "t":
			m.ToTag = extractTag(value)
		case "cseq":
			fields := strings.Fields(value)
			if len(fields) == 2 {
				m.CSeqMethod = strings.ToUpper(fields[1])
			}
		}
	}
	if !m.IsRequest {
		m.Method = m.CSeqMethod
	}
	return m, nil
}

// extractTag pulls the "tag=" parameter out of a From/To header value.
// Returns "" if absent, which is a valid (early-dialog) state.
func extractTag(headerValue string) string {
	parts := strings.Split(headerValue, ";")
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		if k, v, ok := strings.Cut(p, "="); ok && strings.EqualFold(strings.TrimSpace(k), "tag") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

type parseError string

func (e parseError) Error() string { return string(e) }

const errEmptyMessage = parseError("sipdialog: message has no start line")
