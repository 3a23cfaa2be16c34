package sipdialog

import (
	"strconv"
	"strings"
)

// MaxStreamDescriptors caps the number of SDP-declared audio streams
// retained per session (spec §4.2: "stored up to 8 descriptors").
const MaxStreamDescriptors = 8

// StreamDescriptor is one `m=audio` line plus any `a=rtpmap`/`a=fmtp`
// lines bound to it by payload type. Persists for the session once
// created (spec §3).
type StreamDescriptor struct {
	Port        int
	PayloadType int
	Codec       string // "" if no matching rtpmap was found
	ClockRate   int    // 0 if no matching rtpmap was found
	FormatParams string
	Direction   string // "sendrecv", "sendonly", "recvonly", "inactive", or "" if unspecified
}

// ParseSDP scans body line by line for `m=audio`, `a=rtpmap`, and
// `a=fmtp` lines and returns up to MaxStreamDescriptors stream
// descriptors. Malformed lines are skipped individually; a stream with
// no matching rtpmap is still retained with empty codec fields
// (spec §4.2).
func ParseSDP(body string) []*StreamDescriptor {
	body = strings.ReplaceAll(body, "\r\n", "\n")
	lines := strings.Split(body, "\n")

	var descs []*StreamDescriptor
	byPT := map[int]*StreamDescriptor{}
	sessionDirection := ""

	for _, raw := range lines {
		line := strings.TrimSpace(raw)
		switch {
		case strings.HasPrefix(line, "m=audio "):
			if len(descs) >= MaxStreamDescriptors {
				continue
			}
			d, pts := parseMediaLine(line)
			if d == nil {
				continue
			}
			d.Direction = sessionDirection
			descs = append(descs, d)
			for _, pt := range pts {
				byPT[pt] = d
			}
		case strings.HasPrefix(line, "a=rtpmap:"):
			pt, codec, rate, ok := parseRtpmap(line)
			if !ok {
				continue
			}
			if d, found := byPT[pt]; found {
				d.Codec = codec
				d.ClockRate = rate
			}
		case strings.HasPrefix(line, "a=fmtp:"):
			pt, params, ok := parseFmtp(line)
			if !ok {
				continue
			}
			if d, found := byPT[pt]; found {
				d.FormatParams = params
			}
		case line == "a=sendonly", line == "a=recvonly", line == "a=inactive", line == "a=sendrecv":
			dir := strings.TrimPrefix(line, "a=")
			if len(descs) == 0 {
				sessionDirection = dir
			} else {
				descs[len(descs)-1].Direction = dir
			}
		}
	}
	return descs
}

// parseMediaLine parses "m=audio <port> RTP/AVP <pt> [<pt> ...]".
// The first payload type in the list becomes the descriptor's primary
// PayloadType; all listed types are bound for subsequent rtpmap/fmtp
// matching (a stream can legally offer several payload types).
func parseMediaLine(line string) (*StreamDescriptor, []int) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return nil, nil
	}
	portField := strings.TrimPrefix(fields[0], "m=audio ")
	// fields[0] is "m=audio", port is fields[1] per standard SDP tokenization.
	_ = portField
	port, err := strconv.Atoi(fields[1])
	if err != nil {
		return nil, nil
	}
	if !strings.HasPrefix(fields[2], "RTP/AVP") {
		return nil, nil
	}
	var pts []int
	for _, f := range fields[3:] {
		pt, err := strconv.Atoi(f)
		if err != nil {
			continue
		}
		pts = append(pts, pt)
	}
	if len(pts) == 0 {
		return nil, nil
	}
	return &StreamDescriptor{Port: port, PayloadType: pts[0]}, pts
}

// parseRtpmap parses "a=rtpmap:<pt> <codec>/<rate>[/<params>]".
func parseRtpmap(line string) (pt int, codec string, rate int, ok bool) {
	rest := strings.TrimPrefix(line, "a=rtpmap:")
	ptStr, encoding, found := strings.Cut(rest, " ")
	if !found {
		return 0, "", 0, false
	}
	pt, err := strconv.Atoi(strings.TrimSpace(ptStr))
	if err != nil {
		return 0, "", 0, false
	}
	parts := strings.Split(strings.TrimSpace(encoding), "/")
	if len(parts) < 2 {
		return 0, "", 0, false
	}
	rate, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, "", 0, false
	}
	return pt, parts[0], rate, true
}

// parseFmtp parses "a=fmtp:<pt> <params>".
func parseFmtp(line string) (pt int, params string, ok bool) {
	rest := strings.TrimPrefix(line, "a=fmtp:")
	ptStr, p, found := strings.Cut(rest, " ")
	if !found {
		return 0, "", false
	}
	pt, err := strconv.Atoi(strings.TrimSpace(ptStr))
	if err != nil {
		return 0, "", false
	}
	return pt, strings.TrimSpace(p), true
}

// ContainsSDPBody reports whether raw (a full SIP message) carries an
// SDP body, i.e. has the CRLF CRLF boundary spec §4.2 triggers on.
func ContainsSDPBody(raw string) bool {
	normalized := strings.ReplaceAll(raw, "\r\n", "\n")
	_, body, found := strings.Cut(normalized, "\n\n")
	return found && strings.TrimSpace(body) != ""
}
