package cmdport

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// MaxTally is the fixed vector size the protocol dumps and accepts
// indices against (spec.md §6: "MAX = 32").
const MaxTally = 32

// frameSplit is a bufio.Scanner split function that extracts the content
// between '<' and '>' and silently discards everything outside a frame,
// per spec.md §4.I: "Frames are delimited by '>'... inter-frame bytes are
// ignored."
func frameSplit(data []byte, atEOF bool) (advance int, token []byte, err error) {
	start := bytes.IndexByte(data, '<')
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.IndexByte(data[start:], '>')
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}
	frame := data[start+1 : start+end]
	return start + end + 1, frame, nil
}

// requestKind enumerates the outcomes parseRequest recognizes.
type requestKind int

const (
	reqUnrecognized requestKind = iota
	reqPing
	reqTallyDumpAll
	reqTallyQuery
	reqUpdateTime
	reqUpdateUnsolicited
)

// request is a parsed command-port message. Channel is "PGM" or "PVW" for
// tally requests.
type request struct {
	kind    requestKind
	channel string
	index   int
	raw     string
}

// parseRequest implements the tolerant grammar of spec.md §6: keywords
// are searched for in order and the first match wins; anything else is
// discarded without a reply. The grammar has no inbound tally write verb
// (only the `?`-suffixed queries below and the two UPDATE.* setters) —
// the command port is read-only with respect to tally state.
func parseRequest(content string) request {
	content = strings.TrimSpace(content)

	if strings.Contains(content, "PING") {
		return request{kind: reqPing, raw: content}
	}
	if kind, idx, ok := parseTally(content, "TALLY.PGM"); ok {
		return request{kind: kind, channel: "PGM", index: idx, raw: content}
	}
	if kind, idx, ok := parseTally(content, "TALLY.PVW"); ok {
		return request{kind: kind, channel: "PVW", index: idx, raw: content}
	}
	if strings.Contains(content, "UPDATE.TIME") {
		return request{kind: reqUpdateTime, raw: content}
	}
	if strings.Contains(content, "UPDATE.UNSOLICITED") {
		return request{kind: reqUpdateUnsolicited, raw: content}
	}
	return request{kind: reqUnrecognized, raw: content}
}

// parseTally recognizes the two TALLY.<channel> forms: a bare dump-all
// query and an indexed query ("...:n?").
func parseTally(content, prefix string) (requestKind, int, bool) {
	if !strings.Contains(content, prefix) {
		return 0, 0, false
	}
	rest := content[strings.Index(content, prefix)+len(prefix):]
	if rest == "?" {
		return reqTallyDumpAll, 0, true
	}
	if !strings.HasPrefix(rest, ":") {
		return reqUnrecognized, 0, true
	}
	rest = rest[1:]
	if !strings.HasSuffix(rest, "?") {
		return reqUnrecognized, 0, true
	}
	idx, err := strconv.Atoi(strings.TrimSuffix(rest, "?"))
	if err != nil {
		return reqUnrecognized, 0, true
	}
	return reqTallyQuery, idx, true
}

func parseAssignedInt(content, keyword string) (int, bool) {
	i := strings.Index(content, keyword)
	if i < 0 {
		return 0, false
	}
	rest := content[i+len(keyword):]
	rest = strings.TrimPrefix(rest, "=")
	v, err := strconv.Atoi(strings.TrimSpace(rest))
	if err != nil {
		return 0, false
	}
	return v, true
}

func tallyLine(channel string, index int, on bool) string {
	return fmt.Sprintf("TALLY.%s:%d=%d", channel, index, boolToInt(on))
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
