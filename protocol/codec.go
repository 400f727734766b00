// File: protocol/codec.go
// Author grounding: original_source/src/protocol/codec.h (parseRequest's
// earliest-LF-or-CRLF framing, split/toUpper tokenizing, value extraction
// preserving internal whitespace, bit-exact encodeResponse).

package protocol

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/Lucky-mi/reactorkv/reactor"
)

// ParseRequest attempts to consume one framed line from buf. Reports
// false if no complete line is buffered yet, in which case buf is left
// untouched and the caller should wait for more bytes.
func ParseRequest(buf *reactor.Buffer) (Request, bool) {
	data := buf.Peek()

	lf := bytes.IndexByte(data, '\n')
	if lf < 0 {
		return Request{}, false
	}

	lineEnd := lf
	if lineEnd > 0 && data[lineEnd-1] == '\r' {
		lineEnd--
	}
	line := string(data[:lineEnd])
	buf.Retrieve(lf + 1)

	return parseLine(line), true
}

func parseLine(line string) Request {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Request{Command: CommandUnknown}
	}

	switch strings.ToUpper(fields[0]) {
	case "PUT", "SET":
		if len(fields) < 3 {
			return Request{Command: CommandUnknown}
		}
		key := fields[1]
		value := extractValue(line, fields[0], key)
		return Request{Command: CommandPut, Key: key, Value: value}
	case "GET":
		if len(fields) < 2 {
			return Request{Command: CommandUnknown}
		}
		return Request{Command: CommandGet, Key: fields[1]}
	case "DEL", "DELETE":
		if len(fields) < 2 {
			return Request{Command: CommandUnknown}
		}
		return Request{Command: CommandDel, Key: fields[1]}
	case "EXISTS":
		if len(fields) < 2 {
			return Request{Command: CommandUnknown}
		}
		return Request{Command: CommandExists, Key: fields[1]}
	case "SIZE", "DBSIZE":
		return Request{Command: CommandSize}
	case "CLEAR", "FLUSHDB":
		return Request{Command: CommandClear}
	case "PING":
		return Request{Command: CommandPing}
	case "QUIT", "EXIT":
		return Request{Command: CommandQuit}
	default:
		return Request{Command: CommandUnknown}
	}
}

// extractValue returns everything in line after the key token that follows
// the command token cmd, left-trimmed, so a PUT value keeps internal spacing
// exactly as the client sent it.
func extractValue(line, cmd, key string) string {
	start := strings.Index(line, cmd) + len(cmd)
	idx := strings.Index(line[start:], key)
	if idx < 0 {
		return ""
	}
	rest := line[start+idx+len(key):]
	return strings.TrimLeft(rest, " \t")
}

// EncodeResponse renders r as the bit-exact CRLF-terminated line the
// wire protocol specifies.
func EncodeResponse(r Response) string {
	var b strings.Builder
	switch r.Status {
	case StatusOK:
		b.WriteString("+OK")
		if r.Message != "" {
			b.WriteByte(' ')
			b.WriteString(r.Message)
		}
	case StatusNotFound:
		b.WriteString("-NOT_FOUND")
	case StatusError:
		b.WriteString("-ERROR")
		if r.Message != "" {
			b.WriteByte(' ')
			b.WriteString(r.Message)
		}
	case StatusPong:
		b.WriteString("+PONG")
	case StatusBye:
		b.WriteString("+BYE")
	}
	b.WriteString("\r\n")
	return b.String()
}

// ParseResponse parses a line encoded by EncodeResponse, the symmetrical
// counterpart the round-trip law needs (original_source has no response
// parser; its client line-scans ad hoc). Reports an error for a line that
// does not begin with a recognized status marker.
func ParseResponse(line string) (Response, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Response{}, fmt.Errorf("protocol: empty response line")
	}

	marker := line[0]
	rest := line[1:]

	switch marker {
	case '+':
		switch {
		case rest == "PONG":
			return Pong(), nil
		case rest == "BYE":
			return Bye(), nil
		case rest == "OK" || strings.HasPrefix(rest, "OK "):
			return OK(strings.TrimPrefix(strings.TrimPrefix(rest, "OK"), " ")), nil
		}
	case '-':
		switch {
		case rest == "NOT_FOUND":
			return NotFound(), nil
		case rest == "ERROR" || strings.HasPrefix(rest, "ERROR "):
			return Error(strings.TrimPrefix(strings.TrimPrefix(rest, "ERROR"), " ")), nil
		}
	}
	return Response{}, fmt.Errorf("protocol: unrecognized response line %q", line)
}
