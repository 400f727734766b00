package protocol_test

import (
	"testing"

	"github.com/Lucky-mi/reactorkv/protocol"
	"github.com/Lucky-mi/reactorkv/reactor"
)

func parse(t *testing.T, line string) protocol.Request {
	t.Helper()
	buf := reactor.NewBuffer(0)
	buf.AppendString(line)
	req, ok := protocol.ParseRequest(buf)
	if !ok {
		t.Fatalf("ParseRequest(%q) reported no complete line", line)
	}
	return req
}

func TestParseRequestCommands(t *testing.T) {
	cases := []struct {
		line string
		want protocol.Request
	}{
		{"PUT name alice\r\n", protocol.Request{Command: protocol.CommandPut, Key: "name", Value: "alice"}},
		{"SET name alice\r\n", protocol.Request{Command: protocol.CommandPut, Key: "name", Value: "alice"}},
		{"GET name\r\n", protocol.Request{Command: protocol.CommandGet, Key: "name"}},
		{"DEL name\r\n", protocol.Request{Command: protocol.CommandDel, Key: "name"}},
		{"DELETE name\r\n", protocol.Request{Command: protocol.CommandDel, Key: "name"}},
		{"EXISTS name\r\n", protocol.Request{Command: protocol.CommandExists, Key: "name"}},
		{"SIZE\r\n", protocol.Request{Command: protocol.CommandSize}},
		{"DBSIZE\r\n", protocol.Request{Command: protocol.CommandSize}},
		{"CLEAR\r\n", protocol.Request{Command: protocol.CommandClear}},
		{"FLUSHDB\r\n", protocol.Request{Command: protocol.CommandClear}},
		{"PING\r\n", protocol.Request{Command: protocol.CommandPing}},
		{"QUIT\r\n", protocol.Request{Command: protocol.CommandQuit}},
		{"EXIT\r\n", protocol.Request{Command: protocol.CommandQuit}},
		{"NOPE\r\n", protocol.Request{Command: protocol.CommandUnknown}},
	}

	for _, c := range cases {
		got := parse(t, c.line)
		if got != c.want {
			t.Errorf("parse(%q) = %+v, want %+v", c.line, got, c.want)
		}
	}
}

func TestParseRequestPutPreservesInternalWhitespace(t *testing.T) {
	got := parse(t, "PUT greeting   hello   world  \r\n")
	if got.Command != protocol.CommandPut || got.Key != "greeting" {
		t.Fatalf("parse() = %+v, want command Put key greeting", got)
	}
	if got.Value != "hello   world  " {
		t.Fatalf("Value = %q, want %q", got.Value, "hello   world  ")
	}
}

func TestParseRequestLFOnlyFraming(t *testing.T) {
	buf := reactor.NewBuffer(0)
	buf.AppendString("PING\n")
	req, ok := protocol.ParseRequest(buf)
	if !ok || req.Command != protocol.CommandPing {
		t.Fatalf("ParseRequest(LF-only) = %+v, %v", req, ok)
	}
}

func TestParseRequestIncompleteLine(t *testing.T) {
	buf := reactor.NewBuffer(0)
	buf.AppendString("GET partial")
	_, ok := protocol.ParseRequest(buf)
	if ok {
		t.Fatal("ParseRequest reported a complete line with no terminator")
	}
	if buf.ReadableBytes() == 0 {
		t.Fatal("ParseRequest consumed bytes from an incomplete line")
	}
}

func TestEncodeResponse(t *testing.T) {
	cases := []struct {
		resp protocol.Response
		want string
	}{
		{protocol.OK(""), "+OK\r\n"},
		{protocol.OK("CREATED"), "+OK CREATED\r\n"},
		{protocol.NotFound(), "-NOT_FOUND\r\n"},
		{protocol.Error("bad request"), "-ERROR bad request\r\n"},
		{protocol.Pong(), "+PONG\r\n"},
		{protocol.Bye(), "+BYE\r\n"},
	}
	for _, c := range cases {
		if got := protocol.EncodeResponse(c.resp); got != c.want {
			t.Errorf("EncodeResponse(%+v) = %q, want %q", c.resp, got, c.want)
		}
	}
}

func TestEncodeParseResponseRoundTrip(t *testing.T) {
	responses := []protocol.Response{
		protocol.OK(""),
		protocol.OK("CREATED"),
		protocol.NotFound(),
		protocol.Error("bad request"),
		protocol.Pong(),
		protocol.Bye(),
	}
	for _, r := range responses {
		encoded := protocol.EncodeResponse(r)
		parsed, err := protocol.ParseResponse(encoded)
		if err != nil {
			t.Fatalf("ParseResponse(%q): %v", encoded, err)
		}
		if reencoded := protocol.EncodeResponse(parsed); reencoded != encoded {
			t.Errorf("round-trip mismatch: %q != %q", reencoded, encoded)
		}
	}
}

func TestParseResponseRejectsUnrecognized(t *testing.T) {
	if _, err := protocol.ParseResponse("garbage\r\n"); err == nil {
		t.Fatal("expected error parsing an unrecognized response line")
	}
	if _, err := protocol.ParseResponse(""); err == nil {
		t.Fatal("expected error parsing an empty response line")
	}
}
