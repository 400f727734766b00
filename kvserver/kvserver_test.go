package kvserver_test

import (
	"bufio"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Lucky-mi/reactorkv/kvserver"
	"github.com/Lucky-mi/reactorkv/reactor"
)

// nextPort hands out a distinct loopback port per test. SO_REUSEADDR is
// set on every listening socket the Acceptor creates, so a port freed by
// one test's Cleanup is immediately reusable by the next.
var nextPort int32 = 17400

// startTestServer brings up a kvserver.Server on a loopback port and
// returns its address, ready to dial. NewEventLoop pins its calling
// goroutine to its OS thread, so construction, Start (which synchronously
// listens via RunInLoop), Run, and the Stop and Close that follow Run all
// happen on the same background goroutine for the lifetime of the test;
// the test goroutine blocks until Start has returned, and its Cleanup only
// quits the loop and waits for that goroutine to finish.
func startTestServer(t *testing.T) string {
	t.Helper()

	type built struct {
		loop *reactor.EventLoop
		srv  *kvserver.Server
		err  error
	}
	readyCh := make(chan built, 1)
	done := make(chan struct{})

	go func() {
		loop, err := reactor.NewEventLoop()
		if err != nil {
			readyCh <- built{err: err}
			return
		}

		port := uint16(atomic.AddInt32(&nextPort, 1))
		addr := reactor.NewInetAddress(port, true)
		srv, err := kvserver.New(loop, addr, "test", 16)
		if err == nil {
			srv.SetNumLoops(2)
			err = srv.Start()
		}
		readyCh <- built{loop: loop, srv: srv, err: err}
		if err != nil {
			return
		}

		loop.Run()
		srv.Stop()
		loop.Close()
		close(done)
	}()

	b := <-readyCh
	if b.err != nil {
		t.Fatalf("startTestServer: %v", b.err)
	}

	t.Cleanup(func() {
		b.loop.Quit()
		<-done
	})

	return b.srv.IPPort()
}

func dial(t *testing.T, addr string) (net.Conn, *bufio.Reader) {
	t.Helper()
	conn, err := net.DialTimeout("tcp", addr, 2*time.Second)
	if err != nil {
		t.Fatalf("Dial(%s): %v", addr, err)
	}
	t.Cleanup(func() { conn.Close() })

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("reading welcome banner: %v", err)
	}
	if line != "+WELCOME ReactorKV Server\r\n" {
		t.Fatalf("welcome banner = %q, want the ReactorKV greeting", line)
	}
	return conn, r
}

func roundTrip(t *testing.T, conn net.Conn, r *bufio.Reader, request string) string {
	t.Helper()
	if _, err := conn.Write([]byte(request + "\r\n")); err != nil {
		t.Fatalf("write %q: %v", request, err)
	}
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read reply to %q: %v", request, err)
	}
	return line
}

func TestPutGetRoundTrip(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	if got := roundTrip(t, conn, r, "PUT name alice"); got != "+OK CREATED\r\n" {
		t.Fatalf("PUT name alice -> %q, want +OK CREATED", got)
	}
	if got := roundTrip(t, conn, r, "GET name"); got != "+OK alice\r\n" {
		t.Fatalf("GET name -> %q, want +OK alice", got)
	}
}

func TestPutOverwriteTransitionsCreatedToUpdated(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	if got := roundTrip(t, conn, r, "PUT k v1"); got != "+OK CREATED\r\n" {
		t.Fatalf("first PUT -> %q, want +OK CREATED", got)
	}
	if got := roundTrip(t, conn, r, "PUT k v2"); got != "+OK UPDATED\r\n" {
		t.Fatalf("second PUT -> %q, want +OK UPDATED", got)
	}
	if got := roundTrip(t, conn, r, "GET k"); got != "+OK v2\r\n" {
		t.Fatalf("GET k -> %q, want +OK v2", got)
	}
}

func TestPutPreservesInternalWhitespaceInValue(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	roundTrip(t, conn, r, "PUT greeting   hello   world")
	if got := roundTrip(t, conn, r, "GET greeting"); got != "+OK hello   world\r\n" {
		t.Fatalf("GET greeting -> %q, want value with internal spacing preserved", got)
	}
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	if got := roundTrip(t, conn, r, "GET missing"); got != "-NOT_FOUND\r\n" {
		t.Fatalf("GET missing -> %q, want -NOT_FOUND", got)
	}
}

func TestExistsDelSizeClearPing(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	roundTrip(t, conn, r, "PUT a 1")
	roundTrip(t, conn, r, "PUT b 2")

	if got := roundTrip(t, conn, r, "EXISTS a"); got != "+OK 1\r\n" {
		t.Fatalf("EXISTS a -> %q, want +OK 1", got)
	}
	if got := roundTrip(t, conn, r, "SIZE"); got != "+OK 2\r\n" {
		t.Fatalf("SIZE -> %q, want +OK 2", got)
	}
	if got := roundTrip(t, conn, r, "DEL a"); got != "+OK DELETED\r\n" {
		t.Fatalf("DEL a -> %q, want +OK DELETED", got)
	}
	if got := roundTrip(t, conn, r, "EXISTS a"); got != "+OK 0\r\n" {
		t.Fatalf("EXISTS a after delete -> %q, want +OK 0", got)
	}
	if got := roundTrip(t, conn, r, "PING"); got != "+PONG\r\n" {
		t.Fatalf("PING -> %q, want +PONG", got)
	}
	if got := roundTrip(t, conn, r, "CLEAR"); got != "+OK CLEARED\r\n" {
		t.Fatalf("CLEAR -> %q, want +OK CLEARED", got)
	}
	if got := roundTrip(t, conn, r, "SIZE"); got != "+OK 0\r\n" {
		t.Fatalf("SIZE after CLEAR -> %q, want +OK 0", got)
	}
}

func TestUnknownCommandReturnsError(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	got := roundTrip(t, conn, r, "BOGUS")
	if got != "-ERROR Unknown command\r\n" {
		t.Fatalf("BOGUS -> %q, want -ERROR Unknown command", got)
	}
}

func TestQuitClosesConnection(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	if got := roundTrip(t, conn, r, "QUIT"); got != "+BYE\r\n" {
		t.Fatalf("QUIT -> %q, want +BYE", got)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if n != 0 || err == nil {
		t.Fatalf("expected EOF after QUIT, got n=%d err=%v", n, err)
	}
}

func TestMultipleRequestsInOneWrite(t *testing.T) {
	addr := startTestServer(t)
	conn, r := dial(t, addr)

	if _, err := conn.Write([]byte("PUT x 1\r\nGET x\r\n")); err != nil {
		t.Fatalf("write: %v", err)
	}

	first, err := r.ReadString('\n')
	if err != nil || first != "+OK CREATED\r\n" {
		t.Fatalf("first reply = %q, %v; want +OK CREATED", first, err)
	}
	second, err := r.ReadString('\n')
	if err != nil || second != "+OK 1\r\n" {
		t.Fatalf("second reply = %q, %v; want +OK 1", second, err)
	}
}
