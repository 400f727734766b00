//go:build linux
// +build linux

// File: reactor/server.go
// Author grounding: original_source/src/net/tcp_server.h/.cpp
// (newConnection round-robin dispatch + naming, removeConnection
// re-dispatch via the listener loop then back to the owning I/O loop).

package reactor

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// Server composes an Acceptor and a LoopPool of sub-reactors into the
// network engine's external surface: install callbacks, call SetNumLoops,
// then Start.
type Server struct {
	loop     *EventLoop // main reactor, owns the listening socket
	ipPort   string
	name     string
	acceptor *Acceptor
	pool     *LoopPool

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	threadInitCallback    func(*EventLoop)

	started    int32
	nextConnID int

	mu          sync.Mutex
	connections map[string]*Connection
}

// NewServer constructs a Server bound to listenAddr on loop, which must
// not yet be running. reusePort is passed through to the Acceptor.
func NewServer(loop *EventLoop, listenAddr InetAddress, name string, reusePort bool) (*Server, error) {
	acceptor, err := NewAcceptor(loop, listenAddr, reusePort)
	if err != nil {
		return nil, err
	}
	s := &Server{
		loop:        loop,
		ipPort:      listenAddr.String(),
		name:        name,
		acceptor:    acceptor,
		pool:        NewLoopPool(loop, name),
		nextConnID:  1,
		connections: make(map[string]*Connection),
	}
	acceptor.SetNewConnectionCallback(s.newConnection)
	return s, nil
}

// SetNumLoops configures the number of sub-reactor I/O loops. Must be
// called before Start.
func (s *Server) SetNumLoops(n int) { s.pool.SetNumLoops(n) }

// SetThreadInitCallback installs a hook run on each sub-reactor's own
// goroutine before it starts looping.
func (s *Server) SetThreadInitCallback(cb func(*EventLoop)) { s.threadInitCallback = cb }

// SetConnectionCallback, SetMessageCallback and SetWriteCompleteCallback
// install the handlers every accepted Connection is wired with.
func (s *Server) SetConnectionCallback(cb ConnectionCallback)       { s.connectionCallback = cb }
func (s *Server) SetMessageCallback(cb MessageCallback)             { s.messageCallback = cb }
func (s *Server) SetWriteCompleteCallback(cb WriteCompleteCallback) { s.writeCompleteCallback = cb }

// IPPort returns the server's listen address as "ip:port".
func (s *Server) IPPort() string { return s.ipPort }

// Name returns the server's label, used as a prefix for connection names.
func (s *Server) Name() string { return s.name }

// Loop returns the main reactor loop that owns the listening socket.
func (s *Server) Loop() *EventLoop { return s.loop }

// Start spins up the sub-reactor pool and begins accepting connections.
// Idempotent: a second call is a no-op.
func (s *Server) Start() error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil
	}
	if err := s.pool.Start(s.threadInitCallback); err != nil {
		return err
	}
	var listenErr error
	s.loop.RunInLoop(func() {
		listenErr = s.acceptor.Listen()
	})
	if listenErr != nil {
		return listenErr
	}
	log.Printf("reactor: server %q started on %s", s.name, s.ipPort)
	return nil
}

// newConnection is the Acceptor's NewConnectionCallback: it picks an I/O
// loop round-robin, assigns the connection a unique name, and establishes
// it on that loop.
func (s *Server) newConnection(fd int, peer InetAddress) {
	s.loop.AssertInLoopGoroutine()

	ioLoop := s.pool.GetNextLoop()

	connName := fmt.Sprintf("%s-%s#%d", s.name, s.ipPort, s.nextConnID)
	s.nextConnID++

	log.Printf("reactor: server %q new connection %q from %s", s.name, connName, peer)

	local, err := localAddrOf(fd)
	if err != nil {
		log.Printf("reactor: server %q getsockname failed for %q: %v", s.name, connName, err)
	}

	conn := NewConnection(ioLoop, connName, fd, local, peer)

	s.mu.Lock()
	s.connections[connName] = conn
	s.mu.Unlock()

	conn.SetConnectionCallback(s.connectionCallback)
	conn.SetMessageCallback(s.messageCallback)
	conn.SetWriteCompleteCallback(s.writeCompleteCallback)
	conn.SetCloseCallback(s.removeConnection)

	ioLoop.RunInLoop(conn.ConnectEstablished)
}

// removeConnection is a Connection's CloseCallback: it re-dispatches onto
// the main reactor loop, matching original_source's two-hop teardown
// (main loop drops the registry entry, the connection's own I/O loop runs
// connectDestroyed).
func (s *Server) removeConnection(conn *Connection) {
	conn.Retain()
	s.loop.RunInLoop(func() {
		defer conn.Release()
		s.removeConnectionInLoop(conn)
	})
}

// removeConnectionInLoop drops conn's registry entry, then dispatches
// ConnectDestroyed onto conn's own I/O loop and releases the reference
// NewConnection established. Release closes conn's fd once that was the
// last outstanding reference.
func (s *Server) removeConnectionInLoop(conn *Connection) {
	s.loop.AssertInLoopGoroutine()
	log.Printf("reactor: server %q removing connection %q", s.name, conn.Name())

	s.mu.Lock()
	delete(s.connections, conn.Name())
	s.mu.Unlock()

	ioLoop := conn.Loop()
	ioLoop.QueueInLoop(func() {
		conn.ConnectDestroyed()
		conn.Release()
	})
}

// Stop tears down every still-registered connection by dispatching
// ConnectDestroyed onto its owning loop and releasing the reference
// NewConnection established, then quits the sub-reactor pool's loops. The
// main reactor loop is left running; its owner (typically
// cmd/reactorkv-server's main) is responsible for quitting it.
func (s *Server) Stop() {
	s.acceptor.Close()

	for name, conn := range s.Connections() {
		name, conn := name, conn
		ioLoop := conn.Loop()
		ioLoop.RunInLoop(func() {
			conn.ConnectDestroyed()
			conn.Release()
		})

		s.mu.Lock()
		delete(s.connections, name)
		s.mu.Unlock()
	}

	s.pool.Stop()
}

// Connections returns a snapshot of currently registered connections,
// keyed by name.
func (s *Server) Connections() map[string]*Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]*Connection, len(s.connections))
	for k, v := range s.connections {
		out[k] = v
	}
	return out
}

func localAddrOf(fd int) (InetAddress, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return InetAddress{}, fmt.Errorf("reactor: getsockname: %w", err)
	}
	return inetAddressFromSockaddr(sa), nil
}
