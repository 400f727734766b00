// Package kvserver wires reactor.Server to kvstore.Store through the
// line protocol: connection greeting, request framing off each
// connection's input buffer, and the command dispatch table.
//
// Author grounding: original_source/src/server/kv_server.h/.cpp
// (onConnection welcome banner, onMessage drain-while-readable loop,
// handleRequest's per-command Response construction).
package kvserver

import (
	"fmt"
	"log"
	"time"

	"github.com/Lucky-mi/reactorkv/kvstore"
	"github.com/Lucky-mi/reactorkv/protocol"
	"github.com/Lucky-mi/reactorkv/reactor"
)

// slowRequestThreshold bounds how long a drain of a connection's framed
// requests may take, measured from the poll that woke the read, before
// it is logged as slow.
const slowRequestThreshold = 50 * time.Millisecond

const welcomeBanner = "+WELCOME ReactorKV Server\r\n"

// Server integrates a reactor.Server with a kvstore.Store, dispatching
// each connection's framed requests against the store and writing back
// encoded responses.
type Server struct {
	loop     *reactor.EventLoop
	net      *reactor.Server
	store    *kvstore.Store
	name     string
	dataFile string
}

// New constructs a Server listening on addr, backed by a fresh Store
// whose skip list caps its level count at maxLevel.
func New(loop *reactor.EventLoop, addr reactor.InetAddress, name string, maxLevel int) (*Server, error) {
	netServer, err := reactor.NewServer(loop, addr, name, true)
	if err != nil {
		return nil, err
	}

	s := &Server{
		loop:  loop,
		net:   netServer,
		store: kvstore.New(maxLevel),
		name:  name,
	}
	netServer.SetConnectionCallback(s.onConnection)
	netServer.SetMessageCallback(s.onMessage)
	return s, nil
}

// SetNumLoops configures the sub-reactor pool size. Must be called
// before Start.
func (s *Server) SetNumLoops(n int) { s.net.SetNumLoops(n) }

// Store returns the underlying KV store, for tests and startup load/save.
func (s *Server) Store() *kvstore.Store { return s.store }

// IPPort returns the server's listen address as "ip:port".
func (s *Server) IPPort() string { return s.net.IPPort() }

// Start begins accepting connections.
func (s *Server) Start() error {
	log.Printf("kvserver: %q starting", s.name)
	return s.net.Start()
}

// Stop quits the sub-reactor pool. The caller is responsible for quitting
// the main loop separately.
func (s *Server) Stop() { s.net.Stop() }

// LoadData loads the store's contents from filepath and remembers it as
// the path DataFile reports.
func (s *Server) LoadData(filepath string) error {
	s.dataFile = filepath
	return s.store.Load(filepath)
}

// SaveData persists the store's contents to filepath.
func (s *Server) SaveData(filepath string) error {
	s.dataFile = filepath
	return s.store.Save(filepath)
}

// DataFile returns the path most recently passed to LoadData or
// SaveData, or "" if neither has been called.
func (s *Server) DataFile() string { return s.dataFile }

func (s *Server) onConnection(conn *reactor.Connection) {
	if conn.Connected() {
		log.Printf("kvserver: client connected: %s", conn.PeerAddr())
		conn.SendString(welcomeBanner)
	} else {
		log.Printf("kvserver: client disconnected: %s", conn.PeerAddr())
	}
}

// onMessage drains every complete request currently framed in conn's
// input buffer; a partial trailing line is left for the next read.
// pollTime is when the underlying readiness was observed; a drain that
// runs unusually long after that is logged as slow.
func (s *Server) onMessage(conn *reactor.Connection, input *reactor.Buffer, pollTime time.Time) {
	for input.ReadableBytes() > 0 {
		request, ok := protocol.ParseRequest(input)
		if !ok {
			break
		}

		response := s.handleRequest(request)
		conn.SendString(protocol.EncodeResponse(response))

		if request.Command == protocol.CommandQuit {
			conn.Shutdown()
			break
		}
	}

	if elapsed := time.Since(pollTime); elapsed > slowRequestThreshold {
		log.Printf("kvserver: slow request drain for %s: %s", conn.Name(), elapsed)
	}
}

func (s *Server) handleRequest(request protocol.Request) protocol.Response {
	switch request.Command {
	case protocol.CommandPut:
		if request.Key == "" {
			return protocol.Error("Key cannot be empty")
		}
		isNew, err := s.store.Put(request.Key, request.Value)
		if err != nil {
			return protocol.Error(err.Error())
		}
		if isNew {
			return protocol.OK("CREATED")
		}
		return protocol.OK("UPDATED")

	case protocol.CommandGet:
		value, found := s.store.Get(request.Key)
		if !found {
			return protocol.NotFound()
		}
		return protocol.OK(value)

	case protocol.CommandDel:
		if s.store.Del(request.Key) {
			return protocol.OK("DELETED")
		}
		return protocol.NotFound()

	case protocol.CommandExists:
		if s.store.Exists(request.Key) {
			return protocol.OK("1")
		}
		return protocol.OK("0")

	case protocol.CommandSize:
		return protocol.OK(fmt.Sprintf("%d", s.store.Size()))

	case protocol.CommandClear:
		s.store.Clear()
		return protocol.OK("CLEARED")

	case protocol.CommandPing:
		return protocol.Pong()

	case protocol.CommandQuit:
		return protocol.Bye()

	default:
		return protocol.Error("Unknown command")
	}
}
