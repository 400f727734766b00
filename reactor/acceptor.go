//go:build linux
// +build linux

// File: reactor/acceptor.go
// Author grounding: original_source/src/net/acceptor.h/.cpp (non-blocking
// listening socket, accept-loop-until-drained, EMFILE tolerance).

package reactor

import (
	"fmt"
	"log"
	"time"

	"golang.org/x/sys/unix"
)

// NewConnectionCallback receives an accepted connection's fd and peer
// address. It must take ownership of fd (close it, or hand it to a
// Connection that will).
type NewConnectionCallback func(fd int, peer InetAddress)

// Acceptor owns the server's listening socket and hands accepted
// connections to newConnectionCallback, called on loop's own goroutine.
type Acceptor struct {
	loop                  *EventLoop
	fd                    int
	channel               *Channel
	newConnectionCallback NewConnectionCallback
	listening             bool
}

// NewAcceptor creates a non-blocking listening socket bound to addr.
// reusePort controls SO_REUSEPORT, allowing multiple processes to share
// the listen address; it does not affect the single in-process Acceptor.
func NewAcceptor(loop *EventLoop, addr InetAddress, reusePort bool) (*Acceptor, error) {
	fd, err := createNonblockingSocket()
	if err != nil {
		return nil, err
	}
	if err := setReuseAddr(fd, true); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("reactor: acceptor: %w", err)
	}
	if err := setReusePort(fd, reusePort); err != nil && reusePort {
		log.Printf("reactor: SO_REUSEPORT not supported: %v", err)
	}
	if err := bindAddress(fd, addr); err != nil {
		unix.Close(fd)
		return nil, err
	}

	a := &Acceptor{
		loop:    loop,
		fd:      fd,
		channel: NewChannel(loop, fd),
	}
	a.channel.SetReadCallback(a.handleRead)
	return a, nil
}

// SetNewConnectionCallback installs the callback invoked for each accepted
// connection. Must be called before Listen.
func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionCallback) {
	a.newConnectionCallback = cb
}

// Listen starts accepting connections. Must be called on loop's own
// goroutine.
func (a *Acceptor) Listen() error {
	a.loop.AssertInLoopGoroutine()
	if err := listenSocket(a.fd); err != nil {
		return err
	}
	a.listening = true
	a.channel.EnableReading()
	log.Printf("reactor: acceptor listening on fd=%d", a.fd)
	return nil
}

// Listening reports whether Listen has succeeded.
func (a *Acceptor) Listening() bool { return a.listening }

// Close stops accepting and releases the listening socket.
func (a *Acceptor) Close() {
	a.channel.DisableAll()
	a.channel.Remove()
	unix.Close(a.fd)
}

// handleRead drains every pending connection on one edge-triggered
// readiness notification, matching the ET contract: a single accept per
// wakeup would strand connections queued behind the first.
func (a *Acceptor) handleRead(time.Time) {
	a.loop.AssertInLoopGoroutine()

	for {
		connFD, peer, err := acceptSocket(a.fd)
		if err != nil {
			switch err {
			case unix.EAGAIN:
				return
			case unix.EMFILE, unix.ENFILE:
				log.Printf("reactor: acceptor: file descriptors exhausted: %v", err)
				return
			default:
				log.Printf("reactor: acceptor: accept failed: %v", err)
				return
			}
		}

		if a.newConnectionCallback != nil {
			a.newConnectionCallback(connFD, peer)
		} else {
			unix.Close(connFD)
		}
	}
}
