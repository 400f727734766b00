// File: reactor/connection.go
// Author grounding: original_source/src/net/tcp_connection.h/.cpp (state
// machine, sendInLoop direct-write-then-buffer algorithm, high-water-mark
// callback, connectEstablished/connectDestroyed lifecycle).
//
// Go has no shared_ptr/enable_shared_from_this. ReactorKV models the
// "connection kept alive as long as anyone holds it" contract with an
// explicit atomic refcount (Retain/Release) instead: the registry holds
// one ref, and callbacks captured in RunInLoop/QueueInLoop closures hold
// transient refs for their lifetime. The Channel's weak tie is a
// *int32 liveness flag flipped to 0 exactly once, from connectDestroyed.

package reactor

import (
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// connState mirrors TcpConnection's state machine.
type connState int32

const (
	stateConnecting connState = iota
	stateConnected
	stateDisconnecting
	stateDisconnected
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateDisconnecting:
		return "disconnecting"
	case stateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// defaultHighWaterMark matches TcpConnection's 64MB default.
const defaultHighWaterMark = 64 * 1024 * 1024

// ConnectionCallback fires once when a connection is established and
// again when it is about to be destroyed; check Connected() to tell them
// apart, matching original_source's single callback reused at both ends.
type ConnectionCallback func(conn *Connection)

// MessageCallback fires whenever a read delivers bytes into conn's input
// buffer; the handler is expected to drain what it can recognize. pollTime
// is the timestamp the Poller reported for the readiness pass that woke
// this read.
type MessageCallback func(conn *Connection, input *Buffer, pollTime time.Time)

// WriteCompleteCallback fires once a Send's data has all reached the
// socket: queued right after a direct write that wrote everything, or
// once the output buffer has fully drained.
type WriteCompleteCallback func(conn *Connection)

// HighWaterMarkCallback fires once, when an in-flight Send pushes the
// output buffer from below highWaterMark to at or above it.
type HighWaterMarkCallback func(conn *Connection, queuedBytes int)

// CloseCallback notifies the owning Server that conn should be dropped
// from its registry. Invoked after ConnectionCallback's close-time call.
type CloseCallback func(conn *Connection)

// Connection represents one accepted TCP connection, composing a raw
// socket fd and a Channel. It is reference counted: Retain/Release let
// several collaborators (the registry, in-flight closures queued on the
// loop) share ownership without Go's absent shared_ptr. NewConnection
// establishes the registry's reference at refs == 1; every other
// collaborator that needs the connection to survive across a RunInLoop or
// QueueInLoop dispatch calls Retain before capturing it and Release once
// its closure has run. Release closes the underlying fd the instant the
// count reaches zero, so the connection is torn down exactly once, no
// matter which collaborator happens to hold the last reference.
type Connection struct {
	loop *EventLoop
	name string

	fd      int
	channel *Channel

	localAddr InetAddress
	peerAddr  InetAddress

	state connState
	alive int32 // tie liveness flag; 1 while the connection may still dispatch, 0 after connectDestroyed
	refs  int32

	input  *Buffer
	output *Buffer

	highWaterMark int

	connectionCallback    ConnectionCallback
	messageCallback       MessageCallback
	writeCompleteCallback WriteCompleteCallback
	highWaterMarkCallback HighWaterMarkCallback
	closeCallback         CloseCallback
}

// NewConnection wraps an accepted fd. The connection starts in the
// Connecting state; the owning Server calls ConnectEstablished once it
// has finished wiring callbacks.
func NewConnection(loop *EventLoop, name string, fd int, local, peer InetAddress) *Connection {
	c := &Connection{
		loop:          loop,
		name:          name,
		fd:            fd,
		channel:       NewChannel(loop, fd),
		localAddr:     local,
		peerAddr:      peer,
		state:         stateConnecting,
		alive:         1,
		refs:          1,
		input:         NewBuffer(initialBufferSize),
		output:        NewBuffer(initialBufferSize),
		highWaterMark: defaultHighWaterMark,
	}
	c.channel.SetReadCallback(c.handleRead)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetCloseCallback(c.handleClose)
	c.channel.SetErrorCallback(c.handleError)
	setKeepAlive(fd, true)
	return c
}

// Retain increments the reference count. Call before capturing conn in a
// closure handed to RunInLoop/QueueInLoop from outside the owning loop.
func (c *Connection) Retain() { atomic.AddInt32(&c.refs, 1) }

// Release decrements the reference count. A Connection reaching zero refs
// has no remaining owner: Release closes its fd and callers must not use
// it afterward.
func (c *Connection) Release() {
	if atomic.AddInt32(&c.refs, -1) > 0 {
		return
	}
	if err := unix.Close(c.fd); err != nil {
		log.Printf("reactor: connection %s close: %v", c.name, err)
	}
}

// Loop returns the EventLoop this connection is bound to.
func (c *Connection) Loop() *EventLoop { return c.loop }

// Name returns the connection's unique name, assigned by its Server.
func (c *Connection) Name() string { return c.name }

// LocalAddr and PeerAddr return the connection's bound and remote
// addresses.
func (c *Connection) LocalAddr() InetAddress { return c.localAddr }
func (c *Connection) PeerAddr() InetAddress  { return c.peerAddr }

// Connected reports whether the connection is currently usable for Send.
func (c *Connection) Connected() bool {
	return connState(atomic.LoadInt32((*int32)(&c.state))) == stateConnected
}

// Disconnected reports whether the connection has fully closed.
func (c *Connection) Disconnected() bool {
	return connState(atomic.LoadInt32((*int32)(&c.state))) == stateDisconnected
}

func (c *Connection) setState(s connState) {
	atomic.StoreInt32((*int32)(&c.state), int32(s))
}

func (c *Connection) getState() connState {
	return connState(atomic.LoadInt32((*int32)(&c.state)))
}

// SetConnectionCallback, SetMessageCallback, SetWriteCompleteCallback and
// SetCloseCallback install the connection's collaborators. Must be called
// before ConnectEstablished.
func (c *Connection) SetConnectionCallback(cb ConnectionCallback)    { c.connectionCallback = cb }
func (c *Connection) SetMessageCallback(cb MessageCallback)         { c.messageCallback = cb }
func (c *Connection) SetWriteCompleteCallback(cb WriteCompleteCallback) {
	c.writeCompleteCallback = cb
}
func (c *Connection) SetCloseCallback(cb CloseCallback) { c.closeCallback = cb }

// SetHighWaterMarkCallback installs cb, fired the first time queued
// output crosses mark bytes during a single Send.
func (c *Connection) SetHighWaterMarkCallback(cb HighWaterMarkCallback, mark int) {
	c.highWaterMarkCallback = cb
	c.highWaterMark = mark
}

// InputBuffer and OutputBuffer expose the connection's buffers to a
// MessageCallback that needs to consume partial frames across calls.
func (c *Connection) InputBuffer() *Buffer  { return c.input }
func (c *Connection) OutputBuffer() *Buffer { return c.output }

// Send queues message for delivery, writing synchronously when possible.
// Safe to call from any goroutine.
func (c *Connection) Send(message []byte) {
	if c.getState() != stateConnected {
		return
	}
	if c.loop.IsInLoopGoroutine() {
		c.sendInLoop(message)
		return
	}
	buf := append([]byte(nil), message...)
	c.Retain()
	c.loop.RunInLoop(func() {
		defer c.Release()
		c.sendInLoop(buf)
	})
}

// SendString is a convenience wrapper around Send for string payloads.
func (c *Connection) SendString(s string) { c.Send([]byte(s)) }

func (c *Connection) sendInLoop(data []byte) {
	c.loop.AssertInLoopGoroutine()

	if c.getState() == stateDisconnected {
		log.Printf("reactor: connection %s disconnected, dropping write", c.name)
		return
	}

	var nwrote int
	remaining := len(data)
	faultError := false

	if !c.channel.IsWriting() && c.output.ReadableBytes() == 0 {
		n, err := unix.Write(c.fd, data)
		if err == nil {
			nwrote = n
			remaining = len(data) - n
			if remaining == 0 && c.writeCompleteCallback != nil {
				c.Retain()
				c.loop.QueueInLoop(func() {
					defer c.Release()
					c.writeCompleteCallback(c)
				})
			}
		} else {
			nwrote = 0
			if !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
				log.Printf("reactor: connection %s write error: %v", c.name, err)
				if errors.Is(err, unix.EPIPE) || errors.Is(err, unix.ECONNRESET) {
					faultError = true
				}
			}
		}
	}

	if !faultError && remaining > 0 {
		oldLen := c.output.ReadableBytes()
		if oldLen+remaining >= c.highWaterMark && oldLen < c.highWaterMark && c.highWaterMarkCallback != nil {
			queued := oldLen + remaining
			c.Retain()
			c.loop.QueueInLoop(func() {
				defer c.Release()
				c.highWaterMarkCallback(c, queued)
			})
		}
		c.output.Append(data[nwrote:])
		if !c.channel.IsWriting() {
			c.channel.EnableWriting()
		}
	}
}

// Shutdown half-closes the connection's write side once any queued output
// has drained, letting the peer observe EOF while still-buffered bytes
// are delivered.
func (c *Connection) Shutdown() {
	if c.getState() != stateConnected {
		return
	}
	c.setState(stateDisconnecting)
	c.loop.RunInLoop(c.shutdownInLoop)
}

func (c *Connection) shutdownInLoop() {
	c.loop.AssertInLoopGoroutine()
	if !c.channel.IsWriting() {
		if err := shutdownWrite(c.fd); err != nil {
			log.Printf("reactor: connection %s shutdown write: %v", c.name, err)
		}
	}
}

// ForceClose closes the connection immediately, discarding any buffered
// output.
func (c *Connection) ForceClose() {
	st := c.getState()
	if st != stateConnected && st != stateDisconnecting {
		return
	}
	c.setState(stateDisconnecting)
	c.Retain()
	c.loop.QueueInLoop(func() {
		defer c.Release()
		c.forceCloseInLoop()
	})
}

func (c *Connection) forceCloseInLoop() {
	c.loop.AssertInLoopGoroutine()
	st := c.getState()
	if st == stateConnected || st == stateDisconnecting {
		c.handleClose()
	}
}

// SetTCPNoDelay toggles Nagle's algorithm on the underlying socket.
func (c *Connection) SetTCPNoDelay(on bool) error {
	return setTCPNoDelay(c.fd, on)
}

// ConnectEstablished transitions the connection to Connected, ties its
// Channel's callbacks to this connection's liveness, and enables reading.
// Called once by the owning Server, on loop's own goroutine.
func (c *Connection) ConnectEstablished() {
	c.loop.AssertInLoopGoroutine()
	c.setState(stateConnected)
	c.channel.Tie(&c.alive)
	c.channel.EnableReading()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
}

// ConnectDestroyed tears the connection down: flips the liveness flag so
// any event the Channel is mid-dispatching gets suppressed, runs the
// connection callback one last time if the peer never triggered
// handleClose, and unregisters the Channel. Called once by the owning
// Server.
func (c *Connection) ConnectDestroyed() {
	c.loop.AssertInLoopGoroutine()
	if c.getState() == stateConnected {
		c.setState(stateDisconnected)
		c.channel.DisableAll()
		if c.connectionCallback != nil {
			c.connectionCallback(c)
		}
	}
	atomic.StoreInt32(&c.alive, 0)
	c.channel.Remove()
}

func (c *Connection) handleRead(pollTime time.Time) {
	c.loop.AssertInLoopGoroutine()

	n, err := c.input.ReadFD(c.fd)
	switch {
	case n > 0:
		if c.messageCallback != nil {
			c.messageCallback(c, c.input, pollTime)
		}
	case n == 0:
		c.handleClose()
	default:
		if err != nil && !errors.Is(err, unix.EAGAIN) && !errors.Is(err, unix.EWOULDBLOCK) {
			log.Printf("reactor: connection %s read error: %v", c.name, err)
			c.handleError()
			c.handleClose()
		}
	}
}

func (c *Connection) handleWrite() {
	c.loop.AssertInLoopGoroutine()

	if !c.channel.IsWriting() {
		return
	}
	n, err := c.output.WriteFD(c.fd)
	if err != nil {
		log.Printf("reactor: connection %s write error: %v", c.name, err)
		return
	}
	c.output.Retrieve(n)
	if c.output.ReadableBytes() == 0 {
		c.channel.DisableWriting()
		if c.writeCompleteCallback != nil {
			c.Retain()
			c.loop.QueueInLoop(func() {
				defer c.Release()
				c.writeCompleteCallback(c)
			})
		}
		if c.getState() == stateDisconnecting {
			c.shutdownInLoop()
		}
	}
}

func (c *Connection) handleClose() {
	c.loop.AssertInLoopGoroutine()
	c.setState(stateDisconnected)
	c.channel.DisableAll()

	if c.connectionCallback != nil {
		c.connectionCallback(c)
	}
	if c.closeCallback != nil {
		c.closeCallback(c)
	}
}

func (c *Connection) handleError() {
	errno, err := unix.GetsockoptInt(c.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		log.Printf("reactor: connection %s SO_ERROR lookup failed: %v", c.name, err)
		return
	}
	log.Printf("reactor: connection %s SO_ERROR=%d", c.name, errno)
}

func (c *Connection) String() string {
	return fmt.Sprintf("Connection{name=%s fd=%d state=%s}", c.name, c.fd, c.getState())
}
