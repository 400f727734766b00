// File: reactor/channel.go
// Author grounding: original_source/src/net/channel.h,
// momentics/hioload-ws reactor/epoll_reactor.go FDCallback dispatch shape.

package reactor

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// interest / revent bitmasks, independent of the poller's native flags.
const (
	EventNone  = 0
	EventRead  = 1 << 0
	EventWrite = 1 << 1
)

// poller bookkeeping states, mirroring original_source's kNew/kAdded/kDeleted.
const (
	channelStateNew = iota
	channelStateAdded
	channelStateDeleted
)

// ReadCallback is invoked with the poll timestamp on read-readiness.
type ReadCallback func(pollTime time.Time)

// EventCallback is invoked with no arguments for write/close/error events.
type EventCallback func()

// Channel binds one file descriptor to the event callbacks that dispatch
// its readiness inside a single owning EventLoop. It does not own fd: the
// descriptor's owner (Connection, Acceptor) closes it.
type Channel struct {
	loop   *EventLoop
	fd     int
	events int32 // interest mask, only touched on the owning loop thread
	revent int32 // mask reported by the last Poll, set by the poller
	index  int   // poller bookkeeping state

	readCallback  ReadCallback
	writeCallback EventCallback
	closeCallback EventCallback
	errorCallback EventCallback

	tied      int32 // 1 once Tie has been called
	tieAlive  *int32
	eventBusy bool
}

// NewChannel creates a Channel for fd, owned by loop. It is not registered
// with the loop's Poller until a caller enables an interest.
func NewChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:  loop,
		fd:    fd,
		index: channelStateNew,
	}
}

// FD returns the bound file descriptor.
func (c *Channel) FD() int { return c.fd }

// Events returns the current interest mask.
func (c *Channel) Events() int32 { return atomic.LoadInt32(&c.events) }

// SetRevent records the mask the Poller observed for this Channel.
// Called only by the Poller implementation on the owning loop thread.
func (c *Channel) SetRevent(r int32) { c.revent = r }

func (c *Channel) Index() int        { return c.index }
func (c *Channel) SetIndex(i int)    { c.index = i }
func (c *Channel) OwnerLoop() *EventLoop { return c.loop }

func (c *Channel) SetReadCallback(cb ReadCallback)   { c.readCallback = cb }
func (c *Channel) SetWriteCallback(cb EventCallback) { c.writeCallback = cb }
func (c *Channel) SetCloseCallback(cb EventCallback) { c.closeCallback = cb }
func (c *Channel) SetErrorCallback(cb EventCallback) { c.errorCallback = cb }

// Tie binds a liveness flag owned by the Connection using this Channel.
// Go has no std::weak_ptr; the liveness flag is the idiomatic substitute:
// the Connection flips it to 0 exactly once, from connectDestroyed, after
// which HandleEvent suppresses every callback instead of attempting to
// upgrade a dangling reference.
func (c *Channel) Tie(alive *int32) {
	c.tieAlive = alive
	atomic.StoreInt32(&c.tied, 1)
}

func (c *Channel) tiedAndDead() bool {
	if atomic.LoadInt32(&c.tied) == 0 {
		return false
	}
	return atomic.LoadInt32(c.tieAlive) == 0
}

// EnableReading, EnableWriting, DisableWriting and DisableAll mutate the
// interest mask and push the change to the owning loop's Poller. Callers
// must be on the owning loop thread.
func (c *Channel) EnableReading() {
	c.events |= EventRead
	c.update()
}

func (c *Channel) DisableReading() {
	c.events &^= EventRead
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= EventWrite
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= EventWrite
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

func (c *Channel) IsWriting() bool  { return c.events&EventWrite != 0 }
func (c *Channel) IsReading() bool  { return c.events&EventRead != 0 }
func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// Remove unregisters the Channel from its owning loop's Poller. Must be
// called after DisableAll, once no further events should be dispatched.
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// HandleEvent dispatches the revent mask most recently reported by the
// Poller, following the order mandated by the spec: tie check, close,
// error, read, write. pollTime is the timestamp the owning loop's Poll
// call returned for this readiness pass, forwarded to the read callback.
func (c *Channel) HandleEvent(pollTime time.Time) {
	if c.tiedAndDead() {
		return
	}
	revents := c.revent

	if revents&unix.EPOLLHUP != 0 && revents&unix.EPOLLIN == 0 {
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}
	if revents&(unix.EPOLLERR) != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}
	if revents&(unix.EPOLLIN|unix.EPOLLPRI|unix.EPOLLRDHUP) != 0 {
		if c.readCallback != nil {
			c.readCallback(pollTime)
		}
	}
	if revents&unix.EPOLLOUT != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
