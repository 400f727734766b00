//go:build linux
// +build linux

// File: reactor/poller_linux.go
// Author grounding: original_source/src/net/epoll_poller.cpp (ET mode,
// fillActiveChannels, growable event list), momentics/hioload-ws
// reactor/reactor_linux.go (unix.EpollCreate1/EpollCtl/EpollWait usage).

package reactor

import (
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

const initEventListSize = 16

// epollPoller implements Poller using Linux epoll in edge-triggered mode.
type epollPoller struct {
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*Channel // fd -> Channel, mutated only on the owning loop thread
}

// NewPoller constructs the platform Poller. On Linux this is epoll-backed.
func NewPoller() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("reactor: epoll_create1: %w", err)
	}
	return &epollPoller{
		epfd:     epfd,
		events:   make([]unix.EpollEvent, initEventListSize),
		channels: make(map[int]*Channel),
	}, nil
}

func (p *epollPoller) Poll(timeoutMs int, out *[]*Channel) (time.Time, error) {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := time.Now()
	if err != nil {
		if err == unix.EINTR {
			return now, nil
		}
		return now, fmt.Errorf("reactor: epoll_wait: %w", err)
	}

	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		ch, ok := p.channels[fd]
		if !ok {
			continue
		}
		ch.SetRevent(int32(p.events[i].Events))
		*out = append(*out, ch)
	}

	// Grow the event list once it was fully saturated, so a future Poll
	// call can observe more than initEventListSize ready descriptors.
	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now, nil
}

func (p *epollPoller) UpdateChannel(ch *Channel) error {
	switch ch.Index() {
	case channelStateNew, channelStateDeleted:
		fd := ch.FD()
		if ch.Index() == channelStateNew {
			p.channels[fd] = ch
		}
		ch.SetIndex(channelStateAdded)
		return p.ctl(unix.EPOLL_CTL_ADD, ch)
	default:
		if ch.IsNoneEvent() {
			ch.SetIndex(channelStateDeleted)
			return p.ctl(unix.EPOLL_CTL_DEL, ch)
		}
		return p.ctl(unix.EPOLL_CTL_MOD, ch)
	}
}

func (p *epollPoller) RemoveChannel(ch *Channel) error {
	fd := ch.FD()
	delete(p.channels, fd)
	var err error
	if ch.Index() == channelStateAdded {
		err = p.ctl(unix.EPOLL_CTL_DEL, ch)
	}
	ch.SetIndex(channelStateNew)
	return err
}

func (p *epollPoller) HasChannel(ch *Channel) bool {
	found, ok := p.channels[ch.FD()]
	return ok && found == ch
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}

func (p *epollPoller) ctl(op int, ch *Channel) error {
	ev := unix.EpollEvent{
		Events: uint32(translateInterest(ch.Events())) | unix.EPOLLET,
		Fd:     int32(ch.FD()),
	}
	if err := unix.EpollCtl(p.epfd, op, ch.FD(), &ev); err != nil {
		return fmt.Errorf("reactor: epoll_ctl(op=%d, fd=%d): %w", op, ch.FD(), err)
	}
	return nil
}

func translateInterest(mask int32) uint32 {
	var e uint32
	if mask&EventRead != 0 {
		e |= unix.EPOLLIN
	}
	if mask&EventWrite != 0 {
		e |= unix.EPOLLOUT
	}
	return e
}
