// File: reactor/poller.go
// Author grounding: original_source/src/net/poller.h,
// original_source/src/net/epoll_poller.h/.cpp,
// momentics/hioload-ws reactor/epoll_reactor.go and reactor/reactor_linux.go.

package reactor

import "time"

// Poller wraps readiness notification for a set of Channels, edge
// triggered: a descriptor's readiness is reported once per transition and
// must be drained until EAGAIN before the next Poll call.
type Poller interface {
	// Poll blocks up to timeoutMs and fills out with Channels whose
	// events fired, returning the moment readiness was observed. An
	// empty out with a nil error means a spurious or timed-out wake.
	Poll(timeoutMs int, out *[]*Channel) (time.Time, error)

	// UpdateChannel reconciles ch's registration against its current
	// interest mask.
	UpdateChannel(ch *Channel) error

	// RemoveChannel removes ch from the poller and its descriptor map.
	RemoveChannel(ch *Channel) error

	// HasChannel reports whether ch is currently tracked.
	HasChannel(ch *Channel) bool

	// Close releases the poller's own resources (e.g. the epoll fd).
	Close() error
}
