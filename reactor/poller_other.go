//go:build !linux
// +build !linux

// File: reactor/poller_other.go
// Author grounding: momentics/hioload-ws reactor/reactor_stub.go — the
// teacher ships an explicit unsupported-platform stub rather than a
// silent fallback poller; ReactorKV follows the same convention since
// the spec's edge-triggered contract is epoll-specific.

package reactor

import "errors"

// NewPoller returns an error: ReactorKV's edge-triggered contract is
// specified in terms of epoll and has no portable equivalent here.
func NewPoller() (Poller, error) {
	return nil, errors.New("reactor: edge-triggered poller requires linux")
}
