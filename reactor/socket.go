//go:build linux
// +build linux

// File: reactor/socket.go
// Author grounding: original_source/src/net/socket.h/.cpp, momentics
// hioload-ws internal/transport/transport_linux.go (raw unix.Socket
// construction, SetsockoptInt option pattern).

package reactor

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// createNonblockingSocket returns a non-blocking, close-on-exec IPv4 TCP
// socket fd, matching Socket::createNonblockingSocket.
func createNonblockingSocket() (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return -1, fmt.Errorf("reactor: socket: %w", err)
	}
	return fd, nil
}

func setReuseAddr(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, boolToInt(on))
}

// setReusePort mirrors Socket::setReusePort: a failure is logged by the
// caller, not fatal, since SO_REUSEPORT support varies by kernel.
func setReusePort(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, boolToInt(on))
}

func setTCPNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolToInt(on))
}

func setKeepAlive(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolToInt(on))
}

func bindAddress(fd int, addr InetAddress) error {
	if err := unix.Bind(fd, addr.sockaddr()); err != nil {
		return fmt.Errorf("reactor: bind %s: %w", addr, err)
	}
	return nil
}

func listenSocket(fd int) error {
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		return fmt.Errorf("reactor: listen: %w", err)
	}
	return nil
}

// acceptSocket wraps accept4 with SOCK_NONBLOCK|SOCK_CLOEXEC, matching
// Socket::accept. A nil error with fd < 0 never occurs; EAGAIN and other
// errno values are surfaced for the caller to classify.
func acceptSocket(listenFD int) (int, InetAddress, error) {
	connFD, sa, err := unix.Accept4(listenFD, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, InetAddress{}, err
	}
	return connFD, inetAddressFromSockaddr(sa), nil
}

func shutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
