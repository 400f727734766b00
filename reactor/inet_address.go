// File: reactor/inet_address.go
// Author grounding: original_source/src/net/inet_address.h/.cpp.

package reactor

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// InetAddress wraps an IPv4 socket address, the Go analogue of
// original_source's sockaddr_in wrapper.
type InetAddress struct {
	ip   [4]byte
	port uint16
}

// NewInetAddress builds an address listening on all interfaces, or only
// loopback when loopbackOnly is set.
func NewInetAddress(port uint16, loopbackOnly bool) InetAddress {
	if loopbackOnly {
		return InetAddress{ip: [4]byte{127, 0, 0, 1}, port: port}
	}
	return InetAddress{ip: [4]byte{0, 0, 0, 0}, port: port}
}

// NewInetAddressFromIP builds an address for a specific IPv4 host and port.
// A host that fails to parse as IPv4 falls back to 0.0.0.0, matching
// original_source's inet_pton failure handling.
func NewInetAddressFromIP(ip string, port uint16) InetAddress {
	addr := InetAddress{port: port}
	parsed := net.ParseIP(ip)
	if v4 := parsed.To4(); v4 != nil {
		copy(addr.ip[:], v4)
	}
	return addr
}

func inetAddressFromSockaddr(sa unix.Sockaddr) InetAddress {
	if v4, ok := sa.(*unix.SockaddrInet4); ok {
		return InetAddress{ip: v4.Addr, port: uint16(v4.Port)}
	}
	return InetAddress{}
}

func (a InetAddress) sockaddr() *unix.SockaddrInet4 {
	return &unix.SockaddrInet4{Addr: a.ip, Port: int(a.port)}
}

// IP returns the dotted-quad address string.
func (a InetAddress) IP() string {
	return net.IPv4(a.ip[0], a.ip[1], a.ip[2], a.ip[3]).String()
}

// Port returns the address's port number.
func (a InetAddress) Port() uint16 { return a.port }

// String returns "ip:port", matching original_source's toIpPort.
func (a InetAddress) String() string {
	return fmt.Sprintf("%s:%d", a.IP(), a.port)
}
