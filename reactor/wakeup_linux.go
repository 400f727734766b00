//go:build linux
// +build linux

// File: reactor/wakeup_linux.go
// Author grounding: original_source/src/net/eventloop.cpp's wakeupFd_
// (Linux eventfd), spec §5 ("writing one 8-byte word to it unblocks poll").

package reactor

import (
	"encoding/binary"
	"fmt"

	"golang.org/x/sys/unix"
)

func newWakeupFD() (int, error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, fmt.Errorf("reactor: eventfd: %w", err)
	}
	return fd, nil
}

func writeWakeup(fd int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(fd, buf[:])
	if err != nil && err != unix.EAGAIN {
		return fmt.Errorf("reactor: wakeup write: %w", err)
	}
	return nil
}

func drainWakeup(fd int) {
	var buf [8]byte
	for {
		_, err := unix.Read(fd, buf[:])
		if err != nil {
			return
		}
	}
}

func closeWakeupFD(fd int) {
	unix.Close(fd)
}

// currentGoroutineID returns the calling OS thread's id. Stable for the
// lifetime of a goroutine that has called runtime.LockOSThread, which
// EventLoop guarantees by the time NewEventLoop returns.
func currentGoroutineID() uint64 {
	return uint64(unix.Gettid())
}
