//go:build !linux
// +build !linux

// File: reactor/wakeup_other.go

package reactor

import "errors"

func newWakeupFD() (int, error) {
	return -1, errors.New("reactor: wakeup descriptor requires linux")
}

func writeWakeup(fd int) error { return errors.New("reactor: unsupported platform") }

func drainWakeup(fd int) {}

func closeWakeupFD(fd int) {}

func currentGoroutineID() uint64 { return 0 }
