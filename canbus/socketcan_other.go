//go:build !linux

package canbus

import (
	"errors"
	"runtime"
)

// DefaultInterface is the SocketCAN interface used when none is configured.
const DefaultInterface = "can0"

// DialSocketCAN is only available on Linux.
func DialSocketCAN(ifname string) Dialer {
	return func() (Conn, error) {
		return nil, errors.New("socketcan is not supported on " + runtime.GOOS)
	}
}
