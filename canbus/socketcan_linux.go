//go:build linux

package canbus

import (
	"fmt"
	"net"

	"github.com/brutella/can"
)

// DefaultInterface is the SocketCAN interface used when none is configured.
const DefaultInterface = "can0"

// socketConn adapts a brutella/can raw socket to Conn.
type socketConn struct {
	rwc can.ReadWriteCloser
}

// DialSocketCAN returns a Dialer for the named SocketCAN interface.
func DialSocketCAN(ifname string) Dialer {
	if ifname == "" {
		ifname = DefaultInterface
	}
	return func() (Conn, error) {
		iface, err := net.InterfaceByName(ifname)
		if err != nil {
			return nil, fmt.Errorf("lookup interface %s: %w", ifname, err)
		}
		rwc, err := can.NewReadWriteCloserForInterface(iface)
		if err != nil {
			return nil, fmt.Errorf("bind %s: %w", ifname, err)
		}
		return &socketConn{rwc: rwc}, nil
	}
}

func (c *socketConn) ReadFrame(f *Frame) error {
	var raw can.Frame
	for {
		if err := c.rwc.ReadFrame(&raw); err != nil {
			return err
		}
		if !isControlFrame(raw) {
			break
		}
	}
	*f = fromSocketFrame(raw)
	return nil
}

func (c *socketConn) WriteFrame(f Frame) error {
	return c.rwc.WriteFrame(toSocketFrame(f))
}

func (c *socketConn) Close() error {
	return c.rwc.Close()
}
