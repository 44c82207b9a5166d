package canbus

import (
	"fmt"
	"io"
	"sync"

	"github.com/banshee-data/uskin/internal/monitoring"
)

// Conn is a bidirectional frame connection to a bus. ReadFrame blocks until
// a frame arrives or the link fails.
type Conn interface {
	ReadFrame(*Frame) error
	WriteFrame(Frame) error
	io.Closer
}

// Dialer opens a Conn. Bus calls it from Open.
type Dialer func() (Conn, error)

// Transport is the bus collaborator a sensor drives: open the link, send
// start/stop commands to a device and receive one frame at a time.
type Transport interface {
	Open() error
	SendStart(device uint32) error
	SendStop(device uint32) error
	// Receive blocks until one frame arrives or the link errors. There is
	// no timeout; callers wanting bounded latency close the transport from
	// another goroutine.
	Receive() (Frame, error)
	Close() error
}

// Bus implements Transport on top of a Conn produced by a Dialer.
type Bus struct {
	name string
	dial Dialer

	mu   sync.Mutex
	conn Conn

	writeMu sync.Mutex
}

// NewBus returns a closed Bus; Open dials the connection.
func NewBus(name string, dial Dialer) *Bus {
	return &Bus{name: name, dial: dial}
}

func (b *Bus) String() string { return b.name }

// Open dials the underlying connection. Opening an open bus is a no-op.
func (b *Bus) Open() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return nil
	}
	conn, err := b.dial()
	if err != nil {
		return fmt.Errorf("open %s: %w", b.name, err)
	}
	b.conn = conn
	monitoring.Logf("canbus: opened %s", b.name)
	return nil
}

func (b *Bus) current() (Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return nil, ErrNotOpen
	}
	return b.conn, nil
}

// Send writes one frame to the bus.
func (b *Bus) Send(f Frame) error {
	conn, err := b.current()
	if err != nil {
		return err
	}
	if err := f.Validate(); err != nil {
		return err
	}
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := conn.WriteFrame(f); err != nil {
		return fmt.Errorf("write %s: %w", f, err)
	}
	return nil
}

// SendStart asks device to begin streaming node readings.
func (b *Bus) SendStart(device uint32) error {
	return b.Send(StartCommand(device))
}

// SendStop asks device to stop streaming.
func (b *Bus) SendStop(device uint32) error {
	return b.Send(StopCommand(device))
}

// Receive blocks for the next frame.
func (b *Bus) Receive() (Frame, error) {
	conn, err := b.current()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := conn.ReadFrame(&f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the connection. A blocked Receive returns with an error.
func (b *Bus) Close() error {
	b.mu.Lock()
	conn := b.conn
	b.conn = nil
	b.mu.Unlock()
	if conn == nil {
		return nil
	}
	monitoring.Logf("canbus: closing %s", b.name)
	return conn.Close()
}
