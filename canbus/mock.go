package canbus

import (
	"io"
	"sync"
)

// TestableConn implements Conn with configurable behaviour for testing.
// Frames queued with AddFrames are returned in order; once the queue is
// empty reads return io.EOF unless BlockReads is set.
type TestableConn struct {
	mu sync.Mutex

	queue []Frame

	// Written captures frames passed to WriteFrame.
	Written []Frame

	// ReadError is returned by the next ReadFrame call if set.
	ReadError error

	// WriteError is returned by the next WriteFrame call if set.
	WriteError error

	// CloseError is returned by Close if set.
	CloseError error

	// Closed indicates whether Close was called.
	Closed bool

	// ReadCalls records the number of ReadFrame calls.
	ReadCalls int

	// BlockReads causes ReadFrame to block until frames are added or Close
	// is called.
	BlockReads bool

	readCond *sync.Cond
}

// NewTestableConn creates a TestableConn preloaded with frames.
func NewTestableConn(frames ...Frame) *TestableConn {
	c := &TestableConn{queue: append([]Frame(nil), frames...)}
	c.readCond = sync.NewCond(&c.mu)
	return c
}

// ReadFrame pops the next queued frame.
func (c *TestableConn) ReadFrame(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ReadCalls++

	if c.Closed {
		return ErrClosed
	}

	if c.ReadError != nil {
		err := c.ReadError
		c.ReadError = nil
		return err
	}

	if c.BlockReads {
		for !c.Closed && len(c.queue) == 0 {
			c.readCond.Wait()
		}
		if c.Closed {
			return ErrClosed
		}
	}

	if len(c.queue) == 0 {
		return io.EOF
	}
	*f = c.queue[0]
	c.queue = c.queue[1:]
	return nil
}

// WriteFrame records f.
func (c *TestableConn) WriteFrame(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Closed {
		return ErrClosed
	}
	if c.WriteError != nil {
		err := c.WriteError
		c.WriteError = nil
		return err
	}
	c.Written = append(c.Written, f)
	return nil
}

// Close marks the connection as closed and wakes blocked readers.
func (c *TestableConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Closed = true
	c.readCond.Broadcast()
	return c.CloseError
}

// AddFrames queues frames for subsequent reads.
func (c *TestableConn) AddFrames(frames ...Frame) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.queue = append(c.queue, frames...)
	c.readCond.Broadcast()
}

// Pending returns the number of queued, unread frames.
func (c *TestableConn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// WrittenFrames returns a copy of the frames written so far.
func (c *TestableConn) WrittenFrames() []Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Frame(nil), c.Written...)
}

// NewTestableBus returns a Bus whose Dialer always yields conn.
func NewTestableBus(conn *TestableConn) *Bus {
	return NewBus("testable", func() (Conn, error) { return conn, nil })
}
