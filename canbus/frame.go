// Package canbus carries raw classical CAN frames between a uSkin sensor
// and the host. It defines the Transport contract the sensor drives, the
// start/stop control frames, and several link back-ends behind a common
// frame connection interface.
package canbus

import (
	"errors"
	"fmt"
	"strings"
)

// MaxDataLength is the payload capacity of a classical CAN frame.
const MaxDataLength = 8

// Identifier masks.
const (
	StandardIDMask uint32 = 0x7FF
	ExtendedIDMask uint32 = 0x1FFFFFFF
)

// DefaultDeviceID is the bus address uSkin controllers listen on for
// streaming commands.
const DefaultDeviceID uint32 = 0x201

// Streaming control payload: a command byte followed by an argument.
const (
	cmdStreamControl byte = 0x07
	argStreamStart   byte = 0x00
	argStreamStop    byte = 0x01
)

var (
	// ErrNotOpen is returned when a frame is sent or received before Open.
	ErrNotOpen = errors.New("canbus: transport not open")
	// ErrClosed is returned by connections that have been closed.
	ErrClosed = errors.New("canbus: connection closed")
	// ErrInvalidLength is returned for frames declaring more than 8 data bytes.
	ErrInvalidLength = errors.New("canbus: invalid data length")
)

// Frame is one raw bus message: an identifier and up to eight data bytes.
type Frame struct {
	ID       uint32
	Extended bool
	Len      uint8
	Data     [MaxDataLength]byte
}

// NewFrame builds a standard frame carrying data. It panics if data is
// longer than MaxDataLength.
func NewFrame(id uint32, data ...byte) Frame {
	if len(data) > MaxDataLength {
		panic(ErrInvalidLength)
	}
	f := Frame{ID: id, Len: uint8(len(data))}
	if id > StandardIDMask {
		f.Extended = true
	}
	copy(f.Data[:], data)
	return f
}

// Payload returns the valid portion of the data field.
func (f Frame) Payload() []byte {
	n := int(f.Len)
	if n > MaxDataLength {
		n = MaxDataLength
	}
	return f.Data[:n]
}

// Validate reports whether the identifier and length are representable.
func (f Frame) Validate() error {
	if f.Len > MaxDataLength {
		return ErrInvalidLength
	}
	limit := StandardIDMask
	if f.Extended {
		limit = ExtendedIDMask
	}
	if f.ID > limit {
		return fmt.Errorf("canbus: identifier 0x%X exceeds 0x%X", f.ID, limit)
	}
	return nil
}

func (f Frame) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%03X [%d]", f.ID, f.Len)
	for _, v := range f.Payload() {
		fmt.Fprintf(&b, " %02X", v)
	}
	return b.String()
}

// StartCommand returns the control frame that makes device stream readings.
func StartCommand(device uint32) Frame {
	return NewFrame(device, cmdStreamControl, argStreamStart)
}

// StopCommand returns the control frame that halts streaming on device.
func StopCommand(device uint32) Frame {
	return NewFrame(device, cmdStreamControl, argStreamStop)
}
