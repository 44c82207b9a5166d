package canbus

import (
	"bufio"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/uskin/internal/monitoring"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// SerialPortOpener is a function type for opening serial ports.
type SerialPortOpener func(path string, mode *serial.Mode) (SerialPorter, error)

// OpenSerialPort is the opener used by DialSLCAN. Tests replace it.
var OpenSerialPort SerialPortOpener = func(path string, mode *serial.Mode) (SerialPorter, error) {
	return serial.Open(path, mode)
}

// DefaultBitrate is the uSkin bus bitrate.
const DefaultBitrate = 1000000

var slcanBitrates = map[int]byte{
	10000:   '0',
	20000:   '1',
	50000:   '2',
	100000:  '3',
	125000:  '4',
	250000:  '5',
	500000:  '6',
	800000:  '7',
	1000000: '8',
}

const (
	slcanEOL  = '\r'
	slcanBell = '\a'
)

// ErrSLCANSyntax is returned by ParseSLCAN for malformed lines.
var ErrSLCANSyntax = errors.New("slcan: malformed frame")

// DialSLCAN returns a Dialer for a serial-line CAN adapter speaking the
// Lawicel ASCII protocol. bitrate 0 selects DefaultBitrate.
func DialSLCAN(path string, opts PortOptions, bitrate int) Dialer {
	return func() (Conn, error) {
		mode, err := opts.SerialMode()
		if err != nil {
			return nil, err
		}
		port, err := OpenSerialPort(path, mode)
		if err != nil {
			return nil, err
		}
		conn, err := NewSLCANConn(port, bitrate)
		if err != nil {
			port.Close()
			return nil, err
		}
		return conn, nil
	}
}

// SLCANConn is a Conn over a serial-line CAN adapter.
type SLCANConn struct {
	port    SerialPorter
	r       *bufio.Reader
	writeMu sync.Mutex
	closed  bool
}

// NewSLCANConn programs the bitrate and opens the channel on port.
func NewSLCANConn(port SerialPorter, bitrate int) (*SLCANConn, error) {
	if bitrate == 0 {
		bitrate = DefaultBitrate
	}
	code, ok := slcanBitrates[bitrate]
	if !ok {
		return nil, fmt.Errorf("slcan: unsupported bitrate %d", bitrate)
	}
	c := &SLCANConn{port: port, r: bufio.NewReader(port)}
	// close first in case the adapter was left open by a previous session
	for _, cmd := range []string{"C", "S" + string(code), "O"} {
		if err := c.command(cmd); err != nil {
			return nil, fmt.Errorf("slcan init %q: %w", cmd, err)
		}
	}
	return c, nil
}

func (c *SLCANConn) command(cmd string) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err := c.port.Write([]byte(cmd + string(rune(slcanEOL))))
	return err
}

// ReadFrame returns the next data frame, skipping acknowledgements, bell
// error replies and remote frames.
func (c *SLCANConn) ReadFrame(f *Frame) error {
	line := make([]byte, 0, 32)
	for {
		b, err := c.r.ReadByte()
		if err != nil {
			return err
		}
		switch b {
		case slcanBell:
			monitoring.Debugf("slcan: adapter reported error")
			line = line[:0]
			continue
		case slcanEOL, '\n':
			if len(line) == 0 {
				continue
			}
			if line[0] != 't' && line[0] != 'T' {
				line = line[:0]
				continue
			}
			parsed, err := ParseSLCAN(line)
			line = line[:0]
			if err != nil {
				monitoring.Logf("slcan: %v", err)
				continue
			}
			*f = parsed
			return nil
		default:
			line = append(line, b)
		}
	}
}

// WriteFrame transmits f.
func (c *SLCANConn) WriteFrame(f Frame) error {
	line, err := EncodeSLCAN(f)
	if err != nil {
		return err
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_, err = c.port.Write(line)
	return err
}

// Close closes the CAN channel and the serial port.
func (c *SLCANConn) Close() error {
	if c.closed {
		return nil
	}
	c.closed = true
	_ = c.command("C")
	return c.port.Close()
}

// EncodeSLCAN renders f as a transmit command terminated by CR.
func EncodeSLCAN(f Frame) ([]byte, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	var out []byte
	if f.Extended {
		out = fmt.Appendf(out, "T%08X%d", f.ID, f.Len)
	} else {
		out = fmt.Appendf(out, "t%03X%d", f.ID, f.Len)
	}
	data := make([]byte, hex.EncodedLen(int(f.Len)))
	hex.Encode(data, f.Payload())
	for i, b := range data {
		if b >= 'a' && b <= 'f' {
			data[i] = b - 'a' + 'A'
		}
	}
	out = append(out, data...)
	return append(out, slcanEOL), nil
}

// ParseSLCAN decodes one received data frame line without its terminator.
// A trailing 4-digit timestamp, when the adapter appends one, is ignored.
func ParseSLCAN(line []byte) (Frame, error) {
	if len(line) == 0 {
		return Frame{}, ErrSLCANSyntax
	}
	var f Frame
	idLen := 3
	switch line[0] {
	case 't':
	case 'T':
		idLen = 8
		f.Extended = true
	default:
		return Frame{}, fmt.Errorf("%w: unexpected type %q", ErrSLCANSyntax, line[0])
	}
	if len(line) < 1+idLen+1 {
		return Frame{}, fmt.Errorf("%w: %q too short", ErrSLCANSyntax, line)
	}
	id, err := strconv.ParseUint(string(line[1:1+idLen]), 16, 32)
	if err != nil {
		return Frame{}, fmt.Errorf("%w: identifier: %v", ErrSLCANSyntax, err)
	}
	f.ID = uint32(id)
	n := line[1+idLen]
	if n < '0' || n > '8' {
		return Frame{}, fmt.Errorf("%w: length %q", ErrSLCANSyntax, n)
	}
	f.Len = n - '0'
	data := line[2+idLen:]
	want := 2 * int(f.Len)
	if len(data) != want && len(data) != want+4 {
		return Frame{}, fmt.Errorf("%w: %d data digits for length %d", ErrSLCANSyntax, len(data), f.Len)
	}
	if _, err := hex.Decode(f.Data[:f.Len], data[:want]); err != nil {
		return Frame{}, fmt.Errorf("%w: data: %v", ErrSLCANSyntax, err)
	}
	return f, f.Validate()
}
