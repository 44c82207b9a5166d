package canbus

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/uskin/internal/monitoring"
)

// LinkTypeSocketCAN is LINKTYPE_CAN_SOCKETCAN: each record is a can_frame
// with the identifier word in network byte order.
const LinkTypeSocketCAN layers.LinkType = 227

const pcapRecordLen = 8 + MaxDataLength

// Flag bits carried in the identifier word of a kernel can_frame.
const (
	socketEFFFlag uint32 = 0x80000000
	socketRTRFlag uint32 = 0x40000000
	socketERRFlag uint32 = 0x20000000
)

// MarshalPcapRecord encodes f as a LINKTYPE_CAN_SOCKETCAN record.
func MarshalPcapRecord(f Frame) []byte {
	b := make([]byte, pcapRecordLen)
	id := f.ID
	if f.Extended {
		id |= socketEFFFlag
	}
	binary.BigEndian.PutUint32(b[0:4], id)
	b[4] = f.Len
	copy(b[8:], f.Data[:])
	return b
}

// UnmarshalPcapRecord decodes a LINKTYPE_CAN_SOCKETCAN record. ok is false
// for truncated records and for error or remote frames.
func UnmarshalPcapRecord(b []byte) (f Frame, ok bool) {
	if len(b) < 8 {
		return Frame{}, false
	}
	word := binary.BigEndian.Uint32(b[0:4])
	if word&(socketERRFlag|socketRTRFlag) != 0 {
		return Frame{}, false
	}
	f.Extended = word&socketEFFFlag != 0
	f.ID = word & ExtendedIDMask
	if !f.Extended {
		f.ID &= StandardIDMask
	}
	f.Len = b[4]
	if f.Len > MaxDataLength {
		return Frame{}, false
	}
	copy(f.Data[:], b[8:])
	return f, true
}

// pcapConn replays frames from a capture file. Writes are discarded.
type pcapConn struct {
	file   io.Closer
	reader *pcapgo.Reader
}

// OpenPcap returns a Dialer that replays the capture at path. The stream
// ends with io.EOF.
func OpenPcap(path string) Dialer {
	return func() (Conn, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		conn, err := NewPcapConn(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return conn, nil
	}
}

// NewPcapConn replays frames from an open capture stream.
func NewPcapConn(r io.ReadCloser) (Conn, error) {
	reader, err := pcapgo.NewReader(r)
	if err != nil {
		return nil, err
	}
	if lt := reader.LinkType(); lt != LinkTypeSocketCAN {
		return nil, fmt.Errorf("unsupported link type %d, want %d", lt, LinkTypeSocketCAN)
	}
	return &pcapConn{file: r, reader: reader}, nil
}

func (c *pcapConn) ReadFrame(f *Frame) error {
	for {
		data, _, err := c.reader.ReadPacketData()
		if err != nil {
			return err
		}
		if parsed, ok := UnmarshalPcapRecord(data); ok {
			*f = parsed
			return nil
		}
	}
}

func (c *pcapConn) WriteFrame(f Frame) error {
	monitoring.Debugf("pcap replay: discarding %s", f)
	return nil
}

func (c *pcapConn) Close() error {
	return c.file.Close()
}

// RecordingConn tees every frame read from the wrapped Conn into a pcap
// capture so a session can be replayed later with OpenPcap.
type RecordingConn struct {
	Conn
	mu     sync.Mutex
	out    io.WriteCloser
	writer *pcapgo.Writer
	now    func() time.Time
}

// NewRecordingConn writes the capture header to out and wraps inner.
func NewRecordingConn(inner Conn, out io.WriteCloser) (*RecordingConn, error) {
	w := pcapgo.NewWriter(out)
	if err := w.WriteFileHeader(65535, LinkTypeSocketCAN); err != nil {
		return nil, err
	}
	return &RecordingConn{Conn: inner, out: out, writer: w, now: time.Now}, nil
}

// RecordTo wraps dial so the connection it returns is recorded to path.
func RecordTo(path string, dial Dialer) Dialer {
	return func() (Conn, error) {
		inner, err := dial()
		if err != nil {
			return nil, err
		}
		out, err := os.Create(path)
		if err != nil {
			inner.Close()
			return nil, err
		}
		rec, err := NewRecordingConn(inner, out)
		if err != nil {
			out.Close()
			inner.Close()
			return nil, err
		}
		monitoring.Logf("canbus: recording received frames to %s", path)
		return rec, nil
	}
}

func (c *RecordingConn) ReadFrame(f *Frame) error {
	if err := c.Conn.ReadFrame(f); err != nil {
		return err
	}
	record := MarshalPcapRecord(*f)
	ci := gopacket.CaptureInfo{
		Timestamp:     c.now(),
		CaptureLength: len(record),
		Length:        len(record),
	}
	c.mu.Lock()
	err := c.writer.WritePacket(ci, record)
	c.mu.Unlock()
	if err != nil {
		monitoring.Logf("canbus: capture write failed: %v", err)
	}
	return nil
}

// Close closes the wrapped connection and the capture file.
func (c *RecordingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.Conn.Close(), c.out.Close())
}
