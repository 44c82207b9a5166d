package canbus

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

type fakePort struct {
	in     *bytes.Buffer
	out    bytes.Buffer
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error)  { return p.in.Read(b) }
func (p *fakePort) Write(b []byte) (int, error) { return p.out.Write(b) }
func (p *fakePort) Close() error                { p.closed = true; return nil }

func TestEncodeSLCAN(t *testing.T) {
	line, err := EncodeSLCAN(StartCommand(0x201))
	require.NoError(t, err)
	assert.Equal(t, "t20120700\r", string(line))

	line, err = EncodeSLCAN(NewFrame(0x18FF00AB, 0xAB, 0xCD))
	require.NoError(t, err)
	assert.Equal(t, "T18FF00AB2ABCD\r", string(line))
}

func TestParseSLCAN(t *testing.T) {
	f, err := ParseSLCAN([]byte("t135700A1B2C3D4E5F6"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0x135), f.ID)
	assert.Equal(t, []byte{0x00, 0xA1, 0xB2, 0xC3, 0xD4, 0xE5, 0xF6}, f.Payload())

	// trailing timestamp
	f, err = ParseSLCAN([]byte("t100101ABCD"))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01}, f.Payload())

	for _, bad := range []string{"", "x123", "t12", "t1009", "t1002AB", "t1001ZZ"} {
		_, err := ParseSLCAN([]byte(bad))
		assert.ErrorIs(t, err, ErrSLCANSyntax, "line %q", bad)
	}
}

func TestSLCANConn(t *testing.T) {
	port := &fakePort{in: bytes.NewBufferString("\r\r\az\rt1002ABCD\rt1350\r")}
	conn, err := NewSLCANConn(port, 0)
	require.NoError(t, err)
	assert.Equal(t, "C\rS8\rO\r", port.out.String())

	var f Frame
	require.NoError(t, conn.ReadFrame(&f))
	assert.Equal(t, NewFrame(0x100, 0xAB, 0xCD), f)
	require.NoError(t, conn.ReadFrame(&f))
	assert.Equal(t, NewFrame(0x135), f)
	assert.ErrorIs(t, conn.ReadFrame(&f), io.EOF)

	port.out.Reset()
	require.NoError(t, conn.WriteFrame(StopCommand(0x201)))
	assert.Equal(t, "t20120701\r", port.out.String())

	require.NoError(t, conn.Close())
	assert.True(t, port.closed)
}

func TestSLCANConn_UnsupportedBitrate(t *testing.T) {
	_, err := NewSLCANConn(&fakePort{in: &bytes.Buffer{}}, 33333)
	assert.Error(t, err)
}

func TestDialSLCAN(t *testing.T) {
	original := OpenSerialPort
	defer func() { OpenSerialPort = original }()

	port := &fakePort{in: &bytes.Buffer{}}
	var gotPath string
	var gotMode *serial.Mode
	OpenSerialPort = func(path string, mode *serial.Mode) (SerialPorter, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	bus := NewBus("slcan", DialSLCAN("/dev/ttyACM0", PortOptions{}, 500000))
	require.NoError(t, bus.Open())
	assert.Equal(t, "/dev/ttyACM0", gotPath)
	assert.Equal(t, 115200, gotMode.BaudRate)
	assert.Equal(t, "C\rS6\rO\r", port.out.String())
}
