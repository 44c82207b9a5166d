package uskin

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/uskin/canbus"
	"github.com/banshee-data/uskin/internal/timeutil"
)

func newTestSensor(t *testing.T, frames []canbus.Frame, opts ...Option) (*Sensor, *canbus.TestableConn) {
	t.Helper()
	conn := canbus.NewTestableConn(frames...)
	s, err := New(DefaultConfig(), canbus.NewTestableBus(conn), opts...)
	require.NoError(t, err)
	return s, conn
}

func TestNew_ValidatesConfig(t *testing.T) {
	bus := canbus.NewTestableBus(canbus.NewTestableConn())

	cfg := DefaultConfig()
	cfg.Grid.Rows = 11
	_, err := New(cfg, bus)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Maxima.Z = 0
	_, err = New(cfg, bus)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.DeviceID = 0x800
	_, err = New(cfg, bus)
	assert.Error(t, err)

	_, err = New(DefaultConfig(), nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.CalibrationSamples = 0
	s, err := New(cfg, bus)
	require.NoError(t, err)
	assert.Equal(t, DefaultCalibrationSamples, s.Config().CalibrationSamples)
	assert.NotEmpty(t, s.ID())
	assert.Equal(t, 24, s.FrameSize())
}

func TestSensor_StartStopSendsControlFrames(t *testing.T) {
	s, conn := newTestSensor(t, nil, WithID("left-hand"))

	require.NoError(t, s.Start())
	require.NoError(t, s.Start(), "second start is a no-op")
	assert.True(t, s.IsStarted())
	require.NoError(t, s.Stop())
	assert.False(t, s.IsStarted())
	require.NoError(t, s.Close())

	want := []canbus.Frame{
		canbus.NewFrame(0x201, 0x07, 0x00),
		canbus.NewFrame(0x201, 0x07, 0x01),
	}
	assert.Equal(t, want, conn.WrittenFrames())
	assert.True(t, conn.Closed)
	assert.Equal(t, "left-hand", s.ID())
}

func TestSensor_StartFailsWhenTransportUnavailable(t *testing.T) {
	bus := canbus.NewBus("missing", func() (canbus.Conn, error) { return nil, errors.New("no such device") })
	s, err := New(DefaultConfig(), bus)
	require.NoError(t, err)

	assert.Error(t, s.Start())
	assert.False(t, s.IsStarted())
	_, err = s.RetrieveFrame()
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSensor_RetrieveFrameHandsOffToSinks(t *testing.T) {
	g := DefaultGrid
	frames := scan(g, constant(Vector{X: 23000, Y: 13000, Z: 21950}))
	frames = append(frames, frames...)

	type delivery struct {
		id         string
		nodes      int
		normalized bool
	}
	var got []delivery
	record := FrameSinkFunc(func(id string, f *Frame, n *NormalizedFrame) error {
		got = append(got, delivery{id: id, nodes: f.NodeCount, normalized: n != nil})
		return nil
	})
	failing := FrameSinkFunc(func(string, *Frame, *NormalizedFrame) error {
		return errors.New("disk full")
	})
	stamp := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	s, _ := newTestSensor(t, frames, WithID("s1"), WithSink(failing), WithSink(record),
		WithClock(timeutil.NewMockClock(stamp)))
	require.NoError(t, s.Start())

	n, err := s.RetrieveFrame()
	require.NoError(t, err, "sink failures are not returned")
	assert.Equal(t, 24, n)
	assert.Equal(t, stamp, s.Frame().Timestamp)
	assert.False(t, s.Normalize())

	tbl := NewCalibrationTable(g.NodeCount())
	for i := 0; i < g.NodeCount(); i++ {
		require.NoError(t, tbl.SetMin(i, Vector{X: 1000, Y: 1000, Z: 18300}))
	}
	require.NoError(t, s.RestoreCalibration(tbl))

	_, err = s.RetrieveFrame()
	require.NoError(t, err)
	assert.InDelta(t, 50, s.NormalizedFrame().Nodes[5].Z, 1e-9)

	assert.Equal(t, []delivery{
		{id: "s1", nodes: 24, normalized: false},
		{id: "s1", nodes: 24, normalized: true},
	}, got)
}

func TestSensor_NodeAndMatrix(t *testing.T) {
	g := DefaultGrid
	s, _ := newTestSensor(t, scan(g, func(i int) Vector { return Vector{Z: int32(i)} }))
	require.NoError(t, s.Start())
	_, err := s.RetrieveFrame()
	require.NoError(t, err)

	r, err := s.Node(23)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x135), r.NodeID)
	assert.Equal(t, int32(23), r.Z)

	_, err = s.Node(24)
	assert.Error(t, err)
	_, err = s.Node(-1)
	assert.Error(t, err)

	m := s.Matrix(ChannelZ)
	require.Len(t, m, g.Rows)
	require.Len(t, m[0], g.Columns)
	assert.Equal(t, []int32{3, 7, 11, 15, 19, 23}, m[3])
	assert.Equal(t, uint64(1), s.Stats().CompleteFrames)
}

func TestSensor_RestoreCalibrationRejectsMismatch(t *testing.T) {
	s, _ := newTestSensor(t, nil)
	assert.Error(t, s.RestoreCalibration(NewCalibrationTable(10)))
	assert.Error(t, s.RestoreCalibration(nil))
	assert.False(t, s.IsCalibrated())

	tbl := NewCalibrationTable(24)
	require.NoError(t, s.RestoreCalibration(tbl))
	require.NoError(t, tbl.SetMin(0, Vector{X: 1}))
	assert.NotEqual(t, Vector{X: 1}, s.Calibration().Min(0), "sensor keeps its own copy")
}

func TestSensor_Stream(t *testing.T) {
	g := DefaultGrid
	full := scan(g, constant(Vector{Z: 1}))
	var frames []canbus.Frame
	for i := 0; i < 3; i++ {
		frames = append(frames, full...)
	}

	t.Run("transport error ends stream", func(t *testing.T) {
		s, _ := newTestSensor(t, frames)
		require.NoError(t, s.Start())
		var count int
		err := s.Stream(context.Background(), func(f *Frame, n *NormalizedFrame) error {
			count++
			assert.Nil(t, n)
			return nil
		})
		assert.ErrorIs(t, err, io.EOF)
		assert.Equal(t, 3, count)
	})

	t.Run("callback error ends stream", func(t *testing.T) {
		s, _ := newTestSensor(t, frames)
		require.NoError(t, s.Start())
		stop := errors.New("enough")
		var count int
		err := s.Stream(context.Background(), func(*Frame, *NormalizedFrame) error {
			count++
			return stop
		})
		assert.ErrorIs(t, err, stop)
		assert.Equal(t, 1, count)
	})

	t.Run("cancellation observed between cycles", func(t *testing.T) {
		s, _ := newTestSensor(t, frames)
		require.NoError(t, s.Start())
		ctx, cancel := context.WithCancel(context.Background())
		var count int
		err := s.Stream(ctx, func(*Frame, *NormalizedFrame) error {
			count++
			if count == 2 {
				cancel()
			}
			return nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 2, count)
	})
}
