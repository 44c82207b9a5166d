package uskin

import (
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/uskin/canbus"
	"github.com/banshee-data/uskin/internal/timeutil"
)

func TestSlot(t *testing.T) {
	var s slot[int]
	_, ok := s.Take()
	assert.False(t, ok)

	s.Put(1)
	s.Put(2)
	assert.True(t, s.Full())
	v, ok := s.Take()
	assert.True(t, ok)
	assert.Equal(t, 2, v, "a slot holds only the latest value")
	assert.False(t, s.Full())
}

func TestReassembler_FullScan(t *testing.T) {
	g := DefaultGrid
	bus, _ := openBus(t, scan(g, func(i int) Vector { return Vector{X: int32(i), Y: int32(2 * i), Z: int32(3 * i)} })...)
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := NewReassembler(g, bus, timeutil.NewMockClock(stamp))

	var f Frame
	n, err := r.Next(&f)
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), n)
	assert.True(t, f.Complete)
	assert.False(t, r.Pending())
	assert.Equal(t, stamp, f.Timestamp)

	for i, node := range f.Nodes {
		require.True(t, node.Valid, "node %d", i)
		assert.Equal(t, i, node.Index)
		assert.Equal(t, Vector{X: int32(i), Y: int32(2 * i), Z: int32(3 * i)}, node.Vector)
	}
	assert.Equal(t, ReassemblerStats{Cycles: 1, CompleteFrames: 1}, r.Stats())
}

func TestReassembler_OutOfOrderSeedsNextCycle(t *testing.T) {
	g := DefaultGrid
	first := scan(g, constant(Vector{X: 1, Y: 1, Z: 1}))[:10]
	second := scan(g, constant(Vector{X: 2, Y: 2, Z: 2}))
	bus, conn := openBus(t, append(first, second...)...)
	r := NewReassembler(g, bus, nil)

	var f Frame
	n, err := r.Next(&f)
	require.NoError(t, err)
	assert.Equal(t, 10, n)
	assert.Less(t, n, g.NodeCount())
	assert.False(t, f.Complete)
	assert.True(t, r.Pending(), "the frame that broke the order is held")
	_, held := f.Node(0)
	assert.True(t, held)
	assert.Equal(t, len(second)-1, conn.Pending(), "only the violating frame was consumed")

	n, err = r.Next(&f)
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), n)
	assert.True(t, f.Complete)
	assert.False(t, r.Pending())
	first0, ok := f.Node(0)
	require.True(t, ok, "seed becomes the first reading")
	assert.Equal(t, Vector{X: 2, Y: 2, Z: 2}, first0.Vector)

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Cycles)
	assert.Equal(t, uint64(1), stats.ShortFrames)
	assert.Equal(t, uint64(1), stats.CompleteFrames)
}

func TestReassembler_DuplicateEndsCycle(t *testing.T) {
	g := DefaultGrid
	frames := scan(g, constant(Vector{}))
	dup := append([]canbus.Frame{}, frames[:3]...)
	dup = append(dup, frames[2])
	dup = append(dup, frames[3:]...)
	bus, _ := openBus(t, dup...)
	r := NewReassembler(g, bus, nil)

	var f Frame
	n, err := r.Next(&f)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.True(t, r.Pending())

	// The duplicate seeds the next cycle, which then runs to the end.
	n, err = r.Next(&f)
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount()-2, n)
	assert.True(t, f.Complete)
}

func TestReassembler_TransportErrorKeepsPartialFrame(t *testing.T) {
	g := DefaultGrid
	bus, _ := openBus(t, scan(g, constant(Vector{Z: 100}))[:5]...)
	r := NewReassembler(g, bus, nil)

	var f Frame
	n, err := r.Next(&f)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 5, n)
	assert.Equal(t, 5, f.NodeCount)
	assert.False(t, f.Complete)
	assert.False(t, f.Timestamp.IsZero())
	assert.Equal(t, uint64(1), r.Stats().TransportErrors)
}

func TestReassembler_DropsIdentifiersOutsideGrid(t *testing.T) {
	g := DefaultGrid
	frames := scan(g, constant(Vector{X: 7}))
	var stream []canbus.Frame
	for i, f := range frames {
		stream = append(stream, f)
		if i == 4 {
			stream = append(stream,
				canbus.NewFrame(0x1A0, 0, 0, 0, 0, 0, 0, 0, 0),
				canbus.NewFrame(0x107, 0, 0, 0, 0, 0, 0, 0, 0))
		}
	}
	bus, _ := openBus(t, stream...)
	r := NewReassembler(g, bus, nil)

	var f Frame
	n, err := r.Next(&f)
	require.NoError(t, err)
	assert.Equal(t, g.NodeCount(), n, "garbage does not end the cycle")
	assert.True(t, f.Complete)
	assert.Equal(t, uint64(2), r.Stats().Dropped)
}

func TestReassembler_ClearsPreviousFrame(t *testing.T) {
	g := Grid{Rows: 2, Columns: 2, DeviceClass: 1}
	full := scan(g, constant(Vector{Z: 9}))
	bus, _ := openBus(t, append(full, full[0], full[1])...)
	r := NewReassembler(g, bus, nil)

	var f Frame
	_, err := r.Next(&f)
	require.NoError(t, err)
	require.Equal(t, 4, f.NodeCount)

	n, err := r.Next(&f)
	require.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 2, n)
	assert.Len(t, f.Readings(), 2, "slots from the previous scan are cleared")
}
