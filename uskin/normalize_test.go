package uskin

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleNodeFrame(g Grid, v Vector) *Frame {
	f := &Frame{Timestamp: time.Unix(1700000000, 0)}
	f.reset(g.NodeCount())
	f.place(NodeReading{NodeID: g.IndexToIdentifier(0), Index: 0, Vector: v, Valid: true})
	return f
}

func TestNormalize_ReferencePatch(t *testing.T) {
	g := DefaultGrid
	tbl := NewCalibrationTable(g.NodeCount())
	require.NoError(t, tbl.SetMin(0, Vector{X: 1000, Y: 1000, Z: 18300}))

	cases := []struct {
		raw     Vector
		x, y, z float64
	}{
		{Vector{X: 1000, Y: 1000, Z: 18300}, 0, 0, 0},
		{Vector{X: 45000, Y: 1000, Z: 25600}, 100, 0, 100},
		{Vector{X: 23000, Y: 13000, Z: 21950}, 50, 50, 50},
	}
	for _, tc := range cases {
		var out NormalizedFrame
		require.True(t, Normalize(tbl, DefaultMaxima, singleNodeFrame(g, tc.raw), &out))
		n := out.Nodes[0]
		assert.True(t, n.Valid)
		assert.InDelta(t, tc.x, n.X, 1e-9, "x for %+v", tc.raw)
		assert.InDelta(t, tc.y, n.Y, 1e-9, "y for %+v", tc.raw)
		assert.InDelta(t, tc.z, n.Z, 1e-9, "z for %+v", tc.raw)
		assert.False(t, out.Nodes[1].Valid, "unreceived nodes stay invalid")
		assert.Equal(t, 1, out.NodeCount)
	}
}

func TestNormalize_Clamps(t *testing.T) {
	g := DefaultGrid
	tbl := NewCalibrationTable(g.NodeCount())
	require.NoError(t, tbl.SetMin(0, Vector{X: 40000, Y: 20000, Z: 18300}))

	var out NormalizedFrame
	require.True(t, Normalize(tbl, DefaultMaxima, singleNodeFrame(g, Vector{X: 0, Y: 65535, Z: 100}), &out))
	n := out.Nodes[0]
	assert.Equal(t, -100.0, n.X)
	assert.Equal(t, 100.0, n.Y)
	assert.Equal(t, 0.0, n.Z, "z below the baseline floors at zero")

	for _, raw := range []Vector{{}, {X: 65535, Y: 65535, Z: 65535}, {X: 40001, Y: 1, Z: 30000}} {
		require.True(t, Normalize(tbl, DefaultMaxima, singleNodeFrame(g, raw), &out))
		n := out.Nodes[0]
		assert.True(t, n.X >= -100 && n.X <= 100, "x %v", n.X)
		assert.True(t, n.Y >= -100 && n.Y <= 100, "y %v", n.Y)
		assert.True(t, n.Z >= 0 && n.Z <= 100, "z %v", n.Z)
	}
}

func TestNormalize_DegenerateSpan(t *testing.T) {
	assert.Equal(t, 0.0, scale(50000, 50000, 45000, -100, 100))
	assert.Equal(t, 100.0, scale(60000, 50000, 45000, -100, 100))
	assert.Equal(t, -100.0, scale(10, 50000, 45000, -100, 100))
	assert.Equal(t, 0.0, scale(10, 50000, 45000, 0, 100))
}

func TestNormalize_RequiresMatchingTable(t *testing.T) {
	g := DefaultGrid
	f := singleNodeFrame(g, Vector{X: 1, Y: 1, Z: 1})
	out := NormalizedFrame{NodeCount: 7}

	assert.False(t, Normalize(nil, DefaultMaxima, f, &out))
	assert.False(t, Normalize(NewCalibrationTable(g.NodeCount()-1), DefaultMaxima, f, &out))
	assert.False(t, Normalize(NewCalibrationTable(0), DefaultMaxima, f, &out))
	assert.Equal(t, 7, out.NodeCount, "output is untouched on failure")
}
