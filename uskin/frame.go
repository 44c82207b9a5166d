package uskin

import (
	"encoding/binary"
	"time"

	"github.com/banshee-data/uskin/canbus"
)

// Channel selects one axis of a node reading.
type Channel int

const (
	ChannelX Channel = iota
	ChannelY
	ChannelZ
)

func (c Channel) String() string {
	switch c {
	case ChannelX:
		return "x"
	case ChannelY:
		return "y"
	case ChannelZ:
		return "z"
	}
	return "unknown"
}

// Vector holds one value per channel in raw sensor units.
type Vector struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// Get returns the value of channel c.
func (v Vector) Get(c Channel) int32 {
	switch c {
	case ChannelX:
		return v.X
	case ChannelY:
		return v.Y
	default:
		return v.Z
	}
}

// Payload offsets of the three big-endian channel words.
const (
	xOffset = 1
	yOffset = 3
	zOffset = 5
)

// NodeReading is one node's raw magnetic displacement.
type NodeReading struct {
	NodeID uint32
	Index  int
	Vector
	// Valid is false for slots not filled in the current scan.
	Valid bool
}

// DecodeFrame extracts the identifier and the three channel words from a
// raw bus frame. Index is resolved against g and is InvalidIndex for
// identifiers outside the grid. The payload is assumed to carry at least
// seven bytes; shorter frames decode whatever the zeroed tail holds.
func DecodeFrame(raw canbus.Frame, g Grid) NodeReading {
	return NodeReading{
		NodeID: raw.ID,
		Index:  g.IdentifierToIndex(raw.ID),
		Vector: Vector{
			X: int32(binary.BigEndian.Uint16(raw.Data[xOffset:])),
			Y: int32(binary.BigEndian.Uint16(raw.Data[yOffset:])),
			Z: int32(binary.BigEndian.Uint16(raw.Data[zOffset:])),
		},
		Valid: true,
	}
}

// Frame is one scan of the grid. Nodes is indexed by matrix position and
// always has one slot per node; only slots with Valid set were received.
// A short scan has NodeCount below the grid size.
type Frame struct {
	Timestamp time.Time
	NodeCount int
	// Complete reports that the scan reached the grid's last node.
	Complete bool
	Nodes    []NodeReading
}

// reset clears every slot, reusing the backing array when the size matches.
func (f *Frame) reset(nodes int) {
	if len(f.Nodes) != nodes {
		f.Nodes = make([]NodeReading, nodes)
	} else {
		clear(f.Nodes)
	}
	f.NodeCount = 0
	f.Complete = false
	f.Timestamp = time.Time{}
}

func (f *Frame) place(r NodeReading) {
	f.Nodes[r.Index] = r
	f.NodeCount++
}

// Node returns the reading at index if it was received this scan.
func (f *Frame) Node(index int) (NodeReading, bool) {
	if index < 0 || index >= len(f.Nodes) {
		return NodeReading{}, false
	}
	n := f.Nodes[index]
	return n, n.Valid
}

// Readings returns the received readings in index order.
func (f *Frame) Readings() []NodeReading {
	out := make([]NodeReading, 0, f.NodeCount)
	for _, n := range f.Nodes {
		if n.Valid {
			out = append(out, n)
		}
	}
	return out
}

// Matrix lays channel c out as Rows x Columns. Missing nodes read as zero.
func (f *Frame) Matrix(g Grid, c Channel) [][]int32 {
	m := make([][]int32, g.Rows)
	for row := range m {
		m[row] = make([]int32, g.Columns)
		for col := range m[row] {
			idx := col*g.Rows + row
			if idx < len(f.Nodes) && f.Nodes[idx].Valid {
				m[row][col] = f.Nodes[idx].Get(c)
			}
		}
	}
	return m
}

// NormalizedReading is a node reading rescaled to percent of the
// calibrated range: X and Y in [-100,100], Z in [0,100].
type NormalizedReading struct {
	NodeID  uint32
	Index   int
	X, Y, Z float64
	Valid   bool
}

// NormalizedFrame mirrors Frame with normalized channels.
type NormalizedFrame struct {
	Timestamp time.Time
	NodeCount int
	Complete  bool
	Nodes     []NormalizedReading
}

func (n *NormalizedFrame) reset(nodes int) {
	if len(n.Nodes) != nodes {
		n.Nodes = make([]NormalizedReading, nodes)
	} else {
		clear(n.Nodes)
	}
	n.NodeCount = 0
	n.Complete = false
	n.Timestamp = time.Time{}
}
