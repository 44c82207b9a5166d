package publish

import (
	"time"

	"github.com/banshee-data/uskin/uskin"
)

// FramePayload is the JSON document published for one frame.
type FramePayload struct {
	SensorID  string        `json:"sensor_id"`
	Timestamp time.Time     `json:"timestamp"`
	NodeCount int           `json:"node_count"`
	Complete  bool          `json:"complete"`
	Nodes     []NodePayload `json:"nodes"`
}

// NodePayload is one received node. Normalized channels are omitted while
// the sensor is uncalibrated.
type NodePayload struct {
	NodeID uint32   `json:"node_id"`
	Index  int      `json:"index"`
	X      int32    `json:"x"`
	Y      int32    `json:"y"`
	Z      int32    `json:"z"`
	XN     *float64 `json:"xn,omitempty"`
	YN     *float64 `json:"yn,omitempty"`
	ZN     *float64 `json:"zn,omitempty"`
}

// NewFramePayload copies the received nodes of f, and their normalized
// values when n is not nil.
func NewFramePayload(sensorID string, f *uskin.Frame, n *uskin.NormalizedFrame) FramePayload {
	p := FramePayload{
		SensorID:  sensorID,
		Timestamp: f.Timestamp,
		NodeCount: f.NodeCount,
		Complete:  f.Complete,
		Nodes:     make([]NodePayload, 0, f.NodeCount),
	}
	for i, r := range f.Nodes {
		if !r.Valid {
			continue
		}
		np := NodePayload{NodeID: r.NodeID, Index: r.Index, X: r.X, Y: r.Y, Z: r.Z}
		if n != nil && i < len(n.Nodes) && n.Nodes[i].Valid {
			xn, yn, zn := n.Nodes[i].X, n.Nodes[i].Y, n.Nodes[i].Z
			np.XN, np.YN, np.ZN = &xn, &yn, &zn
		}
		p.Nodes = append(p.Nodes, np)
	}
	return p
}
