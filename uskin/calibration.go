package uskin

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// unobserved seeds every calibration row; it is the ceiling of a 16-bit
// channel word, so the first real sample always replaces it.
const unobserved = math.MaxUint16

// CalibrationTable holds the per-node rest baseline: the smallest raw value
// seen on each channel while the sensor was unloaded.
type CalibrationTable struct {
	mins []Vector
}

// NewCalibrationTable allocates n rows set to the unobserved sentinel.
func NewCalibrationTable(n int) *CalibrationTable {
	t := &CalibrationTable{mins: make([]Vector, n)}
	t.Reset()
	return t
}

// Reset returns every row to the sentinel.
func (t *CalibrationTable) Reset() {
	for i := range t.mins {
		t.mins[i] = Vector{X: unobserved, Y: unobserved, Z: unobserved}
	}
}

// Len is the number of rows; it matches the grid's node count.
func (t *CalibrationTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.mins)
}

// Min returns the baseline of node i.
func (t *CalibrationTable) Min(i int) Vector {
	return t.mins[i]
}

// SetMin overwrites the baseline of node i.
func (t *CalibrationTable) SetMin(i int, v Vector) error {
	if i < 0 || i >= len(t.mins) {
		return fmt.Errorf("calibration row %d out of range [0,%d)", i, len(t.mins))
	}
	t.mins[i] = v
	return nil
}

// Observed reports whether node i has taken at least one sample.
func (t *CalibrationTable) Observed(i int) bool {
	m := t.mins[i]
	return m.X != unobserved || m.Y != unobserved || m.Z != unobserved
}

// Observe folds the valid readings of f into the running minima and returns
// how many nodes contributed.
func (t *CalibrationTable) Observe(f *Frame) int {
	n := 0
	for _, r := range f.Nodes {
		if !r.Valid || r.Index < 0 || r.Index >= len(t.mins) {
			continue
		}
		m := &t.mins[r.Index]
		m.X = min(m.X, r.X)
		m.Y = min(m.Y, r.Y)
		m.Z = min(m.Z, r.Z)
		n++
	}
	return n
}

// Rows returns a copy of the baseline, one entry per node index.
func (t *CalibrationTable) Rows() []Vector {
	return append([]Vector(nil), t.mins...)
}

// Clone returns an independent copy of t.
func (t *CalibrationTable) Clone() *CalibrationTable {
	return &CalibrationTable{mins: t.Rows()}
}

// TableFromRows builds a table from a saved baseline.
func TableFromRows(rows []Vector) *CalibrationTable {
	return &CalibrationTable{mins: append([]Vector(nil), rows...)}
}

// ChannelStats summarises one channel's baseline across observed nodes.
type ChannelStats struct {
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// CalibrationReport describes one calibration pass.
type CalibrationReport struct {
	Samples     int `json:"samples"`
	ShortFrames int `json:"short_frames"`
	// Unobserved lists node indices that never reported during the pass.
	Unobserved []int        `json:"unobserved,omitempty"`
	X          ChannelStats `json:"x"`
	Y          ChannelStats `json:"y"`
	Z          ChannelStats `json:"z"`
}

// Report computes baseline statistics over the observed rows. Sample
// counts are left for the caller to fill in.
func (t *CalibrationTable) Report() CalibrationReport {
	var rep CalibrationReport
	xs := make([]float64, 0, len(t.mins))
	ys := make([]float64, 0, len(t.mins))
	zs := make([]float64, 0, len(t.mins))
	for i, m := range t.mins {
		if !t.Observed(i) {
			rep.Unobserved = append(rep.Unobserved, i)
			continue
		}
		xs = append(xs, float64(m.X))
		ys = append(ys, float64(m.Y))
		zs = append(zs, float64(m.Z))
	}
	rep.X = channelStats(xs)
	rep.Y = channelStats(ys)
	rep.Z = channelStats(zs)
	return rep
}

func channelStats(v []float64) ChannelStats {
	if len(v) == 0 {
		return ChannelStats{}
	}
	s := ChannelStats{Min: floats.Min(v), Max: floats.Max(v)}
	if len(v) == 1 {
		s.Mean = v[0]
		return s
	}
	s.Mean, s.StdDev = stat.MeanStdDev(v, nil)
	return s
}
