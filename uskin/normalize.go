package uskin

// DefaultMaxima are the empirical per-channel ceilings of the standard
// uSkin patch in raw units.
var DefaultMaxima = Vector{X: 45000, Y: 25000, Z: 25600}

// Percentage bounds of normalized channels. Z measures compression only,
// so a reading below the baseline floors at zero.
const (
	shearFloor  = -100.0
	shearCeil   = 100.0
	normalFloor = 0.0
	normalCeil  = 100.0
)

// Normalize rescales the valid readings of f into dst as percent of the
// range between each node's baseline and the channel maxima. It returns
// false and leaves dst untouched when t is nil or does not have one row
// per node of f.
func Normalize(t *CalibrationTable, maxima Vector, f *Frame, dst *NormalizedFrame) bool {
	if t == nil || t.Len() == 0 || t.Len() != len(f.Nodes) {
		return false
	}
	dst.reset(len(f.Nodes))
	dst.Timestamp = f.Timestamp
	dst.NodeCount = f.NodeCount
	dst.Complete = f.Complete
	for i, r := range f.Nodes {
		if !r.Valid {
			continue
		}
		base := t.Min(i)
		dst.Nodes[i] = NormalizedReading{
			NodeID: r.NodeID,
			Index:  r.Index,
			X:      scale(r.X, base.X, maxima.X, shearFloor, shearCeil),
			Y:      scale(r.Y, base.Y, maxima.Y, shearFloor, shearCeil),
			Z:      scale(r.Z, base.Z, maxima.Z, normalFloor, normalCeil),
			Valid:  true,
		}
	}
	return true
}

// scale maps v onto (v-lo)/(hi-lo)*100 clamped to [floor, ceil]. A
// baseline at or above the ceiling leaves no span to divide by, so the
// sign of v-lo alone decides the result.
func scale(v, lo, hi int32, floor, ceil float64) float64 {
	span := hi - lo
	if span <= 0 {
		switch {
		case v < lo:
			return floor
		case v > lo:
			return ceil
		default:
			return clamp(0, floor, ceil)
		}
	}
	return clamp(float64(v-lo)/float64(span)*100, floor, ceil)
}

func clamp(v, floor, ceil float64) float64 {
	return max(floor, min(v, ceil))
}
