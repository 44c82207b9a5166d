package uskin

// FrameSink receives every frame a Sensor retrieves. n is nil while the
// sensor is uncalibrated. Both frames are reused on the next retrieval, so
// sinks that keep data must copy it before returning.
type FrameSink interface {
	FrameReady(sensorID string, f *Frame, n *NormalizedFrame) error
}

// FrameSinkFunc adapts a function to FrameSink.
type FrameSinkFunc func(sensorID string, f *Frame, n *NormalizedFrame) error

// FrameReady calls fn.
func (fn FrameSinkFunc) FrameReady(sensorID string, f *Frame, n *NormalizedFrame) error {
	return fn(sensorID, f, n)
}
