// Package publish forwards retrieved frames to external systems. Each sink
// implements uskin.FrameSink and is registered on a sensor with
// uskin.WithSink.
package publish
