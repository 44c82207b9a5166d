package uskin

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/banshee-data/uskin/canbus"
	"github.com/banshee-data/uskin/internal/monitoring"
	"github.com/banshee-data/uskin/internal/timeutil"
)

var (
	// ErrNotStarted is returned when acquisition is requested before Start.
	ErrNotStarted = errors.New("uskin: sensor not started")
	// ErrNotCalibrated is returned where normalized data is required but no
	// baseline has been taken.
	ErrNotCalibrated = errors.New("uskin: sensor not calibrated")
)

// DefaultCalibrationSamples is the number of frames averaged into a
// baseline when Config.CalibrationSamples is zero.
const DefaultCalibrationSamples = 10

// Config is fixed at construction.
type Config struct {
	Grid Grid
	// DeviceID is the bus address start and stop commands are sent to.
	DeviceID           uint32
	Maxima             Vector
	CalibrationSamples int
}

// DefaultConfig returns the settings of the standard 4 x 6 patch.
func DefaultConfig() Config {
	return Config{
		Grid:               DefaultGrid,
		DeviceID:           canbus.DefaultDeviceID,
		Maxima:             DefaultMaxima,
		CalibrationSamples: DefaultCalibrationSamples,
	}
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if err := c.Grid.Validate(); err != nil {
		return fmt.Errorf("grid: %w", err)
	}
	if c.DeviceID > canbus.StandardIDMask {
		return fmt.Errorf("device id 0x%X exceeds 11 bits", c.DeviceID)
	}
	if c.Maxima.X <= 0 || c.Maxima.Y <= 0 || c.Maxima.Z <= 0 {
		return fmt.Errorf("channel maxima must be positive, got %+v", c.Maxima)
	}
	if c.CalibrationSamples < 1 {
		return fmt.Errorf("calibration samples %d must be at least 1", c.CalibrationSamples)
	}
	return nil
}

// Option customises a Sensor.
type Option func(*Sensor)

// WithClock stamps frames from c instead of the wall clock.
func WithClock(c timeutil.Clock) Option {
	return func(s *Sensor) { s.clock = c }
}

// WithSink registers a sink that receives every retrieved frame.
func WithSink(sink FrameSink) Option {
	return func(s *Sensor) { s.sinks = append(s.sinks, sink) }
}

// WithID overrides the generated session identifier passed to sinks.
func WithID(id string) Option {
	return func(s *Sensor) { s.id = id }
}

// Sensor drives one uSkin patch over a Transport. It owns the live frame
// and the calibration table; methods must not be called concurrently.
type Sensor struct {
	cfg       Config
	id        string
	transport canbus.Transport
	clock     timeutil.Clock
	sinks     []FrameSink

	reassembler *Reassembler
	frame       Frame
	normalized  NormalizedFrame

	table      *CalibrationTable
	calibrated atomic.Bool
	started    bool
}

// New validates cfg and returns a stopped sensor.
func New(cfg Config, transport canbus.Transport, opts ...Option) (*Sensor, error) {
	if cfg.CalibrationSamples == 0 {
		cfg.CalibrationSamples = DefaultCalibrationSamples
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, errors.New("uskin: nil transport")
	}
	s := &Sensor{
		cfg:       cfg,
		transport: transport,
		clock:     timeutil.RealClock{},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.id == "" {
		s.id = uuid.NewString()
	}
	s.reassembler = NewReassembler(cfg.Grid, transport, s.clock)
	s.frame.reset(cfg.Grid.NodeCount())
	return s, nil
}

// ID identifies this sensor session to sinks.
func (s *Sensor) ID() string { return s.id }

// Config returns the construction settings.
func (s *Sensor) Config() Config { return s.cfg }

// FrameSize is the number of nodes in a full frame.
func (s *Sensor) FrameSize() int { return s.cfg.Grid.NodeCount() }

// IsStarted reports whether the device is streaming.
func (s *Sensor) IsStarted() bool { return s.started }

// IsCalibrated reports whether a baseline is available for normalization.
func (s *Sensor) IsCalibrated() bool { return s.calibrated.Load() }

// Start opens the transport and commands the device to stream.
func (s *Sensor) Start() error {
	if s.started {
		return nil
	}
	if err := s.transport.Open(); err != nil {
		return fmt.Errorf("start sensor %s: %w", s.id, err)
	}
	if err := s.transport.SendStart(s.cfg.DeviceID); err != nil {
		return fmt.Errorf("start sensor %s: %w", s.id, err)
	}
	s.started = true
	monitoring.Logf("uskin: sensor %s streaming from device 0x%03X (%dx%d)",
		s.id, s.cfg.DeviceID, s.cfg.Grid.Rows, s.cfg.Grid.Columns)
	return nil
}

// Stop commands the device to stop streaming. The transport stays open.
func (s *Sensor) Stop() error {
	if !s.started {
		return nil
	}
	s.started = false
	if err := s.transport.SendStop(s.cfg.DeviceID); err != nil {
		return fmt.Errorf("stop sensor %s: %w", s.id, err)
	}
	monitoring.Logf("uskin: sensor %s stopped", s.id)
	return nil
}

// Close stops streaming and closes the transport.
func (s *Sensor) Close() error {
	stopErr := s.Stop()
	return errors.Join(stopErr, s.transport.Close())
}

// RetrieveFrame runs one acquisition cycle and returns the number of nodes
// collected, which is below FrameSize for a short scan. When the sensor is
// calibrated the frame is normalized as well. Registered sinks receive the
// frame; their failures are logged and not returned.
func (s *Sensor) RetrieveFrame() (int, error) {
	n, err := s.acquire()
	if err != nil {
		return n, err
	}
	var norm *NormalizedFrame
	if s.Normalize() {
		norm = &s.normalized
	}
	s.handoff(norm)
	return n, nil
}

func (s *Sensor) acquire() (int, error) {
	if !s.started {
		return 0, ErrNotStarted
	}
	n, err := s.reassembler.Next(&s.frame)
	if err != nil {
		monitoring.Logf("uskin: sensor %s: %v", s.id, err)
		return n, err
	}
	return n, nil
}

func (s *Sensor) handoff(norm *NormalizedFrame) {
	for _, sink := range s.sinks {
		if err := sink.FrameReady(s.id, &s.frame, norm); err != nil {
			monitoring.Logf("uskin: sensor %s: frame sink: %v", s.id, err)
		}
	}
}

// Stats returns the reassembler's cycle counters.
func (s *Sensor) Stats() ReassemblerStats { return s.reassembler.Stats() }

// Frame returns the live frame. It is overwritten by the next retrieval.
func (s *Sensor) Frame() *Frame { return &s.frame }

// Node returns the reading at index from the last retrieved frame.
func (s *Sensor) Node(index int) (NodeReading, error) {
	if !s.cfg.Grid.Contains(index) {
		return NodeReading{}, fmt.Errorf("node index %d out of range [0,%d)", index, s.FrameSize())
	}
	r, _ := s.frame.Node(index)
	return r, nil
}

// Matrix returns channel c of the last retrieved frame as Rows x Columns.
func (s *Sensor) Matrix(c Channel) [][]int32 {
	return s.frame.Matrix(s.cfg.Grid, c)
}

// Calibrate samples frames with the sensor at rest and folds them into the
// baseline. samples <= 0 uses Config.CalibrationSamples. A repeat
// calibration refines the existing table; normalization is disabled until
// it finishes and stays disabled if it fails.
func (s *Sensor) Calibrate(samples int) (CalibrationReport, error) {
	if !s.started {
		monitoring.Logf("uskin: sensor %s: calibration requested before start", s.id)
		return CalibrationReport{}, ErrNotStarted
	}
	if samples <= 0 {
		samples = s.cfg.CalibrationSamples
	}
	if s.table == nil || s.table.Len() != s.FrameSize() {
		s.table = NewCalibrationTable(s.FrameSize())
	}
	s.calibrated.Store(false)
	monitoring.Logf("uskin: sensor %s calibrating over %d frames", s.id, samples)

	var short int
	for i := 0; i < samples; i++ {
		n, err := s.acquire()
		if err != nil {
			return CalibrationReport{}, fmt.Errorf("calibration sample %d of %d: %w", i+1, samples, err)
		}
		if n < s.FrameSize() {
			short++
		}
		s.table.Observe(&s.frame)
	}

	rep := s.table.Report()
	rep.Samples = samples
	rep.ShortFrames = short
	s.calibrated.Store(true)
	monitoring.Logf("uskin: sensor %s calibrated: z baseline mean %.0f sd %.1f, %d short frames, %d nodes unobserved",
		s.id, rep.Z.Mean, rep.Z.StdDev, short, len(rep.Unobserved))
	return rep, nil
}

// Calibration returns a copy of the baseline, or nil before calibration.
func (s *Sensor) Calibration() *CalibrationTable {
	if !s.IsCalibrated() {
		return nil
	}
	return s.table.Clone()
}

// RestoreCalibration installs a previously saved baseline.
func (s *Sensor) RestoreCalibration(t *CalibrationTable) error {
	if t.Len() != s.FrameSize() {
		return fmt.Errorf("calibration has %d rows, sensor has %d nodes", t.Len(), s.FrameSize())
	}
	s.table = t.Clone()
	s.calibrated.Store(true)
	return nil
}

// Normalize rescales the live frame using the baseline. It returns false
// when the sensor is uncalibrated.
func (s *Sensor) Normalize() bool {
	if !s.IsCalibrated() {
		return false
	}
	return Normalize(s.table, s.cfg.Maxima, &s.frame, &s.normalized)
}

// NormalizedFrame returns the output of the last successful Normalize.
func (s *Sensor) NormalizedFrame() *NormalizedFrame { return &s.normalized }

// Stream retrieves frames and calls fn with each until ctx is done, fn
// returns an error or the transport fails. Cancellation is observed between
// cycles; close the transport to interrupt a blocked receive.
func (s *Sensor) Stream(ctx context.Context, fn func(*Frame, *NormalizedFrame) error) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := s.RetrieveFrame(); err != nil {
			return err
		}
		var norm *NormalizedFrame
		if s.IsCalibrated() {
			norm = &s.normalized
		}
		if err := fn(&s.frame, norm); err != nil {
			return err
		}
	}
}
