package uskin

import (
	"fmt"

	"github.com/banshee-data/uskin/canbus"
	"github.com/banshee-data/uskin/internal/monitoring"
	"github.com/banshee-data/uskin/internal/timeutil"
)

// Receiver yields raw frames one at a time, blocking until one arrives.
type Receiver interface {
	Receive() (canbus.Frame, error)
}

// slot is a single-value retry buffer: it is either empty or holds exactly
// one value, and Take empties it.
type slot[T any] struct {
	value T
	full  bool
}

func (s *slot[T]) Put(v T) {
	s.value = v
	s.full = true
}

func (s *slot[T]) Take() (T, bool) {
	var zero T
	if !s.full {
		return zero, false
	}
	v := s.value
	s.value, s.full = zero, false
	return v, true
}

func (s *slot[T]) Full() bool { return s.full }

// ReassemblerStats counts cycle outcomes since the Reassembler was created.
type ReassemblerStats struct {
	Cycles          uint64
	CompleteFrames  uint64
	ShortFrames     uint64
	Dropped         uint64
	TransportErrors uint64
}

// Reassembler orders the interleaved per-node stream into whole frames.
//
// The bus delivers a scan's messages in ascending identifier order. A
// message that breaks the order is either the first message of the next
// scan or the sign of a dropped message; it is held in a one-frame
// lookahead and seeds the next cycle while the current cycle ends short.
type Reassembler struct {
	grid      Grid
	rx        Receiver
	clock     timeutil.Clock
	lookahead slot[canbus.Frame]
	stats     ReassemblerStats
}

// NewReassembler reads frames for grid g from rx. A nil clock uses the
// wall clock.
func NewReassembler(g Grid, rx Receiver, clock timeutil.Clock) *Reassembler {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Reassembler{grid: g, rx: rx, clock: clock}
}

// Pending reports whether a frame is waiting to seed the next cycle.
func (r *Reassembler) Pending() bool {
	return r.lookahead.Full()
}

// Stats returns the cycle counters.
func (r *Reassembler) Stats() ReassemblerStats {
	return r.stats
}

// Next runs one acquisition cycle into f, overwriting its previous
// contents, and returns the number of nodes collected. A transport error
// ends the cycle early: f holds the partial scan and the error is
// returned alongside the count.
func (r *Reassembler) Next(f *Frame) (int, error) {
	f.reset(r.grid.NodeCount())
	r.stats.Cycles++

	prev := -1
	if raw, ok := r.lookahead.Take(); ok {
		if reading, ok := r.accept(raw); ok {
			f.place(reading)
			prev = SequenceNumber(raw.ID)
			if r.isLast(reading) {
				return r.finish(f, true), nil
			}
		}
	}

	for {
		raw, err := r.rx.Receive()
		if err != nil {
			r.stats.TransportErrors++
			n := r.finish(f, false)
			return n, fmt.Errorf("receive after %d of %d nodes: %w", n, r.grid.NodeCount(), err)
		}

		reading, ok := r.accept(raw)
		if !ok {
			continue
		}

		seq := SequenceNumber(raw.ID)
		if prev >= 0 && !continuesOrder(prev, seq) {
			r.lookahead.Put(raw)
			r.stats.ShortFrames++
			monitoring.Debugf("uskin: 0x%03X after %d breaks scan order, ending cycle with %d nodes",
				raw.ID, prev, f.NodeCount)
			return r.finish(f, false), nil
		}

		f.place(reading)
		prev = seq
		if r.isLast(reading) {
			return r.finish(f, true), nil
		}
	}
}

// accept decodes raw and drops it when it does not address a grid node.
func (r *Reassembler) accept(raw canbus.Frame) (NodeReading, bool) {
	reading := DecodeFrame(raw, r.grid)
	if !r.grid.Contains(reading.Index) {
		r.stats.Dropped++
		monitoring.Logf("uskin: dropping frame 0x%03X outside %dx%d grid", raw.ID, r.grid.Rows, r.grid.Columns)
		return NodeReading{}, false
	}
	return reading, true
}

func (r *Reassembler) isLast(reading NodeReading) bool {
	return reading.Index == r.grid.IdentifierToIndex(r.grid.LastIdentifier())
}

func (r *Reassembler) finish(f *Frame, complete bool) int {
	f.Timestamp = r.clock.Now()
	f.Complete = complete
	if complete {
		r.stats.CompleteFrames++
	}
	if monitoring.DebugEnabled() {
		monitoring.Debugf("uskin: cycle %d collected %d/%d nodes (complete=%t)",
			r.stats.Cycles, f.NodeCount, r.grid.NodeCount(), complete)
	}
	return f.NodeCount
}
