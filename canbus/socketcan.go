//go:build linux

package canbus

import "github.com/brutella/can"

// isControlFrame reports error and remote-request frames, which carry no
// node reading.
func isControlFrame(raw can.Frame) bool {
	return raw.ID&(socketERRFlag|socketRTRFlag) != 0
}

func fromSocketFrame(raw can.Frame) Frame {
	f := Frame{
		ID:       raw.ID & ExtendedIDMask,
		Extended: raw.ID&socketEFFFlag != 0,
		Len:      raw.Length,
	}
	if !f.Extended {
		f.ID &= StandardIDMask
	}
	if f.Len > MaxDataLength {
		f.Len = MaxDataLength
	}
	copy(f.Data[:], raw.Data[:])
	return f
}

func toSocketFrame(f Frame) can.Frame {
	raw := can.Frame{ID: f.ID, Length: f.Len}
	if f.Extended {
		raw.ID |= socketEFFFlag
	}
	copy(raw.Data[:], f.Data[:])
	return raw
}
