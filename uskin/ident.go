package uskin

import "fmt"

// Node identifiers pack a decimal coordinate into hexadecimal nibbles:
// 0x135 is read as the decimal number 135. The ones digit selects the
// column, the tens digit the row, and the hundreds digit identifies the
// device class and plays no part in indexing.

// maxGridDigits bounds rows and columns: each is addressed by one digit.
const maxGridDigits = 10

// InvalidIndex is returned for identifiers that do not address a node.
const InvalidIndex = -1

// Grid describes the node matrix of one sensor.
type Grid struct {
	Rows    int `json:"rows" yaml:"rows"`
	Columns int `json:"columns" yaml:"columns"`
	// DeviceClass is the hundreds digit stamped on identifiers produced by
	// IndexToIdentifier.
	DeviceClass int `json:"device_class" yaml:"device_class"`
}

// DefaultGrid is the 4 x 6 layout of the standard uSkin patch.
var DefaultGrid = Grid{Rows: 4, Columns: 6, DeviceClass: 1}

// NodeCount is the number of sensing nodes, Rows x Columns.
func (g Grid) NodeCount() int {
	return g.Rows * g.Columns
}

// Validate checks that every node is addressable by the identifier scheme.
func (g Grid) Validate() error {
	if g.Rows < 1 || g.Rows > maxGridDigits {
		return fmt.Errorf("rows %d out of range [1,%d]", g.Rows, maxGridDigits)
	}
	if g.Columns < 1 || g.Columns > maxGridDigits {
		return fmt.Errorf("columns %d out of range [1,%d]", g.Columns, maxGridDigits)
	}
	if g.DeviceClass < 0 || g.DeviceClass > 9 {
		return fmt.Errorf("device class %d is not a decimal digit", g.DeviceClass)
	}
	return nil
}

// Contains reports whether index addresses a node of the grid.
func (g Grid) Contains(index int) bool {
	return index >= 0 && index < g.NodeCount()
}

// DecodeDigits splits the three least significant nibbles of id.
func DecodeDigits(id uint32) (unit, tens, hundreds int) {
	return int(id & 0xF), int(id >> 4 & 0xF), int(id >> 8 & 0xF)
}

// SequenceNumber reads the identifier's nibbles as a decimal number, so
// 0x135 yields 135. Nibbles above 9 are not decimal digits and make the
// result meaningless; IdentifierToIndex rejects them.
func SequenceNumber(id uint32) int {
	unit, tens, hundreds := DecodeDigits(id)
	return hundreds*100 + tens*10 + unit
}

// IdentifierToIndex maps a raw identifier to its row-major matrix index:
// (ones digit) * Rows + (tens digit). Identifiers with non-decimal nibbles
// or digits beyond the grid return InvalidIndex so callers can drop them
// rather than alias another node.
func (g Grid) IdentifierToIndex(id uint32) int {
	unit, tens, hundreds := DecodeDigits(id)
	if unit > 9 || tens > 9 || hundreds > 9 {
		return InvalidIndex
	}
	if unit >= g.Columns || tens >= g.Rows {
		return InvalidIndex
	}
	decoded := SequenceNumber(id)
	return (decoded%10)*g.Rows + decoded/10%10
}

// IndexToIdentifier is the inverse of IdentifierToIndex for indices in
// [0, NodeCount).
func (g Grid) IndexToIdentifier(index int) uint32 {
	unit := index / g.Rows
	tens := index % g.Rows
	return uint32(g.DeviceClass&0xF)<<8 | uint32(tens&0xF)<<4 | uint32(unit&0xF)
}

// LastIdentifier is the identifier of the final node streamed in a scan.
func (g Grid) LastIdentifier() uint32 {
	return g.IndexToIdentifier(g.NodeCount() - 1)
}

// continuesOrder reports whether sequence number next may follow prev in
// the same scan. The tens digit is the primary key and the two-digit value
// breaks ties.
//
// The hundreds digit is ignored: a step from 0x139 to 0x200 compares 39
// against 00 and ends the scan.
func continuesOrder(prev, next int) bool {
	prevTens, nextTens := prev/10%10, next/10%10
	if nextTens != prevTens {
		return nextTens > prevTens
	}
	return next%100 > prev%100
}
