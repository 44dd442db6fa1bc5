package frame

import (
	"errors"
	"fmt"
)

// Markers defines the reserved byte values on the wire.
type Markers struct {
	Start  byte
	Escape byte
	Reset  byte
	// Mask is XORed into an escaped payload byte.
	Mask byte
}

// DefaultMarkers are the markers used unless configured otherwise.
var DefaultMarkers = Markers{
	Start:  0x7e,
	Escape: 0x7d,
	Reset:  0x7c,
	Mask:   0x20,
}

// ErrMarkers indicates an unusable set of markers.
var ErrMarkers = errors.New("invalid markers")

// IsControl checks if b is one of the reserved values.
func (m Markers) IsControl(b byte) bool {
	return b == m.Start || b == m.Escape || b == m.Reset
}

// Validate checks the markers are distinct and that an escaped value is
// never a reserved value itself.
func (m Markers) Validate() error {
	if m.Start == m.Escape || m.Start == m.Reset || m.Escape == m.Reset {
		return fmt.Errorf("%w: duplicated marker", ErrMarkers)
	}
	if m.Mask == 0 {
		return fmt.Errorf("%w: zero mask", ErrMarkers)
	}
	for _, b := range []byte{m.Start, m.Escape, m.Reset} {
		if m.IsControl(b ^ m.Mask) {
			return fmt.Errorf("%w: %#02x escapes to a marker", ErrMarkers, b)
		}
	}
	return nil
}

// AppendEscaped appends payload to dst with reserved values escaped.
func (m Markers) AppendEscaped(dst, payload []byte) []byte {
	for _, b := range payload {
		if m.IsControl(b) {
			dst = append(dst, m.Escape, b^m.Mask)
		} else {
			dst = append(dst, b)
		}
	}
	return dst
}

// Encode builds the wire stream for packets sent back to back, the same
// bytes TX.OnByteReady produces when all packets are queued before the
// first byte goes out. It suits transports which take multi-byte writes.
func (m Markers) Encode(packets ...[]byte) []byte {
	n := 1
	for _, p := range packets {
		n += len(p) + 1
	}
	out := make([]byte, 0, n)
	for _, p := range packets {
		out = append(out, m.Start)
		out = m.AppendEscaped(out, p)
	}
	return append(out, m.Start)
}
