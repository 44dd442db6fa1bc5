package frame

import "strings"

// Transport is the hardware side of a link.
// The TX producer arms byte-ready notifications after publishing a packet,
// and the TX encoder disarms them when its queue runs empty.
// Both must be cheap and must not block.
type Transport interface {
	ArmTx()
	DisarmTx()
}

// Masker is implemented by transports which can hold off an interrupt
// source. The returned func restores the source exactly as found.
type Masker interface {
	MaskTx() (restore func())
	MaskRx() (restore func())
}

// ErrorFlags are receive errors reported by the transport with a byte.
type ErrorFlags uint8

// Receive error flags.
const (
	ErrFraming ErrorFlags = 1 << iota
	ErrOverrun
	ErrParity
)

// String implements fmt.Stringer.
func (f ErrorFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	if f&ErrFraming != 0 {
		names = append(names, "framing")
	}
	if f&ErrOverrun != 0 {
		names = append(names, "overrun")
	}
	if f&ErrParity != 0 {
		names = append(names, "parity")
	}
	return strings.Join(names, "|")
}

type nopTransport struct{}

func (nopTransport) ArmTx()    {}
func (nopTransport) DisarmTx() {}

func maskTx(t Transport) func() {
	if m, ok := t.(Masker); ok {
		return m.MaskTx()
	}
	return func() {}
}

func maskRx(t Transport) func() {
	if m, ok := t.(Masker); ok {
		return m.MaskRx()
	}
	return func() {}
}

// Point names a step between two shared writes of the foreground side.
type Point int

// Preemption points.
const (
	// PointBoundaryExtended is after the end of a new TX packet is stored.
	PointBoundaryExtended Point = iota
	// PointPlaceholderSet is after the slot following the new head is set.
	PointPlaceholderSet
	// PointHeadPublished is after TX head moves, before the transport is armed.
	PointHeadPublished
	// PointRecvLoaded is after RX.Recv reads the oldest packet.
	PointRecvLoaded
)

// Hook is invoked at preemption points. Tests use it to run an interrupt
// handler exactly between two writes.
type Hook func(Point)

func (h Hook) at(p Point) {
	if h != nil {
		h(p)
	}
}
