// Package comm moves packets between a link and the world outside the host.
package comm

import "context"

// PacketReader reads packets in bytes.
// It returns io.EOF when the source ends.
type PacketReader interface {
	ReadPacket() ([]byte, error)
}

// PacketWriter writes packets in bytes.
type PacketWriter interface {
	WritePacket([]byte) error
}

// PacketReadWriter reads/writes packets in bytes.
type PacketReadWriter interface {
	PacketReader
	PacketWriter
}

// ContextPacketReader reads packets and gives up when ctx is done.
type ContextPacketReader interface {
	ReadPacketContext(ctx context.Context) ([]byte, error)
}

// ContextPacketWriter writes packets and gives up when ctx is done.
type ContextPacketWriter interface {
	WritePacketContext(ctx context.Context, pkt []byte) error
}

// ReadPacket reads from r, with ctx if supported.
func ReadPacket(ctx context.Context, r PacketReader) ([]byte, error) {
	if cr, ok := r.(ContextPacketReader); ok {
		return cr.ReadPacketContext(ctx)
	}
	return r.ReadPacket()
}

// WritePacket writes to w, with ctx if supported.
func WritePacket(ctx context.Context, w PacketWriter, pkt []byte) error {
	if cw, ok := w.(ContextPacketWriter); ok {
		return cw.WritePacketContext(ctx, pkt)
	}
	return w.WritePacket(pkt)
}

// Direction tells which way a packet is forwarded.
type Direction int

// Directions of a Pipe.
const (
	// Uplink is from the local side (the link) to the remote side.
	Uplink Direction = iota
	// Downlink is from the remote side to the local side.
	Downlink
)

// String implements fmt.Stringer.
func (d Direction) String() string {
	if d == Uplink {
		return "up"
	}
	return "down"
}
