package frame

import (
	"sync/atomic"

	"github.com/robotalks/framelink/pkg/l0/ring"
)

// packetRing is a byte buffer shared by the packets indexed in bounds.
// bounds[i] is where the i-th packet starts, bounds[i+1] where it ends.
// Packets in [tail, head) are committed. bounds[head+1] is the write cursor
// of the packet being built.
type packetRing struct {
	bytes  *ring.Ring[byte]
	bounds *ring.Ring[atomic.Uint32]
	head   atomic.Uint32
	tail   atomic.Uint32
}

func newPacketRing(bufSize, slots int) (*packetRing, error) {
	bytes, err := ring.New[byte](bufSize)
	if err != nil {
		return nil, err
	}
	bounds, err := ring.New[atomic.Uint32](slots)
	if err != nil {
		return nil, err
	}
	return &packetRing{bytes: bytes, bounds: bounds}, nil
}

func (r *packetRing) bound(slot uint32) uint32 {
	return r.bounds.At(slot).Load()
}

func (r *packetRing) setBound(slot, off uint32) {
	r.bounds.At(slot).Store(off)
}

// count returns the number of committed packets.
func (r *packetRing) count() uint32 {
	return r.bounds.Count(r.head.Load(), r.tail.Load())
}

// length returns the bytes of the packet starting at slot.
func (r *packetRing) length(slot uint32) uint32 {
	return r.bytes.Count(r.bound(r.bounds.Next(slot)), r.bound(slot))
}

// oldest returns the first byte still registered to a packet.
// A stale tail only yields an older offset, never a newer one.
func (r *packetRing) oldest() uint32 {
	return r.bound(r.tail.Load())
}

// write copies p at cursor, split at the end of the buffer, and returns the
// new cursor. The caller has checked the space.
func (r *packetRing) write(cursor, oldest uint32, p []byte) uint32 {
	n := uint32(len(p))
	first := r.bytes.SpaceToEnd(cursor, oldest)
	if first > n {
		first = n
	}
	for i := uint32(0); i < first; i++ {
		*r.bytes.At(cursor + i) = p[i]
	}
	for i := first; i < n; i++ {
		*r.bytes.At(i - first) = p[i]
	}
	return r.bytes.Add(cursor, n)
}

// read appends n bytes at off to dst.
func (r *packetRing) read(dst []byte, off, n uint32) []byte {
	for i := uint32(0); i < n; i++ {
		dst = append(dst, *r.bytes.At(off + i))
	}
	return dst
}
