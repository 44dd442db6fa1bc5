package frame

// RX is the inbound half of a link.
//
// OnByteReceived is the interrupt handler. The consumer methods (Recv,
// RecvLen, RecvDrop, RecvCount, Next, Reset) must be called from a single
// foreground context.
type RX struct {
	ring      *packetRing
	markers   Markers
	transport Transport
	stats     *Stats
	hook      Hook

	// decoder state
	receiving bool
	escaped   bool
}

// Handle refers to a received packet.
type Handle struct {
	slot   uint32
	offset uint32
}

// Offset is where the packet starts in the receive buffer.
func (h Handle) Offset() int {
	return int(h.offset)
}

func newRX(cfg Config, stats *Stats) (*RX, error) {
	r, err := newPacketRing(cfg.BufSize, cfg.Slots)
	if err != nil {
		return nil, err
	}
	return &RX{ring: r, markers: cfg.Markers, transport: nopTransport{}, stats: stats}, nil
}

// SetHook installs a preemption hook. Not safe to call while the link runs.
func (r *RX) SetHook(h Hook) {
	r.hook = h
}

// OnByteReceived handles one byte from the transport.
func (r *RX) OnByteReceived(b byte, flags ErrorFlags) {
	head := r.ring.head.Load()
	if flags != 0 {
		r.stats.rxErrors.Add(1)
		r.abort(head)
		return
	}
	switch {
	case b == r.markers.Start:
		r.receiving, r.escaped = true, false
		r.next(head)
		return
	case !r.receiving:
		r.stats.rxNoise.Add(1)
		return
	case b == r.markers.Reset:
		r.abort(head)
		return
	case b == r.markers.Escape:
		r.escaped = true
		return
	}
	if r.escaped {
		r.escaped = false
		b ^= r.markers.Mask
	}
	slot := r.ring.bounds.Next(head)
	cursor := r.ring.bound(slot)
	if r.ring.bytes.Space(cursor, r.ring.oldest()) == 0 {
		// never overwrite bytes not yet consumed.
		r.stats.rxDropNoSpace.Add(1)
		r.receiving, r.escaped = false, false
		r.ring.setBound(slot, r.ring.bound(head))
		return
	}
	*r.ring.bytes.At(cursor) = b
	r.ring.setBound(slot, r.ring.bytes.Next(cursor))
}

// next closes the packet being received and opens a new one. An empty
// packet stays open. When no slot is left for another packet, the bytes
// received so far are dropped and the slot is reused.
func (r *RX) next(head uint32) {
	slot := r.ring.bounds.Next(head)
	start, cursor := r.ring.bound(head), r.ring.bound(slot)
	if cursor == start {
		return
	}
	after := r.ring.bounds.Next(slot)
	if after == r.ring.tail.Load() {
		r.stats.rxDropNoSlot.Add(1)
		r.ring.setBound(slot, start)
		return
	}
	r.ring.setBound(after, cursor)
	r.ring.head.Store(slot)
	r.stats.rxPackets.Add(1)
	r.stats.rxBytes.Add(uint64(r.ring.bytes.Count(cursor, start)))
}

func (r *RX) abort(head uint32) {
	slot := r.ring.bounds.Next(head)
	if start := r.ring.bound(head); r.ring.bound(slot) != start {
		r.stats.rxAborted.Add(1)
		r.ring.setBound(slot, start)
	}
	r.receiving, r.escaped = false, false
}

// Recv returns the oldest packet not yet dropped.
func (r *RX) Recv() (Handle, bool) {
	tail := r.ring.tail.Load()
	if tail == r.ring.head.Load() {
		return Handle{}, false
	}
	h := Handle{slot: tail, offset: r.ring.bound(tail)}
	r.hook.at(PointRecvLoaded)
	return h, true
}

// RecvLen returns the length of the packet.
func (r *RX) RecvLen(h Handle) int {
	return int(r.ring.length(h.slot))
}

// RecvDrop releases the packet returned by the last Recv.
// It does nothing if h is not the oldest packet.
func (r *RX) RecvDrop(h Handle) {
	if r.ring.tail.Load() != h.slot {
		return
	}
	r.ring.tail.Store(r.ring.bounds.Next(h.slot))
}

// RecvCount returns the number of packets ready to be received.
func (r *RX) RecvCount() int {
	return int(r.ring.count())
}

// CopyPacket appends the content of the packet to dst.
func (r *RX) CopyPacket(dst []byte, h Handle) []byte {
	return r.ring.read(dst, h.offset, r.ring.length(h.slot))
}

// Next copies out and drops the oldest packet.
func (r *RX) Next() ([]byte, bool) {
	h, ok := r.Recv()
	if !ok {
		return nil, false
	}
	pkt := r.CopyPacket(make([]byte, 0, r.RecvLen(h)), h)
	r.RecvDrop(h)
	return pkt, true
}

// Reset drops all received packets and the one being received. The decoder
// is held off while the ring is rewritten, and waits for the next START.
func (r *RX) Reset() {
	restore := maskRx(r.transport)
	defer restore()
	head, tail := r.ring.head.Load(), r.ring.tail.Load()
	if n := r.ring.bounds.Count(head, tail); n > 0 {
		r.stats.rxDropReset.Add(uint64(n))
	}
	r.ring.setBound(r.ring.bounds.Next(head), r.ring.bound(head))
	r.receiving, r.escaped = false, false
	r.ring.tail.Store(head)
}
