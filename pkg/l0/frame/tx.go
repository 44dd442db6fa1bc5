package frame

// TX is the outbound half of a link.
//
// The producer methods (Start, Append*, Send, Done, Reset) must be called
// from a single foreground context. OnByteReady is the interrupt handler.
type TX struct {
	ring      *packetRing
	markers   Markers
	transport Transport
	stats     *Stats
	hook      Hook

	// producer state
	open bool

	// encoder state
	sending bool
	abort   bool
}

func newTX(cfg Config, stats *Stats) (*TX, error) {
	r, err := newPacketRing(cfg.BufSize, cfg.Slots)
	if err != nil {
		return nil, err
	}
	return &TX{ring: r, markers: cfg.Markers, transport: nopTransport{}, stats: stats}, nil
}

// SetHook installs a preemption hook. Not safe to call while the link runs.
func (t *TX) SetHook(h Hook) {
	t.hook = h
}

// Count returns the number of packets queued, including the one on the wire.
func (t *TX) Count() int {
	return int(t.ring.count())
}

// Space returns how many more packets can be queued.
func (t *TX) Space() int {
	return int(t.ring.bounds.Space(t.ring.head.Load(), t.ring.tail.Load()))
}

// Available returns the byte space left for a new packet, or for the open
// one. It doesn't check for a free boundary slot, see Space.
func (t *TX) Available() int {
	start := t.ring.bound(t.ring.head.Load())
	if t.open {
		start = t.ring.bound(t.ring.bounds.Next(t.ring.head.Load()))
	}
	return int(t.ring.bytes.Space(start, t.ring.oldest()))
}

// Start opens a new packet. If no boundary slot is free the packet is
// dropped and following appends are ignored.
func (t *TX) Start() {
	head := t.ring.head.Load()
	if t.ring.bounds.Space(head, t.ring.tail.Load()) == 0 {
		t.open = false
		t.stats.txDropNoSlot.Add(1)
		return
	}
	t.ring.setBound(t.ring.bounds.Next(head), t.ring.bound(head))
	t.open = true
}

// Open tells if a packet is being built.
func (t *TX) Open() bool {
	return t.open
}

// Append copies raw bytes into the open packet. If they don't all fit, the
// packet is dropped as a whole.
func (t *TX) Append(p ...byte) {
	if !t.open {
		return
	}
	head := t.ring.head.Load()
	slot := t.ring.bounds.Next(head)
	cursor, oldest := t.ring.bound(slot), t.ring.oldest()
	if uint32(len(p)) > t.ring.bytes.Space(cursor, oldest) {
		t.ring.setBound(slot, t.ring.bound(head))
		t.open = false
		t.stats.txDropNoSpace.Add(1)
		return
	}
	t.ring.setBound(slot, t.ring.write(cursor, oldest, p))
}

// AppendU8 appends a byte.
func (t *TX) AppendU8(b byte) {
	t.Append(b)
}

// AppendU16 appends v high byte first.
func (t *TX) AppendU16(v uint16) {
	t.Append(byte(v>>8), byte(v))
}

// Done publishes the open packet.
func (t *TX) Done() {
	if !t.open {
		return
	}
	t.open = false
	t.publish(t.ring.bounds.Next(t.ring.head.Load()))
}

// Send queues p as one packet, or nothing at all if it doesn't fit.
// A packet opened by Start is discarded.
func (t *TX) Send(p []byte) bool {
	t.open = false
	head, tail := t.ring.head.Load(), t.ring.tail.Load()
	if t.ring.bounds.Space(head, tail) == 0 {
		t.stats.txDropNoSlot.Add(1)
		return false
	}
	start, oldest := t.ring.bound(head), t.ring.bound(tail)
	if uint32(len(p)) > t.ring.bytes.Space(start, oldest) {
		t.stats.txDropNoSpace.Add(1)
		return false
	}
	next := t.ring.bounds.Next(head)
	t.ring.setBound(next, t.ring.write(start, oldest, p))
	t.publish(next)
	return true
}

// publish makes the packet ending at bounds[next] visible to the encoder.
// The slot after next gets a zero-length placeholder before head moves so
// the encoder never reads a half written boundary. The placeholder is
// skipped when that slot is the tail: the ring is full then and Start
// initializes the slot before it's used.
func (t *TX) publish(next uint32) {
	t.hook.at(PointBoundaryExtended)
	end := t.ring.bound(next)
	if after := t.ring.bounds.Next(next); after != t.ring.tail.Load() {
		t.ring.setBound(after, end)
	}
	t.hook.at(PointPlaceholderSet)
	head := t.ring.head.Load()
	t.ring.head.Store(next)
	t.stats.txPackets.Add(1)
	t.stats.txBytes.Add(uint64(t.ring.bytes.Count(end, t.ring.bound(head))))
	t.hook.at(PointHeadPublished)
	t.transport.ArmTx()
}

// Reset drops all queued packets, including the one on the wire which is
// then aborted with a RESET marker. The encoder is held off while the ring
// is rewritten.
func (t *TX) Reset() {
	restore := maskTx(t.transport)
	defer restore()
	t.open = false
	head, tail := t.ring.head.Load(), t.ring.tail.Load()
	if n := t.ring.bounds.Count(head, tail); n > 0 {
		t.stats.txDropReset.Add(uint64(n))
	}
	if t.sending {
		t.abort = true
	}
	t.sending = false
	t.ring.tail.Store(head)
}

// OnByteReady is called when the transport can take the next byte.
// It returns false when there is nothing to send, and the transport has
// been disarmed.
func (t *TX) OnByteReady() (byte, bool) {
	if t.abort {
		t.abort = false
		return t.markers.Reset, true
	}
	tail, head := t.ring.tail.Load(), t.ring.head.Load()
	if tail == head {
		// armed with nothing queued.
		t.sending = false
		t.transport.DisarmTx()
		return 0, false
	}
	if !t.sending {
		// one byte per event, the payload starts with the next one.
		t.sending = true
		return t.markers.Start, true
	}

	next := t.ring.bounds.Next(tail)
	loc := t.ring.bound(tail)
	if loc == t.ring.bound(next) {
		t.ring.tail.Store(next)
		if next == t.ring.head.Load() {
			t.sending = false
			t.transport.DisarmTx()
		}
		// closes the packet just sent, and opens the next one if any.
		return t.markers.Start, true
	}

	b := *t.ring.bytes.At(loc)
	if t.markers.IsControl(b) {
		// the masked value is never a marker, it goes out on the next event.
		*t.ring.bytes.At(loc) = b ^ t.markers.Mask
		t.stats.txEscapes.Add(1)
		return t.markers.Escape, true
	}
	t.ring.setBound(tail, t.ring.bytes.Next(loc))
	return b, true
}
