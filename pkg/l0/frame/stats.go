package frame

import "sync/atomic"

// Stats counts traffic and losses of a Link. Counters are updated from both
// foreground and interrupt side.
type Stats struct {
	txPackets     atomic.Uint64
	txBytes       atomic.Uint64
	txEscapes     atomic.Uint64
	txDropNoSlot  atomic.Uint64
	txDropNoSpace atomic.Uint64
	txDropReset   atomic.Uint64

	rxPackets     atomic.Uint64
	rxBytes       atomic.Uint64
	rxNoise       atomic.Uint64
	rxErrors      atomic.Uint64
	rxAborted     atomic.Uint64
	rxDropNoSlot  atomic.Uint64
	rxDropNoSpace atomic.Uint64
	rxDropReset   atomic.Uint64
}

// StatsSnapshot is a copy of Stats.
type StatsSnapshot struct {
	TxPackets     uint64
	TxBytes       uint64
	TxEscapes     uint64
	TxDropNoSlot  uint64
	TxDropNoSpace uint64
	TxDropReset   uint64

	RxPackets     uint64
	RxBytes       uint64
	RxNoise       uint64
	RxErrors      uint64
	RxAborted     uint64
	RxDropNoSlot  uint64
	RxDropNoSpace uint64
	RxDropReset   uint64
}

// StatField describes one counter of a StatsSnapshot.
type StatField struct {
	Name  string
	Help  string
	Value *uint64
}

// Snapshot copies the counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		TxPackets:     s.txPackets.Load(),
		TxBytes:       s.txBytes.Load(),
		TxEscapes:     s.txEscapes.Load(),
		TxDropNoSlot:  s.txDropNoSlot.Load(),
		TxDropNoSpace: s.txDropNoSpace.Load(),
		TxDropReset:   s.txDropReset.Load(),
		RxPackets:     s.rxPackets.Load(),
		RxBytes:       s.rxBytes.Load(),
		RxNoise:       s.rxNoise.Load(),
		RxErrors:      s.rxErrors.Load(),
		RxAborted:     s.rxAborted.Load(),
		RxDropNoSlot:  s.rxDropNoSlot.Load(),
		RxDropNoSpace: s.rxDropNoSpace.Load(),
		RxDropReset:   s.rxDropReset.Load(),
	}
}

// Fields lists the counters with stable names.
func (s *StatsSnapshot) Fields() []StatField {
	return []StatField{
		{"tx_packets", "Packets published for transmission.", &s.TxPackets},
		{"tx_bytes", "Payload bytes published for transmission.", &s.TxBytes},
		{"tx_escapes", "Payload bytes escaped on the wire.", &s.TxEscapes},
		{"tx_drop_no_slot", "Outbound packets dropped for a full boundary ring.", &s.TxDropNoSlot},
		{"tx_drop_no_space", "Outbound packets dropped for a full byte buffer.", &s.TxDropNoSpace},
		{"tx_drop_reset", "Outbound packets flushed by a reset.", &s.TxDropReset},
		{"rx_packets", "Packets received and framed.", &s.RxPackets},
		{"rx_bytes", "Payload bytes received in framed packets.", &s.RxBytes},
		{"rx_noise", "Bytes ignored before a start marker.", &s.RxNoise},
		{"rx_errors", "Bytes received with transport error flags.", &s.RxErrors},
		{"rx_aborted", "Inbound packets aborted by a reset marker or an error.", &s.RxAborted},
		{"rx_drop_no_slot", "Inbound packets dropped for a full boundary ring.", &s.RxDropNoSlot},
		{"rx_drop_no_space", "Inbound packets dropped for a full byte buffer.", &s.RxDropNoSpace},
		{"rx_drop_reset", "Inbound packets flushed by a reset.", &s.RxDropReset},
	}
}

// Dropped sums all outbound and inbound losses.
func (s StatsSnapshot) Dropped() (tx, rx uint64) {
	tx = s.TxDropNoSlot + s.TxDropNoSpace + s.TxDropReset
	rx = s.RxAborted + s.RxDropNoSlot + s.RxDropNoSpace + s.RxDropReset
	return
}
