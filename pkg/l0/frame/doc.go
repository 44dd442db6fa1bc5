// Package frame provides the asynchronous link framing layer.
package frame

// A link carries packets over a byte stream using byte stuffing:
//
//	START payload... START payload... START
//
// Reserved values inside a payload (START, ESCAPE, RESET) are sent as ESCAPE
// followed by the value XORed with the escape mask. RESET aborts the packet
// being received. There is no end marker: a received packet becomes
// deliverable when the next START arrives, so the transmitter closes every
// packet with a START once its queue runs empty.
//
// Each direction is a packet ring: a byte buffer plus a ring of packet
// boundaries. The foreground side (TX producer, RX consumer) and the
// interrupt side (TX encoder, RX decoder) share a ring without locks. Each
// index has exactly one writer:
//
//	TX head, cursor slot: producer      TX tail, read cursor: encoder
//	RX head, cursor slot: decoder       RX tail:              consumer
//
// Interrupt side methods (TX.OnByteReady, RX.OnByteReceived) handle exactly
// one byte per call and never block.
