// Package comm exchanges packets with a peer over a framed serial link.
package comm

// A Conn is the foreground side of a frame.Link: it is the single producer
// of the outbound ring and the single consumer of the inbound ring, and it
// runs the interrupt side as uart pumps over a byte stream.
//
// Delivery is best effort. Packets are lost when the peer's receive ring is
// full, on transfer errors, or on Reset. Higher layers add sequencing and
// acknowledgement where they need them.
