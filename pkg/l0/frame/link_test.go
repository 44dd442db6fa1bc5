package frame

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func randomPayload(rnd *rand.Rand, maxLen int) []byte {
	p := make([]byte, 1+rnd.Intn(maxLen))
	for i := range p {
		if rnd.Intn(4) == 0 {
			p[i] = []byte{tS, tE, tR}[rnd.Intn(3)]
		} else {
			p[i] = byte(rnd.Intn(256))
		}
	}
	return p
}

// TestLinkFIFO loops TX into RX of the same link. Interrupt events are
// interleaved at random with the producer, including between its shared
// writes, and the consumer keeps up so nothing is dropped.
func TestLinkFIFO(t *testing.T) {
	const slots = 8
	link, tt := newTestLink(t, 128, slots)
	tx, rx := link.TX, link.RX
	rnd := rand.New(rand.NewSource(7))

	var sent, got [][]byte
	pump := func(n int) {
		for _, b := range tt.fire(t, tx, n) {
			rx.OnByteReceived(b, 0)
			if rx.RecvCount() >= slots-3 || rnd.Intn(2) == 0 {
				got = append(got, recvAll(rx)...)
			}
		}
	}
	tx.SetHook(func(Point) { pump(rnd.Intn(4)) })

	for len(sent) < 2000 {
		p := randomPayload(rnd, 16)
		for tx.Space() == 0 || tx.Available() < len(p) {
			pump(1 + rnd.Intn(8))
		}
		if rnd.Intn(2) == 0 {
			require.True(t, tx.Send(p))
		} else {
			tx.Start()
			for rest := p; len(rest) > 0; {
				n := 1 + rnd.Intn(len(rest))
				tx.Append(rest[:n]...)
				rest = rest[n:]
				pump(rnd.Intn(3))
			}
			require.True(t, tx.Open())
			tx.Done()
		}
		sent = append(sent, p)
		pump(rnd.Intn(8))
	}
	for tt.armed {
		pump(64)
	}
	got = append(got, recvAll(rx)...)

	require.Equal(t, len(sent), len(got))
	for n := range sent {
		require.Equalf(t, sent[n], got[n], "packet %d", n)
	}
	txDropped, rxDropped := link.Stats.Snapshot().Dropped()
	require.Zero(t, txDropped)
	require.Zero(t, rxDropped)
}

func TestTXPreemptedPublish(t *testing.T) {
	points := []Point{PointBoundaryExtended, PointPlaceholderSet, PointHeadPublished}
	for _, point := range points {
		t.Run(fmt.Sprintf("point %d", point), func(t *testing.T) {
			link, tt := newTestLink(t, 128, 8)
			tx := link.TX
			p1, p2 := []byte{1, 2, tS}, []byte{3, 4}
			require.True(t, tx.Send(p1))
			wire := tt.fire(t, tx, 2)

			// the interrupt runs as long as it stays armed.
			tx.SetHook(func(p Point) {
				if p == point {
					wire = append(wire, tt.fire(t, tx, 1<<10)...)
				}
			})
			require.True(t, tx.Send(p2))
			tx.SetHook(nil)
			require.True(t, tt.armed)
			wire = append(wire, tt.drain(t, tx)...)
			require.Equal(t, 0, tx.Count())

			feed(link.RX, wire...)
			require.Equal(t, [][]byte{p1, p2}, recvAll(link.RX))
		})
	}
}

func TestTXPreemptedPublishFullRing(t *testing.T) {
	const slots = 8
	points := []Point{PointBoundaryExtended, PointPlaceholderSet, PointHeadPublished}
	for _, point := range points {
		for events := 0; events < 12; events++ {
			t.Run(fmt.Sprintf("point %d events %d", point, events), func(t *testing.T) {
				link, tt := newTestLink(t, 128, slots)
				tx := link.TX
				var pkts [][]byte
				for i := 0; i < slots-1; i++ {
					pkts = append(pkts, []byte{byte(i), tE, byte(i)})
				}
				for _, p := range pkts[:slots-2] {
					require.True(t, tx.Send(p))
				}
				wire := tt.fire(t, tx, 3)
				tx.SetHook(func(p Point) {
					if p == point {
						wire = append(wire, tt.fire(t, tx, events)...)
					}
				})
				require.True(t, tx.Send(pkts[slots-2]))
				tx.SetHook(nil)
				wire = append(wire, tt.drain(t, tx)...)

				var got [][]byte
				for _, b := range wire {
					feed(link.RX, b)
					got = append(got, recvAll(link.RX)...)
				}
				require.Equal(t, pkts, got)
			})
		}
	}
}

func TestRXPreemptedRecv(t *testing.T) {
	link, _ := newTestLink(t, 16, 8)
	rx := link.RX
	feed(rx, tS, 1, 2, 3, tS)
	rx.SetHook(func(p Point) {
		if p == PointRecvLoaded {
			feed(rx, 4, 5, tS)
		}
	})
	h, ok := rx.Recv()
	rx.SetHook(nil)
	require.True(t, ok)
	require.Equal(t, 3, rx.RecvLen(h))
	require.Equal(t, []byte{1, 2, 3}, rx.CopyPacket(nil, h))
	rx.RecvDrop(h)
	require.Equal(t, [][]byte{{4, 5}}, recvAll(rx))
}
