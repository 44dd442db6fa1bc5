package frame

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTXEscaping(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	payload := []byte{1, tS, 2, tE, tR, 3}
	require.True(t, link.TX.Send(payload))
	require.True(t, tt.armed)

	wire := tt.drain(t, link.TX)
	require.Equal(t, DefaultMarkers.Encode(payload), wire)
	require.Equal(t, 1, tt.disarms)
	require.Equal(t, 0, link.TX.Count())

	snap := link.Stats.Snapshot()
	require.Equal(t, uint64(1), snap.TxPackets)
	require.Equal(t, uint64(6), snap.TxBytes)
	require.Equal(t, uint64(3), snap.TxEscapes)

	feed(link.RX, wire...)
	require.Equal(t, [][]byte{payload}, recvAll(link.RX))
}

func TestTXStartAppendDone(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	tx := link.TX

	tx.Append(9) // ignored, no packet open
	tx.Start()
	require.True(t, tx.Open())
	tx.AppendU8(0x01)
	tx.AppendU16(0x7e02)
	tx.Append(0x03, 0x04)
	require.False(t, tt.armed, "not published before Done")
	require.Equal(t, 0, tx.Count())
	tx.Done()
	require.False(t, tx.Open())
	require.True(t, tt.armed)
	require.Equal(t, 1, tx.Count())
	tx.Done() // no-op, nothing open

	require.Equal(t,
		[]byte{tS, 0x01, tE, tS ^ tM, 0x02, 0x03, 0x04, tS},
		tt.drain(t, tx))
	require.Equal(t, 1, tt.arms)
}

func TestTXQueuedBackToBack(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	pkts := [][]byte{{1, 2}, {tR}, {3}}
	for _, p := range pkts {
		require.True(t, link.TX.Send(p))
	}
	require.Equal(t, DefaultMarkers.Encode(pkts...), tt.drain(t, link.TX))
}

func TestTXEmptyPacket(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	link.TX.Start()
	link.TX.Done()
	require.Equal(t, []byte{tS, tS}, tt.drain(t, link.TX))
}

func TestTXSendTooLarge(t *testing.T) {
	link, tt := newTestLink(t, 16, 8)
	tx := link.TX
	require.True(t, tx.Send([]byte{1, 2, 3, 4, 5}))
	require.Equal(t, 10, tx.Available())

	var before []byte
	for i := uint32(0); i < 16; i++ {
		before = append(before, *tx.ring.bytes.At(i))
	}
	require.False(t, tx.Send(make([]byte, 11)))
	for i := uint32(0); i < 16; i++ {
		require.Equalf(t, before[i], *tx.ring.bytes.At(i), "byte %d written", i)
	}
	require.Equal(t, 1, tx.Count())
	require.Equal(t, uint64(1), link.Stats.Snapshot().TxDropNoSpace)

	require.True(t, tx.Send([]byte{6, 7}))
	feed(link.RX, tt.drain(t, tx)...)
	require.Equal(t, [][]byte{{1, 2, 3, 4, 5}, {6, 7}}, recvAll(link.RX))
}

func TestTXSendWraps(t *testing.T) {
	link, tt := newTestLink(t, 16, 8)
	tx := link.TX
	var got [][]byte
	transfer := func() {
		feed(link.RX, tt.drain(t, tx)...)
		got = append(got, recvAll(link.RX)...)
	}

	require.True(t, tx.Send([]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}))
	transfer()

	// 6 bytes before the end of the buffer, 4 after.
	wrapped := []byte{11, 12, 13, 14, 15, tS, 17, 18, 19, 20}
	require.Equal(t, 15, tx.Available())
	require.True(t, tx.Send(wrapped))
	require.Equal(t, byte(20), *tx.ring.bytes.At(3))
	transfer()

	tx.Start()
	tx.Append(21, 22, 23, 24, 25, 26, 27, 28)
	tx.Done()
	transfer()

	require.Equal(t, [][]byte{
		{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
		wrapped,
		{21, 22, 23, 24, 25, 26, 27, 28},
	}, got)
}

func TestTXBoundaryRingFull(t *testing.T) {
	const slots = 8
	link, tt := newTestLink(t, 128, slots)
	tx := link.TX
	var pkts [][]byte
	for i := 0; i < slots-1; i++ {
		p := []byte{byte(i), byte(i + 1)}
		require.Truef(t, tx.Send(p), "packet %d", i)
		pkts = append(pkts, p)
	}
	require.Equal(t, slots-1, tx.Count())
	require.Equal(t, 0, tx.Space())

	require.False(t, tx.Send([]byte{0xaa}))
	tx.Start()
	require.False(t, tx.Open())
	tx.Append(0xbb)
	tx.Done()
	require.Equal(t, slots-1, tx.Count())
	require.Equal(t, uint64(2), link.Stats.Snapshot().TxDropNoSlot)

	wire := tt.drain(t, tx)
	require.Equal(t, DefaultMarkers.Encode(pkts...), wire)

	var got [][]byte
	for _, b := range wire {
		feed(link.RX, b)
		got = append(got, recvAll(link.RX)...)
	}
	require.Equal(t, pkts, got)
}

func TestTXAppendOverflowAborts(t *testing.T) {
	link, tt := newTestLink(t, 32, 8)
	tx := link.TX
	require.True(t, tx.Send([]byte{1, 2, 3}))

	tx.Start()
	tx.Append(make([]byte, 20)...)
	require.True(t, tx.Open())
	tx.Append(make([]byte, 9)...)
	require.False(t, tx.Open(), "aborted when full")
	tx.Append(4)
	tx.Done()
	require.Equal(t, 1, tx.Count())
	require.Equal(t, uint64(1), link.Stats.Snapshot().TxDropNoSpace)

	// the aborted bytes are reusable.
	tx.Start()
	tx.Append(make([]byte, 28)...)
	tx.Done()
	require.Equal(t, 2, tx.Count())

	feed(link.RX, tt.drain(t, tx)...)
	pkts := recvAll(link.RX)
	require.Len(t, pkts, 2)
	require.Equal(t, []byte{1, 2, 3}, pkts[0])
	require.Len(t, pkts[1], 28)
}

func TestTXSendDiscardsOpenPacket(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	tx := link.TX
	tx.Start()
	tx.Append(1, 2)
	require.True(t, tx.Send([]byte{3}))
	require.False(t, tx.Open())
	tx.Done()
	require.Equal(t, DefaultMarkers.Encode([]byte{3}), tt.drain(t, tx))
}

func TestTXSpuriousEvent(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	tt.armed = true
	b, ok := link.TX.OnByteReady()
	require.False(t, ok)
	require.Zero(t, b)
	require.False(t, tt.armed)
}

func TestTXReset(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	tx := link.TX
	require.True(t, tx.Send([]byte{1, 2, 3, 4}))
	require.True(t, tx.Send([]byte{5}))
	sent := tt.fire(t, tx, 3)
	require.Equal(t, []byte{tS, 1, 2}, sent)

	tx.Reset()
	require.Zero(t, tt.txMasked, "mask restored")
	require.True(t, tt.armed, "arm state kept")
	require.Equal(t, 0, tx.Count())
	require.Equal(t, uint64(2), link.Stats.Snapshot().TxDropReset)

	rest := tt.drain(t, tx)
	require.Equal(t, []byte{tR}, rest)

	feed(link.RX, append(sent, rest...)...)
	require.True(t, tx.Send([]byte{6}))
	feed(link.RX, tt.drain(t, tx)...)
	require.Equal(t, [][]byte{{6}}, recvAll(link.RX))
	require.Equal(t, uint64(1), link.Stats.Snapshot().RxAborted)
}

func TestTXResetIdle(t *testing.T) {
	link, tt := newTestLink(t, 128, 8)
	require.True(t, link.TX.Send([]byte{1}))
	tt.drain(t, link.TX)
	link.TX.Reset()
	require.False(t, tt.armed)
	require.Zero(t, link.Stats.Snapshot().TxDropReset)
	require.True(t, link.TX.Send([]byte{2}))
	require.Equal(t, DefaultMarkers.Encode([]byte{2}), tt.drain(t, link.TX))
}
