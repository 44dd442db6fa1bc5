package stream

import (
	"bytes"
	"encoding/binary"
	"io"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadWriter(t *testing.T) {
	var buf bytes.Buffer
	rw := New(&buf)
	require.NoError(t, rw.WritePacket([]byte{1, 2, 3}))
	require.NoError(t, rw.WritePacket(nil))
	assert.Equal(t, []byte{3, 0, 0, 0, 1, 2, 3, 0, 0, 0, 0}, buf.Bytes())

	pkt, err := rw.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, pkt)
	pkt, err = rw.ReadPacket()
	require.NoError(t, err)
	assert.Empty(t, pkt)
	_, err = rw.ReadPacket()
	require.ErrorIs(t, err, io.EOF)
	require.NoError(t, rw.Close())
}

func TestReadWriterErrors(t *testing.T) {
	var buf bytes.Buffer
	rw := New(&buf)
	rw.MaxSize = 4
	binary.Write(&buf, binary.LittleEndian, uint32(5))
	_, err := rw.ReadPacket()
	var sizeErr *SizeError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, uint32(5), sizeErr.Size)

	buf.Reset()
	buf.Write([]byte{2, 0, 0, 0, 1})
	_, err = rw.ReadPacket()
	require.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestReadWriterConn(t *testing.T) {
	a, b := net.Pipe()
	ra, rb := New(a), New(b)
	go ra.WritePacket([]byte{9, 8})
	pkt, err := rb.ReadPacket()
	require.NoError(t, err)
	assert.Equal(t, []byte{9, 8}, pkt)
	require.NoError(t, ra.Close())
	_, err = rb.ReadPacket()
	require.ErrorIs(t, err, io.EOF)
}
