// Package stream carries packets over a byte stream such as TCP.
package stream

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// DefaultMaxSize limits the packets accepted by ReadPacket.
const DefaultMaxSize = 1 << 16

// SizeError indicates a length prefix larger than allowed.
type SizeError struct {
	Size uint32
	Max  int
}

// Error implements error.
func (e *SizeError) Error() string {
	return fmt.Sprintf("packet size %d exceeds %d", e.Size, e.Max)
}

// ReadWriter implements PacketReadWriter.
// Each packet is prefixed by 4-byte (little-endian) indicate the length.
type ReadWriter struct {
	io.ReadWriter
	MaxSize int

	writeLock sync.Mutex
}

// New creates a ReadWriter with io.ReadWriter.
func New(s io.ReadWriter) *ReadWriter {
	return &ReadWriter{ReadWriter: s, MaxSize: DefaultMaxSize}
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	var size uint32
	if err := binary.Read(p.ReadWriter, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if p.MaxSize > 0 && size > uint32(p.MaxSize) {
		return nil, &SizeError{Size: size, Max: p.MaxSize}
	}
	pkt := make([]byte, size)
	if _, err := io.ReadFull(p.ReadWriter, pkt); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return pkt, nil
}

// WritePacket implements PacketWriter. The prefix and the packet go out in
// one write.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	buf := make([]byte, 4+len(pkt))
	binary.LittleEndian.PutUint32(buf, uint32(len(pkt)))
	copy(buf[4:], pkt)
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	_, err := p.ReadWriter.Write(buf)
	return err
}

// Close closes the underlying stream if it's an io.Closer.
func (p *ReadWriter) Close() error {
	if closer, ok := p.ReadWriter.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
