package mqtt

import (
	"context"
	"io"
	"sync"
)

// Topic suffixes of a link, relative to the link ID.
const (
	// TopicRX carries packets received from the device.
	TopicRX = "rx"
	// TopicTX carries packets to be sent to the device.
	TopicTX = "tx"
	// TopicStats carries link counter snapshots.
	TopicStats = "stats"
	// TopicMeta carries the retained link description.
	TopicMeta = "meta"
)

// LinkTopic returns the topic of a link.
func LinkTopic(id, suffix string) string {
	return id + "/" + suffix
}

// ReadWriter implements PacketReadWriter.
type ReadWriter struct {
	Queue    *Queue
	SubTopic string
	PubTopic string

	packetCh  chan []byte
	doneCh    chan struct{}
	sub       *Subscription
	startOnce sync.Once
	closeOnce sync.Once
}

// DefaultBacklog is the number of received packets buffered for ReadPacket.
const DefaultBacklog = 16

// NewPacketReadWriter creates the ReadWriter.
func NewPacketReadWriter(q *Queue) *ReadWriter {
	return &ReadWriter{
		Queue:    q,
		packetCh: make(chan []byte, DefaultBacklog),
		doneCh:   make(chan struct{}),
	}
}

// WithTopics specifies the topics.
func (p *ReadWriter) WithTopics(sub, pub string) *ReadWriter {
	p.SubTopic, p.PubTopic = sub, pub
	return p
}

// ForBridge sets topics using the convention for the host owning the
// device: SubTopic = id/tx, PubTopic = id/rx.
func (p *ReadWriter) ForBridge(id string) *ReadWriter {
	return p.WithTopics(LinkTopic(id, TopicTX), LinkTopic(id, TopicRX))
}

// ForClient sets topics using the convention for a remote peer of the
// device: SubTopic = id/rx, PubTopic = id/tx.
func (p *ReadWriter) ForClient(id string) *ReadWriter {
	return p.WithTopics(LinkTopic(id, TopicRX), LinkTopic(id, TopicTX))
}

// Start subscribes SubTopic. It's called by ReadPacket and Run if needed.
func (p *ReadWriter) Start() {
	p.startOnce.Do(func() {
		p.sub = p.Queue.Sub(p.SubTopic, p.handleMsg)
	})
}

// ReadPacket implements PacketReader.
func (p *ReadWriter) ReadPacket() ([]byte, error) {
	p.Start()
	select {
	case pkt := <-p.packetCh:
		return pkt, nil
	case <-p.doneCh:
		return nil, io.EOF
	}
}

// WritePacket implements PacketWriter.
func (p *ReadWriter) WritePacket(pkt []byte) error {
	select {
	case <-p.doneCh:
		return io.ErrClosedPipe
	default:
	}
	token := p.Queue.Pub(p.PubTopic, pkt)
	token.Wait()
	return token.Error()
}

// Run implements Runnable.
func (p *ReadWriter) Run(ctx context.Context) error {
	p.Start()
	select {
	case <-ctx.Done():
		p.Close()
		return ctx.Err()
	case <-p.doneCh:
		return nil
	}
}

// Close implements io.Closer. It unsubscribes and ends ReadPacket.
func (p *ReadWriter) Close() (err error) {
	p.closeOnce.Do(func() {
		// no subscription after Close.
		p.startOnce.Do(func() {})
		close(p.doneCh)
		if p.sub != nil {
			err = p.sub.Close()
		}
	})
	return
}

func (p *ReadWriter) handleMsg(_ string, payload []byte) {
	select {
	case p.packetCh <- payload:
	case <-p.doneCh:
	}
}
