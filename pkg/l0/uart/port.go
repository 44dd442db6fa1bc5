// Package uart simulates the serial port of a microcontroller on a host.
//
// A Port owns the interrupt state of a frame.Link: the TX-ready source can
// be armed and disarmed, and each source has a lock held while its handler
// runs so masking a source holds its handler off. Handlers run either one
// event at a time (FireTx, Receive) or from goroutine pumps over an
// io.ReadWriter.
package uart

import (
	"sync"
	"sync/atomic"

	"github.com/robotalks/framelink/pkg/l0/frame"
)

// Port is a simulated UART bound to a frame.Link.
type Port struct {
	link *frame.Link

	txArmed atomic.Bool
	txLock  sync.Mutex
	rxLock  sync.Mutex

	txWakeCh  chan struct{}
	txIdleCh  chan struct{}
	rxReadyCh chan struct{}
}

// New creates a Port and attaches it to the link.
func New(link *frame.Link) *Port {
	p := &Port{
		link:      link,
		txWakeCh:  make(chan struct{}, 1),
		txIdleCh:  make(chan struct{}, 1),
		rxReadyCh: make(chan struct{}, 1),
	}
	link.Attach(p)
	return p
}

// Link returns the link driven by the port.
func (p *Port) Link() *frame.Link {
	return p.link
}

// ArmTx implements frame.Transport.
// It waits for a running TX handler so the handler can't disarm right after
// a packet is published.
func (p *Port) ArmTx() {
	p.txLock.Lock()
	p.txArmed.Store(true)
	p.txLock.Unlock()
	notify(p.txWakeCh)
}

// DisarmTx implements frame.Transport. It's called by the TX handler.
func (p *Port) DisarmTx() {
	p.txArmed.Store(false)
	notify(p.txIdleCh)
}

// MaskTx implements frame.Masker.
func (p *Port) MaskTx() func() {
	p.txLock.Lock()
	return p.txLock.Unlock
}

// MaskRx implements frame.Masker.
func (p *Port) MaskRx() func() {
	p.rxLock.Lock()
	return p.rxLock.Unlock
}

// TxArmed tells if the TX-ready source is enabled.
func (p *Port) TxArmed() bool {
	return p.txArmed.Load()
}

// FireTx raises one TX-ready event. It returns false if the source is
// disarmed or the handler has nothing to send.
func (p *Port) FireTx() (byte, bool) {
	p.txLock.Lock()
	defer p.txLock.Unlock()
	if !p.txArmed.Load() {
		return 0, false
	}
	return p.link.TX.OnByteReady()
}

// Drain fires TX events until the source is disarmed or max bytes are
// produced, and appends the bytes to dst.
func (p *Port) Drain(dst []byte, max int) []byte {
	for n := 0; n < max; n++ {
		b, ok := p.FireTx()
		if !ok {
			break
		}
		dst = append(dst, b)
	}
	return dst
}

// Receive raises one RX event with a byte and its error flags.
func (p *Port) Receive(b byte, flags frame.ErrorFlags) {
	p.rxLock.Lock()
	p.link.RX.OnByteReceived(b, flags)
	ready := p.link.RX.RecvCount() > 0
	p.rxLock.Unlock()
	if ready {
		notify(p.rxReadyCh)
	}
}

// TxIdle is signaled when the TX handler runs out of packets.
// A signal may be stale: check TxArmed.
func (p *Port) TxIdle() <-chan struct{} {
	return p.txIdleCh
}

// RxReady is signaled after a byte is received while packets are queued.
// A signal may be stale: check RX.RecvCount.
func (p *Port) RxReady() <-chan struct{} {
	return p.rxReadyCh
}

// Stats copies the link counters.
func (p *Port) Stats() frame.StatsSnapshot {
	return p.link.Stats.Snapshot()
}

func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
