package comm

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/golang/glog"

	fx "github.com/robotalks/framelink/pkg/framework"
	"github.com/robotalks/framelink/pkg/l0/frame"
	"github.com/robotalks/framelink/pkg/l0/uart"
)

// PacketHandler is called when a packet is received.
type PacketHandler interface {
	HandlePacket(context.Context, []byte)
}

// HandlePacketFunc is func type of PacketHandler.
type HandlePacketFunc func(context.Context, []byte)

// HandlePacket implements PacketHandler.
func (f HandlePacketFunc) HandlePacket(ctx context.Context, pkt []byte) {
	f(ctx, pkt)
}

// Conn sends and receives packets over a frame.Link.
type Conn struct {
	// Handler, if set, gets all received packets while Run is active.
	// ReadPacket must not be used then.
	Handler PacketHandler

	port *uart.Port
	link *frame.Link

	txLock    sync.Mutex
	rxLock    sync.Mutex
	closeOnce sync.Once
	closedCh  chan struct{}
}

// New creates a Conn with a new link.
func New(cfg frame.Config) (*Conn, error) {
	link, err := frame.NewLink(cfg)
	if err != nil {
		return nil, err
	}
	return NewConn(uart.New(link)), nil
}

// NewConn creates a Conn on a port.
func NewConn(port *uart.Port) *Conn {
	return &Conn{
		port:     port,
		link:     port.Link(),
		closedCh: make(chan struct{}),
	}
}

// Port returns the underlying port.
func (c *Conn) Port() *uart.Port {
	return c.port
}

// MaxPacketSize is the largest payload a packet can carry.
func (c *Conn) MaxPacketSize() int {
	return c.link.Config().BufSize - 1
}

// Stats copies the link counters.
func (c *Conn) Stats() frame.StatsSnapshot {
	return c.link.Stats.Snapshot()
}

func (c *Conn) closed() bool {
	select {
	case <-c.closedCh:
		return true
	default:
		return false
	}
}

func (c *Conn) checkSize(n int) error {
	if max := c.MaxPacketSize(); n > max {
		return &TooLargeError{Size: n, Max: max}
	}
	return nil
}

// Send queues a packet, or drops it if the outbound ring is full.
func (c *Conn) Send(pkt []byte) error {
	if c.closed() {
		return ErrClosed
	}
	if err := c.checkSize(len(pkt)); err != nil {
		return err
	}
	c.txLock.Lock()
	defer c.txLock.Unlock()
	if !c.link.TX.Send(pkt) {
		glog.V(3).Infof("comm: dropped %d bytes", len(pkt))
		return ErrDropped
	}
	return nil
}

// SendWith builds a packet in place. build appends the payload to tx
// between Start and Done.
func (c *Conn) SendWith(build func(tx *frame.TX)) error {
	if c.closed() {
		return ErrClosed
	}
	c.txLock.Lock()
	defer c.txLock.Unlock()
	tx := c.link.TX
	tx.Start()
	if tx.Open() {
		build(tx)
	}
	if !tx.Open() {
		glog.V(3).Info("comm: dropped packet being built")
		return ErrDropped
	}
	tx.Done()
	return nil
}

// WritePacket queues a packet, waiting for room in the outbound ring.
func (c *Conn) WritePacket(pkt []byte) error {
	return c.WritePacketContext(context.Background(), pkt)
}

// WritePacketContext is WritePacket which gives up when ctx is done.
func (c *Conn) WritePacketContext(ctx context.Context, pkt []byte) error {
	if err := c.checkSize(len(pkt)); err != nil {
		return err
	}
	for {
		if c.closed() {
			return ErrClosed
		}
		if c.trySend(pkt) {
			return nil
		}
		select {
		case <-c.port.TxIdle():
		case <-c.closedCh:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) trySend(pkt []byte) bool {
	c.txLock.Lock()
	defer c.txLock.Unlock()
	tx := c.link.TX
	if tx.Space() == 0 || tx.Available() < len(pkt) {
		return false
	}
	return tx.Send(pkt)
}

// TryReadPacket returns the oldest received packet if any.
func (c *Conn) TryReadPacket() ([]byte, bool) {
	c.rxLock.Lock()
	defer c.rxLock.Unlock()
	return c.link.RX.Next()
}

// Pending returns the number of received packets not read yet.
func (c *Conn) Pending() int {
	return c.link.RX.RecvCount()
}

// ReadPacket waits for a packet. Packets received before Close are still
// returned, and then ErrClosed.
func (c *Conn) ReadPacket() ([]byte, error) {
	return c.ReadPacketContext(context.Background())
}

// ReadPacketContext is ReadPacket which gives up when ctx is done.
func (c *Conn) ReadPacketContext(ctx context.Context) ([]byte, error) {
	for {
		if pkt, ok := c.TryReadPacket(); ok {
			return pkt, nil
		}
		select {
		case <-c.port.RxReady():
		case <-c.closedCh:
			if pkt, ok := c.TryReadPacket(); ok {
				return pkt, nil
			}
			return nil, ErrClosed
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Reset flushes both directions. A packet being sent is aborted on the
// wire, and a packet being received is discarded.
func (c *Conn) Reset() {
	c.txLock.Lock()
	c.rxLock.Lock()
	c.link.TX.Reset()
	c.link.RX.Reset()
	c.rxLock.Unlock()
	c.txLock.Unlock()
	glog.Info("comm: link reset")
}

// Close stops sending and wakes up readers. It doesn't close the stream
// given to Run.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() { close(c.closedCh) })
	return nil
}

// Run pumps the link over rw and dispatches received packets to Handler.
// The Conn is closed when Run returns.
func (c *Conn) Run(ctx context.Context, rw io.ReadWriter) error {
	runner := fx.NewRunnerWith(ctx).StopOnExit()
	runner.Go(fx.NamedRun("uart", fx.RunFunc(func(ctx context.Context) error {
		defer c.Close()
		return c.port.Run(ctx, rw)
	})))
	if c.Handler != nil {
		runner.Go(fx.NamedRun("dispatch", fx.RunFunc(c.dispatch)))
	}
	return runner.Wait()
}

func (c *Conn) dispatch(ctx context.Context) error {
	for {
		pkt, err := c.ReadPacketContext(ctx)
		if errors.Is(err, ErrClosed) {
			return nil
		}
		if err != nil {
			return err
		}
		glog.V(4).Infof("comm: received % x", pkt)
		c.Handler.HandlePacket(ctx, pkt)
	}
}
