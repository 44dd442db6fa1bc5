package comm

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	fx "github.com/robotalks/framelink/pkg/framework"
)

// PacketFunc observes a forwarded packet.
type PacketFunc func(dir Direction, pkt []byte)

// Pipe forwards packets between two PacketReadWriters in both directions.
type Pipe struct {
	Local  PacketReadWriter
	Remote PacketReadWriter
	// OnPacket, if set, is called before a packet is forwarded.
	OnPacket PacketFunc
	// KeepLocalOpen leaves Local open when the pipe ends, so another pipe
	// can take it over. Local must implement ContextPacketReader.
	KeepLocalOpen bool

	lock      sync.Mutex
	cancel    context.CancelFunc
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewPipe creates a Pipe.
func NewPipe(local, remote PacketReadWriter) *Pipe {
	return &Pipe{Local: local, Remote: remote}
}

// Run implements Runnable. It returns once either side ends, and closes
// both sides.
func (p *Pipe) Run(ctx context.Context) error {
	pipeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	p.lock.Lock()
	p.cancel = cancel
	p.lock.Unlock()
	if p.closed.Load() {
		cancel()
	}
	return fx.RunWithContextCloser(ctx, p, func() error {
		return fx.NewRunnerWith(pipeCtx).Go(
			fx.NamedRun("uplink", fx.RunFunc(func(ctx context.Context) error {
				return p.forward(ctx, Uplink, p.Remote, p.Local)
			})),
			fx.NamedRun("downlink", fx.RunFunc(func(ctx context.Context) error {
				return p.forward(ctx, Downlink, p.Local, p.Remote)
			})),
		).Wait()
	})
}

func (p *Pipe) forward(ctx context.Context, dir Direction, dst PacketWriter, src PacketReader) error {
	defer p.Close()
	for {
		pkt, err := ReadPacket(ctx, src)
		if err == nil {
			glog.V(4).Infof("pipe: %s % x", dir, pkt)
			if fn := p.OnPacket; fn != nil {
				fn(dir, pkt)
			}
			err = WritePacket(ctx, dst, pkt)
		}
		if err != nil {
			// the other side is closed by the pipe.
			if p.closed.Load() || errors.Is(err, io.EOF) {
				return nil
			}
			glog.Errorf("pipe: %s: %v", dir, err)
			return err
		}
	}
}

// Close implements io.Closer. It closes both sides which are io.Closer,
// except Local if KeepLocalOpen is set.
func (p *Pipe) Close() error {
	var errs fx.AggregatedError
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		p.lock.Lock()
		if p.cancel != nil {
			p.cancel()
		}
		p.lock.Unlock()
		sides := []PacketReadWriter{p.Remote}
		if !p.KeepLocalOpen {
			sides = append(sides, p.Local)
		}
		for _, rw := range sides {
			if closer, ok := rw.(io.Closer); ok {
				errs.Add(closer.Close())
			}
		}
	})
	return errs.Aggregate()
}
