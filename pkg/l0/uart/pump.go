package uart

import (
	"context"
	"errors"
	"io"

	"github.com/golang/glog"
	"golang.org/x/sync/errgroup"
)

// DefaultChunkSize is the max number of bytes moved per read or write.
const DefaultChunkSize = 64

// RunTx fires TX events while armed and writes the produced bytes to w.
func (p *Port) RunTx(ctx context.Context, w io.Writer) error {
	buf := make([]byte, 0, DefaultChunkSize)
	for {
		if !p.txArmed.Load() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-p.txWakeCh:
			}
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		buf = p.Drain(buf[:0], cap(buf))
		if len(buf) == 0 {
			continue
		}
		glog.V(4).Infof("uart: TX % x", buf)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
}

// RunRx reads from r and raises one RX event per byte. It returns nil when
// r reaches EOF.
func (p *Port) RunRx(ctx context.Context, r io.Reader) error {
	chunkCh, errCh := make(chan []byte), make(chan error, 1)
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readLoop(subCtx, r, chunkCh, errCh)
	for {
		select {
		case chunk := <-chunkCh:
			glog.V(4).Infof("uart: RX % x", chunk)
			for _, b := range chunk {
				p.Receive(b, 0)
			}
		case err := <-errCh:
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func readLoop(ctx context.Context, r io.Reader, chunkCh chan []byte, errCh chan error) {
	for {
		buf := make([]byte, DefaultChunkSize)
		n, err := r.Read(buf)
		if n > 0 {
			select {
			case chunkCh <- buf[:n]:
			case <-ctx.Done():
				return
			}
		}
		if err != nil {
			errCh <- err
			return
		}
	}
}

// Run pumps both directions over rw until ctx is done, the peer closes or
// either side fails. It doesn't close rw, and a pump blocked in rw returns
// only once rw is closed.
func (p *Port) Run(ctx context.Context, rw io.ReadWriter) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.RunTx(ctx, rw) })
	g.Go(func() error {
		if err := p.RunRx(ctx, rw); err != nil {
			return err
		}
		glog.Info("uart: peer closed")
		return io.EOF
	})
	err := g.Wait()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// Loopback returns a stream which reads back what is written to it.
func Loopback() io.ReadWriteCloser {
	r, w := io.Pipe()
	return &loopback{PipeReader: r, PipeWriter: w}
}

type loopback struct {
	*io.PipeReader
	*io.PipeWriter
}

// Close ends the stream: reads return io.EOF once drained, writes fail.
func (l *loopback) Close() error {
	return l.PipeWriter.Close()
}

