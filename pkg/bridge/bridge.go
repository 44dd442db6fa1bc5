// Package bridge exposes a device link to remote peers.
package bridge

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robotalks/framelink/pkg/env"
	fx "github.com/robotalks/framelink/pkg/framework"
	"github.com/robotalks/framelink/pkg/l0/comm"
	lcomm "github.com/robotalks/framelink/pkg/l1/comm"
	"github.com/robotalks/framelink/pkg/l1/comm/mqtt"
	"github.com/robotalks/framelink/pkg/l1/comm/stream"
	"github.com/robotalks/framelink/pkg/l1/comm/websocket"
	"github.com/robotalks/framelink/pkg/metrics"
)

// Bridge forwards packets between a device link and remote peers.
type Bridge struct {
	Env    *env.Config
	Config *Config
	Conn   *comm.Conn
	// Listener, if set, is used instead of listening on Config.Listen.
	Listener net.Listener
	// MetricsListener, if set, is used instead of Env.MetricsAddr.
	MetricsListener net.Listener
	Registry        *prometheus.Registry

	stream  io.ReadWriteCloser
	packets *prometheus.CounterVec
	peers   prometheus.Gauge
	busy    atomic.Bool
}

// ErrBusy indicates a peer is already attached.
var ErrBusy = errors.New("link is attached to another peer")

// NewBridge opens the device and creates the Bridge.
func (c *Config) NewBridge(conf *env.Config) (*Bridge, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	conn, s, err := conf.Open()
	if err != nil {
		return nil, err
	}
	b := &Bridge{
		Env:      conf,
		Config:   c,
		Conn:     conn,
		Registry: prometheus.NewRegistry(),
		stream:   s,
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   metrics.Namespace,
			Subsystem:   "bridge",
			Name:        "packets_total",
			Help:        "Packets forwarded by the bridge.",
			ConstLabels: prometheus.Labels{"link": conf.ID},
		}, []string{"direction"}),
		peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   metrics.Namespace,
			Subsystem:   "bridge",
			Name:        "peers",
			Help:        "Remote peers attached to the link.",
			ConstLabels: prometheus.Labels{"link": conf.ID},
		}),
	}
	b.Registry.MustRegister(metrics.NewCollector(conf.ID, conn), b.packets, b.peers)
	return b, nil
}

// Run implements Runnable. It returns when the link ends or ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	runner := fx.NewRunnerWith(ctx).StopOnExit()
	ctx = runner.Context
	runner.Go(fx.NamedRun("link", fx.RunFunc(func(ctx context.Context) error {
		return fx.RunWithContextCloser(ctx, b.stream, func() error {
			return b.Conn.Run(ctx, b.stream)
		})
	})))
	switch b.Config.Mode {
	case ModeMQTT:
		runner.Go(fx.NamedRun("mqtt", fx.RunFunc(b.runMQTT)))
	case ModeWebsocket:
		mux := http.NewServeMux()
		mux.Handle(LinkPath, websocket.Handler(func(rw *websocket.ReadWriter) {
			b.attach(ctx, rw)
		}))
		runner.Go(fx.NamedRun("ws", b.server(b.Listener, b.Config.Listen, mux)))
	case ModeTCP:
		runner.Go(fx.NamedRun("tcp", fx.RunFunc(b.runTCP)))
	}
	if b.MetricsListener != nil || b.Env.MetricsAddr != "" {
		handler := promhttp.HandlerFor(b.Registry, promhttp.HandlerOpts{})
		mux := http.NewServeMux()
		mux.Handle("/metrics", handler)
		runner.Go(fx.NamedRun("metrics", b.server(b.MetricsListener, b.Env.MetricsAddr, mux)))
	}
	return runner.Wait()
}

func (b *Bridge) pipe(remote lcomm.PacketReadWriter) *lcomm.Pipe {
	p := lcomm.NewPipe(b.Conn, remote)
	p.OnPacket = func(dir lcomm.Direction, _ []byte) {
		b.packets.WithLabelValues(dir.String()).Inc()
	}
	return p
}

// attach forwards packets with a peer until either side ends. A second
// peer is refused while one is attached.
func (b *Bridge) attach(ctx context.Context, peer lcomm.PacketReadWriter) error {
	if !b.busy.CompareAndSwap(false, true) {
		glog.Warning("bridge: peer refused, link busy")
		if closer, ok := peer.(io.Closer); ok {
			closer.Close()
		}
		return ErrBusy
	}
	defer b.busy.Store(false)
	b.peers.Inc()
	defer b.peers.Dec()
	glog.Info("bridge: peer attached")
	p := b.pipe(peer)
	p.KeepLocalOpen = true
	err := p.Run(ctx)
	glog.Infof("bridge: peer detached: %v", err)
	return err
}

func (b *Bridge) runMQTT(ctx context.Context) error {
	q, err := b.Env.NewQueue(true)
	if err != nil {
		return err
	}
	announcer, err := mqtt.NewAnnouncer(q, b.Env.LinkInfo())
	if err != nil {
		return err
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer q.Close()
	b.peers.Inc()
	defer b.peers.Dec()

	reporter := &metrics.Reporter{
		Link:     b.Env.ID,
		Source:   b.Conn,
		Interval: b.Env.StatsInterval,
		Publish: func(r *metrics.Report) error {
			data, err := r.Marshal()
			if err != nil {
				return err
			}
			token := q.Pub(mqtt.LinkTopic(b.Env.ID, mqtt.TopicStats), data)
			token.Wait()
			return token.Error()
		},
	}
	return fx.NewRunnerWith(ctx).StopOnExit().Go(
		fx.NamedRun("announce", announcer),
		fx.NamedRun("pipe", b.pipe(mqtt.NewPacketReadWriter(q).ForBridge(b.Env.ID))),
		fx.NamedRun("report", reporter),
	).Wait()
}

func (b *Bridge) listen(ln net.Listener, addr string) (net.Listener, error) {
	if ln != nil {
		return ln, nil
	}
	return net.Listen("tcp", addr)
}

func (b *Bridge) runTCP(ctx context.Context) error {
	ln, err := b.listen(b.Listener, b.Config.Listen)
	if err != nil {
		return err
	}
	glog.Infof("bridge: listening on %s", ln.Addr())
	return fx.RunWithContextCloser(ctx, ln, func() error {
		for {
			conn, err := ln.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return nil
				}
				return err
			}
			go b.attach(ctx, stream.New(conn))
		}
	})
}

// ShutdownTimeout bounds the graceful stop of HTTP servers.
const ShutdownTimeout = time.Second

func (b *Bridge) server(ln net.Listener, addr string, handler http.Handler) fx.Runnable {
	return fx.RunFunc(func(ctx context.Context) error {
		ln, err := b.listen(ln, addr)
		if err != nil {
			return err
		}
		glog.Infof("bridge: serving http on %s", ln.Addr())
		srv := &http.Server{Handler: handler}
		return fx.RunWithContextCancel(ctx, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				srv.Close()
			}
		}, func() error {
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	})
}
