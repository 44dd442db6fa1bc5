package sh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/framelink/pkg/env"
	"github.com/robotalks/framelink/pkg/l0/comm"
	"github.com/robotalks/framelink/pkg/l0/frame"
	"github.com/robotalks/framelink/pkg/l1/comm/mqtt"
	"github.com/robotalks/framelink/pkg/metrics"
)

// ErrRemote indicates the operation requires a local link.
var ErrRemote = errors.New("not available on a remote link")

// ErrNoStats indicates no stats report is received yet.
var ErrNoStats = errors.New("no stats received")

// Session is an opened link: either a local device driven by a Conn, or a
// remote link reached through its bridge on MQTT.
type Session struct {
	Name string
	// Conn is nil for a remote link.
	Conn *comm.Conn

	remote   *mqtt.ReadWriter
	statsSub *mqtt.Subscription
	pktCh    chan []byte
	report   *metrics.Report
	lock     sync.Mutex
	cancel   func()
	closer   io.Closer
	doneCh   chan struct{}
}

// RemoteBacklog is the number of packets buffered from a remote link.
const RemoteBacklog = 256

// OpenLocal opens the device of the config and runs the link.
func OpenLocal(conf *env.Config) (*Session, error) {
	conn, stream, err := conf.Open()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		Name:   conf.Device,
		Conn:   conn,
		cancel: cancel,
		closer: stream,
		doneCh: make(chan struct{}),
	}
	go func() {
		defer close(s.doneCh)
		if err := conn.Run(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
			glog.Errorf("link %s: %v", s.Name, err)
		}
	}()
	return s, nil
}

// OpenRemote attaches to a bridged link. The Queue must be connected.
func OpenRemote(q *mqtt.Queue, id string) *Session {
	s := &Session{
		Name:   id,
		remote: mqtt.NewPacketReadWriter(q).ForClient(id),
		pktCh:  make(chan []byte, RemoteBacklog),
		doneCh: make(chan struct{}),
	}
	s.statsSub = q.Sub(mqtt.LinkTopic(id, mqtt.TopicStats), s.handleStats)
	s.remote.Start()
	go s.receive()
	return s
}

func (s *Session) receive() {
	defer close(s.doneCh)
	for {
		pkt, err := s.remote.ReadPacket()
		if err != nil {
			return
		}
		select {
		case s.pktCh <- pkt:
		default:
			glog.Warningf("link %s: backlog full, packet dropped", s.Name)
		}
	}
}

func (s *Session) handleStats(topic string, payload []byte) {
	r, err := metrics.UnmarshalReport(payload)
	if err != nil {
		glog.Warningf("%s: invalid stats: %v", topic, err)
		return
	}
	s.lock.Lock()
	s.report = r
	s.lock.Unlock()
}

// IsLocal tells if the link is driven locally.
func (s *Session) IsLocal() bool {
	return s.Conn != nil
}

// Send queues a packet.
func (s *Session) Send(pkt []byte) error {
	if s.IsLocal() {
		return s.Conn.Send(pkt)
	}
	return s.remote.WritePacket(pkt)
}

// SendWith builds a packet in place.
func (s *Session) SendWith(build func(tx *frame.TX)) error {
	if !s.IsLocal() {
		return ErrRemote
	}
	return s.Conn.SendWith(build)
}

// Recv waits for the next packet.
func (s *Session) Recv(ctx context.Context) ([]byte, error) {
	if s.IsLocal() {
		return s.Conn.ReadPacketContext(ctx)
	}
	select {
	case pkt := <-s.pktCh:
		return pkt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Pending returns the number of packets ready to read.
func (s *Session) Pending() int {
	if s.IsLocal() {
		return s.Conn.Pending()
	}
	return len(s.pktCh)
}

// Report returns the link counters. A remote link reports the last stats
// published by its bridge.
func (s *Session) Report() (*metrics.Report, error) {
	if s.IsLocal() {
		return &metrics.Report{Link: s.Name, Time: time.Now(), Stats: s.Conn.Stats()}, nil
	}
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.report == nil {
		return nil, ErrNoStats
	}
	return s.report, nil
}

// Reset resets the link.
func (s *Session) Reset() error {
	if !s.IsLocal() {
		return ErrRemote
	}
	s.Conn.Reset()
	return nil
}

// Close closes the session.
func (s *Session) Close() error {
	if s.IsLocal() {
		s.cancel()
		err := s.closer.Close()
		<-s.doneCh
		return err
	}
	var err error
	if s.statsSub != nil {
		err = s.statsSub.Close()
	}
	if e := s.remote.Close(); e != nil {
		err = e
	}
	<-s.doneCh
	return err
}

// String implements Stringer.
func (s *Session) String() string {
	if s.IsLocal() {
		return fmt.Sprintf("local %s", s.Name)
	}
	return fmt.Sprintf("remote %s", s.Name)
}
