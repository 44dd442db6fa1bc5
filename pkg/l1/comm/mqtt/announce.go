package mqtt

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"
)

// LinkInfo describes a bridged link. It's retained on id/meta while the
// bridge is connected.
type LinkInfo struct {
	ID      string `json:"id"`
	Device  string `json:"device"`
	BufSize int    `json:"buf_size"`
	Slots   int    `json:"slots"`
}

// SetMetaWill makes the broker clear the link description when the bridge
// disconnects unexpectedly. It must be applied to the options before the
// Queue is created.
func SetMetaWill(opts *paho.ClientOptions, topicPrefix, id string) {
	opts.SetBinaryWill(topicPrefix+LinkTopic(id, TopicMeta), nil, 1, true)
}

// Announcer keeps the link description published.
type Announcer struct {
	Queue *Queue
	Info  LinkInfo

	meta []byte
}

// NewAnnouncer creates an Announcer which publishes on every (re)connect.
func NewAnnouncer(q *Queue, info LinkInfo) (*Announcer, error) {
	meta, err := json.Marshal(&info)
	if err != nil {
		return nil, err
	}
	a := &Announcer{Queue: q, Info: info, meta: meta}
	prev := q.OnConnect
	q.OnConnect = func(q *Queue) {
		if prev != nil {
			prev(q)
		}
		a.Publish()
	}
	return a, nil
}

// Publish publishes the retained link description.
func (a *Announcer) Publish() paho.Token {
	glog.V(2).Infof("mqtt: announce %s", a.Info.ID)
	return a.Queue.PubWith(LinkTopic(a.Info.ID, TopicMeta), a.meta, 1, true)
}

// Withdraw clears the retained link description.
func (a *Announcer) Withdraw() paho.Token {
	return a.Queue.PubWith(LinkTopic(a.Info.ID, TopicMeta), nil, 1, true)
}

// Run implements Runnable. The description is withdrawn when ctx is done.
func (a *Announcer) Run(ctx context.Context) error {
	if a.Queue.Client.IsConnected() {
		a.Publish()
	}
	<-ctx.Done()
	token := a.Withdraw()
	token.WaitTimeout(time.Second)
	return ctx.Err()
}

// DefaultDiscoverTimeout defines the default timeout value of discovery.
const DefaultDiscoverTimeout = 500 * time.Millisecond

// Discover collects the links announced on the broker. The Queue must be
// connected.
func Discover(ctx context.Context, q *Queue, timeout time.Duration) ([]LinkInfo, error) {
	if timeout == 0 {
		timeout = DefaultDiscoverTimeout
	}
	infoCh := make(chan LinkInfo, 1)
	sub := q.Sub("+/"+TopicMeta, func(topic string, payload []byte) {
		if len(payload) == 0 {
			return
		}
		var info LinkInfo
		if err := json.Unmarshal(payload, &info); err != nil {
			glog.Warningf("mqtt: invalid meta on %s: %v", topic, err)
			return
		}
		if info.ID == "" {
			info.ID = strings.TrimSuffix(topic, "/"+TopicMeta)
		}
		select {
		case infoCh <- info:
		case <-time.After(timeout):
		}
	})
	defer sub.Close()

	var infos []LinkInfo
	expire := time.After(timeout)
	for {
		select {
		case info := <-infoCh:
			infos = append(infos, info)
		case <-expire:
			return infos, nil
		case <-ctx.Done():
			return infos, ctx.Err()
		}
	}
}
