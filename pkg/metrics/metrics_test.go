package metrics

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robotalks/framelink/pkg/l0/frame"
)

func testLink(t *testing.T) *frame.Link {
	link, err := frame.NewLink(frame.DefaultConfig)
	require.NoError(t, err)
	return link
}

func TestCollector(t *testing.T) {
	link := testLink(t)
	require.True(t, link.TX.Send([]byte{1, 2, 3}))
	c := NewCollector("dev", SourceFunc(link.Stats.Snapshot))

	assert.Equal(t, 14, testutil.CollectAndCount(c))
	expected := `
# HELP framelink_link_tx_bytes_total Payload bytes published for transmission.
# TYPE framelink_link_tx_bytes_total counter
framelink_link_tx_bytes_total{link="dev"} 3
# HELP framelink_link_tx_packets_total Packets published for transmission.
# TYPE framelink_link_tx_packets_total counter
framelink_link_tx_packets_total{link="dev"} 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"framelink_link_tx_packets_total", "framelink_link_tx_bytes_total"))

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	require.NoError(t, reg.Register(NewCollector("other", SourceFunc(link.Stats.Snapshot))))
}

func TestReport(t *testing.T) {
	link := testLink(t)
	require.True(t, link.TX.Send([]byte{0x7e}))
	for _, b := range []byte{1, 2, 0x7e, 3} {
		link.RX.OnByteReceived(b, 0)
	}
	at := time.Date(2024, 5, 1, 12, 0, 0, 5, time.UTC)
	r := &Report{Link: "dev", Time: at, Stats: link.Stats.Snapshot()}
	assert.Equal(t, "dev tx_packets=1 tx_bytes=1 rx_noise=2", r.String())

	data, err := r.Marshal()
	require.NoError(t, err)
	decoded, err := UnmarshalReport(data)
	require.NoError(t, err)
	assert.Equal(t, "dev", decoded.Link)
	assert.True(t, at.Equal(decoded.Time))
	assert.Equal(t, r.Stats, decoded.Stats)

	_, err = UnmarshalReport([]byte{0xff})
	require.Error(t, err)
}

func TestReporter(t *testing.T) {
	link := testLink(t)
	require.True(t, link.TX.Send([]byte{1}))
	reportCh := make(chan *Report, 4)
	calls := 0
	r := &Reporter{
		Link:     "dev",
		Source:   SourceFunc(link.Stats.Snapshot),
		Interval: time.Millisecond,
		Publish: func(report *Report) error {
			calls++
			if calls == 1 {
				return errors.New("offline")
			}
			select {
			case reportCh <- report:
			default:
			}
			return nil
		},
	}
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- r.Run(ctx) }()

	select {
	case report := <-reportCh:
		assert.Equal(t, "dev", report.Link)
		assert.Equal(t, uint64(1), report.Stats.TxPackets)
		assert.False(t, report.Time.IsZero())
	case <-time.After(5 * time.Second):
		t.Fatal("no report")
	}
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)
}
