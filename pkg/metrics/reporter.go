package metrics

import (
	"context"
	"time"

	"github.com/golang/glog"
)

// DefaultReportInterval is the default period of a Reporter.
const DefaultReportInterval = 5 * time.Second

// Reporter periodically publishes the counters of a link.
type Reporter struct {
	Link     string
	Source   Source
	Interval time.Duration
	Publish  func(*Report) error
}

// Run implements Runnable. A failed publish is logged and retried on the
// next tick.
func (r *Reporter) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = DefaultReportInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			report := &Report{Link: r.Link, Time: now, Stats: r.Source.Stats()}
			if err := r.Publish(report); err != nil {
				glog.Warningf("report %s: %v", r.Link, err)
			}
		}
	}
}
