package stats

import (
	"context"
)

// HeartBeater sends a counter after every flush, so an absent metric in CloudWatch means the process is down.
type HeartBeater struct {
	metricName string
}

// NewHeartBeater creates a new HeartBeater
func NewHeartBeater(metricName string) *HeartBeater {
	return &HeartBeater{
		metricName: metricName,
	}
}

// Run will run a HeartBeater in the background until the supplied context is closed.
func (hb *HeartBeater) Run(ctx context.Context) {
	statser := FromContext(ctx)
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			statser.Increment(hb.metricName)
		}
	}
}
