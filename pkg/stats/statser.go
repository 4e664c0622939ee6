package stats

import (
	"context"
	"time"
)

// Statser is the interface for sending metrics about this process.
type Statser interface {
	// NotifyFlush is called when a flush occurs.  It signals all known subscribers.
	NotifyFlush(ctx context.Context, d time.Duration)
	// RegisterFlush returns a channel which will receive a notification after every flush, and a cleanup
	// function which should be called to signal the channel is no longer being monitored.  If the channel
	// blocks, the notification will be silently dropped.
	RegisterFlush() (ch <-chan time.Duration, unregister func())

	Gauge(name string, value float64)
	Count(name string, amount float64)
	Increment(name string)
	TimingMS(name string, ms float64)
	TimingDuration(name string, d time.Duration)
	NewTimer(name string) *Timer
}
