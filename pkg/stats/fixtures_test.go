package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jc2k/cwstatsd"
)

type countingStatser struct {
	gauges   uint64
	counters uint64
	timers   uint64
}

func (cs *countingStatser) NotifyFlush(ctx context.Context, d time.Duration) {}

func (cs *countingStatser) RegisterFlush() (ch <-chan time.Duration, unregister func()) {
	return nil, func() {}
}

func (cs *countingStatser) Gauge(name string, value float64) {
	atomic.AddUint64(&cs.gauges, 1)
}

func (cs *countingStatser) Count(name string, amount float64) {
	atomic.AddUint64(&cs.counters, 1)
}

func (cs *countingStatser) Increment(name string) {
	atomic.AddUint64(&cs.counters, 1)
}

func (cs *countingStatser) TimingMS(name string, ms float64) {
	atomic.AddUint64(&cs.timers, 1)
}

func (cs *countingStatser) TimingDuration(name string, d time.Duration) {
	atomic.AddUint64(&cs.timers, 1)
}

func (cs *countingStatser) NewTimer(name string) *Timer {
	return newTimer(cs, name)
}

type capturingRecorder struct {
	mu      sync.Mutex
	metrics []*cwstatsd.Metric
}

func (cr *capturingRecorder) Record(m *cwstatsd.Metric) error {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	cr.metrics = append(cr.metrics, m)
	return nil
}

func (cr *capturingRecorder) Metrics() []*cwstatsd.Metric {
	cr.mu.Lock()
	defer cr.mu.Unlock()
	return append([]*cwstatsd.Metric(nil), cr.metrics...)
}
