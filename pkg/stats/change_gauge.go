package stats

import (
	"sync/atomic"
)

// repeatCount is how many times to send the gauge once it changes, so a single failed publish doesn't lose it.
const repeatCount = 3

// ChangeGauge sends a gauge for a rare event, multiple times.  It is intended for values that
// don't change in the majority of cases, such as whether the last publish failed.  It isn't
// suitable for values which are constantly changing.
type ChangeGauge struct {
	// Cur is the last value expected to be sent.  If this is changed, SendIfChanged will send the value for
	// repeatCount flush intervals.  Cur is read atomically by SendIfChanged.
	Cur uint64 // atomic

	prev    uint64
	pending uint64 // number of times to re-send
}

// SendIfChanged sends Cur if it has changed within the last repeatCount calls.  It is not safe for concurrent use.
func (cg *ChangeGauge) SendIfChanged(statser Statser, metricName string) {
	v := atomic.LoadUint64(&cg.Cur)
	if v != cg.prev {
		cg.prev = v
		cg.pending = repeatCount
	}
	if cg.pending > 0 {
		cg.pending--
		statser.Gauge(metricName, float64(v))
	}
}
