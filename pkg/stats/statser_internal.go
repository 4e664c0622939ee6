package stats

import (
	"time"

	"github.com/jc2k/cwstatsd"
)

// InternalStatser is a Statser which records metrics about this process into
// a cwstatsd.Recorder, normally the same aggregator that receives metrics
// from the network, so they are published alongside them.
//
// Record is called synchronously, so methods must not be called while
// holding a lock the Recorder also takes.
type InternalStatser struct {
	flushNotifier

	namespace string
	recorder  cwstatsd.Recorder
}

// NewInternalStatser creates a new Statser which sends metrics to the
// supplied Recorder.  Every metric name is prefixed with namespace if it is not empty.
func NewInternalStatser(namespace string, recorder cwstatsd.Recorder) *InternalStatser {
	return &InternalStatser{
		namespace: namespace,
		recorder:  recorder,
	}
}

// Gauge sends a gauge metric
func (is *InternalStatser) Gauge(name string, value float64) {
	is.record(name, value, cwstatsd.GAUGE)
}

// Count sends a counter metric
func (is *InternalStatser) Count(name string, amount float64) {
	is.record(name, amount, cwstatsd.COUNTER)
}

// Increment sends a counter metric with a value of 1
func (is *InternalStatser) Increment(name string) {
	is.Count(name, 1)
}

// TimingMS sends a timing metric from a millisecond value
func (is *InternalStatser) TimingMS(name string, ms float64) {
	is.record(name, ms, cwstatsd.TIMER)
}

// TimingDuration sends a timing metric from a time.Duration
func (is *InternalStatser) TimingDuration(name string, d time.Duration) {
	is.TimingMS(name, float64(d)/float64(time.Millisecond))
}

// NewTimer returns a new timer with time set to now
func (is *InternalStatser) NewTimer(name string) *Timer {
	return newTimer(is, name)
}

func (is *InternalStatser) record(name string, value float64, mt cwstatsd.MetricType) {
	if is.namespace != "" {
		name = is.namespace + "." + name
	}
	// A type mismatch with an external metric of the same name is dropped, the aggregator counts it.
	_ = is.recorder.Record(&cwstatsd.Metric{
		Name:      name,
		Value:     value,
		Rate:      1,
		Type:      mt,
		Timestamp: cwstatsd.NanoNow(),
	})
}
