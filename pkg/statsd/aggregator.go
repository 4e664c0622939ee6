package statsd

import (
	"context"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/stats"
)

type counterBucket struct {
	value float64 // sum of value/rate
}

type gaugeBucket struct {
	value     float64
	timestamp cwstatsd.Nanotime // last update, used for expiry
}

type timerBucket struct {
	values       []float64
	sampledCount float64 // sum of 1/rate
}

type setBucket struct {
	members map[string]struct{}
}

// AggregatorStats holds statistics for a MetricAggregator.
type AggregatorStats struct {
	Recorded       uint64
	TypeMismatches uint64
	GaugesExpired  uint64
	Snapshots      uint64
}

// MetricAggregator folds metrics into per-name buckets and produces Snapshots.  It is safe for concurrent
// use, Record and Snapshot are serialised by a single mutex so every recorded metric lands in exactly one
// Snapshot.
type MetricAggregator struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	recorded       uint64
	typeMismatches uint64
	gaugesExpired  uint64
	snapshots      uint64

	percentThresholds   []float64
	percentNames        []string
	expiryIntervalGauge time.Duration    // How long before an idle gauge stops being published, 0 to keep forever
	now                 func() time.Time // Returns current time. Useful for testing.

	mu           sync.Mutex
	types        map[string]cwstatsd.MetricType
	counters     map[string]*counterBucket
	gauges       map[string]*gaugeBucket
	timers       map[string]*timerBucket
	sets         map[string]*setBucket
	lastSnapshot time.Time
}

// NewMetricAggregator creates a new MetricAggregator.  percentThresholds must each be in (0, 100].
func NewMetricAggregator(percentThresholds []float64, expiryIntervalGauge time.Duration) *MetricAggregator {
	return newMetricAggregator(percentThresholds, expiryIntervalGauge, time.Now)
}

func newMetricAggregator(percentThresholds []float64, expiryIntervalGauge time.Duration, now func() time.Time) *MetricAggregator {
	a := &MetricAggregator{
		percentThresholds:   append([]float64(nil), percentThresholds...),
		percentNames:        make([]string, len(percentThresholds)),
		expiryIntervalGauge: expiryIntervalGauge,
		now:                 now,
		types:               map[string]cwstatsd.MetricType{},
		counters:            map[string]*counterBucket{},
		gauges:              map[string]*gaugeBucket{},
		timers:              map[string]*timerBucket{},
		sets:                map[string]*setBucket{},
		lastSnapshot:        now(),
	}
	for i, pct := range a.percentThresholds {
		a.percentNames[i] = PercentileName(pct)
	}
	return a
}

// Record folds m into the bucket for its name.  If a bucket of a different type already exists
// for the name, m is discarded and a *cwstatsd.TypeMismatchError is returned.
func (a *MetricAggregator) Record(m *cwstatsd.Metric) error {
	rate := m.Rate
	if rate <= 0 {
		rate = 1
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if existing, ok := a.types[m.Name]; ok && existing != m.Type {
		atomic.AddUint64(&a.typeMismatches, 1)
		return &cwstatsd.TypeMismatchError{
			Name:     m.Name,
			Existing: existing,
			Received: m.Type,
		}
	}

	switch m.Type {
	case cwstatsd.COUNTER:
		c, ok := a.counters[m.Name]
		if !ok {
			c = &counterBucket{}
			a.counters[m.Name] = c
		}
		c.value += m.Value / rate
	case cwstatsd.GAUGE:
		g, ok := a.gauges[m.Name]
		if !ok {
			g = &gaugeBucket{}
			a.gauges[m.Name] = g
		}
		if m.GaugeDelta {
			g.value += m.Value
		} else {
			g.value = m.Value
		}
		g.timestamp = m.Timestamp
		if g.timestamp == 0 {
			g.timestamp = cwstatsd.Nanotime(a.now().UnixNano())
		}
	case cwstatsd.TIMER:
		t, ok := a.timers[m.Name]
		if !ok {
			t = &timerBucket{}
			a.timers[m.Name] = t
		}
		t.values = append(t.values, m.Value)
		t.sampledCount += 1 / rate
	case cwstatsd.SET:
		s, ok := a.sets[m.Name]
		if !ok {
			s = &setBucket{members: map[string]struct{}{}}
			a.sets[m.Name] = s
		}
		s.members[m.StringValue] = struct{}{}
	default:
		return nil
	}
	a.types[m.Name] = m.Type
	atomic.AddUint64(&a.recorded, 1)
	return nil
}

// Snapshot closes the current window and returns its published values.  Counter, timer and set buckets
// are removed, so a name with no metrics in the next window is omitted from the next Snapshot.  Gauges
// keep their value until they expire or are deleted.
func (a *MetricAggregator) Snapshot() *cwstatsd.Snapshot {
	a.mu.Lock()
	now := a.now()
	interval := now.Sub(a.lastSnapshot)
	a.lastSnapshot = now

	counters, timers, sets := a.counters, a.timers, a.sets
	a.counters = make(map[string]*counterBucket, len(counters))
	a.timers = make(map[string]*timerBucket, len(timers))
	a.sets = make(map[string]*setBucket, len(sets))
	for name := range counters {
		delete(a.types, name)
	}
	for name := range timers {
		delete(a.types, name)
	}
	for name := range sets {
		delete(a.types, name)
	}

	snapshot := cwstatsd.NewSnapshot(now, interval)
	nowNano := cwstatsd.Nanotime(now.UnixNano())
	for name, g := range a.gauges {
		if isExpired(a.expiryIntervalGauge, nowNano, g.timestamp) {
			delete(a.gauges, name)
			delete(a.types, name)
			atomic.AddUint64(&a.gaugesExpired, 1)
			continue
		}
		snapshot.Gauges[name] = cwstatsd.Gauge{
			Value:     g.value,
			Timestamp: g.timestamp,
		}
	}
	a.mu.Unlock()

	// The detached buckets are owned by this goroutine now.
	flushInSeconds := interval.Seconds()
	for name, c := range counters {
		snapshot.Counters[name] = cwstatsd.Counter{
			Value:     c.value,
			PerSecond: perSecond(c.value, flushInSeconds),
		}
	}
	for name, t := range timers {
		snapshot.Timers[name] = a.summariseTimer(t, flushInSeconds)
	}
	for name, s := range sets {
		snapshot.Sets[name] = cwstatsd.Set{
			Cardinality: len(s.members),
		}
	}
	atomic.AddUint64(&a.snapshots, 1)
	return snapshot
}

// DeleteGauge removes a gauge so it is no longer published.  Returns false if there was no such gauge.
func (a *MetricAggregator) DeleteGauge(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.gauges[name]; !ok {
		return false
	}
	delete(a.gauges, name)
	delete(a.types, name)
	return true
}

// Stats returns current aggregator stats. Safe for concurrent use.
func (a *MetricAggregator) Stats() AggregatorStats {
	return AggregatorStats{
		Recorded:       atomic.LoadUint64(&a.recorded),
		TypeMismatches: atomic.LoadUint64(&a.typeMismatches),
		GaugesExpired:  atomic.LoadUint64(&a.gaugesExpired),
		Snapshots:      atomic.LoadUint64(&a.snapshots),
	}
}

func (a *MetricAggregator) bucketCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.types)
}

// RunMetrics emits aggregator metrics after every flush until ctx is done.  The statser may record
// into this aggregator, so nothing is emitted while holding the lock.
func (a *MetricAggregator) RunMetrics(ctx context.Context, statser stats.Statser) {
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	var prev AggregatorStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			cur := a.Stats()
			statser.Count("aggregator.metrics_recorded", float64(cur.Recorded-prev.Recorded))
			statser.Count("aggregator.type_mismatch", float64(cur.TypeMismatches-prev.TypeMismatches))
			statser.Count("aggregator.gauges_expired", float64(cur.GaugesExpired-prev.GaugesExpired))
			statser.Gauge("aggregator.buckets", float64(a.bucketCount()))
			prev = cur
		}
	}
}

func (a *MetricAggregator) summariseTimer(t *timerBucket, flushInSeconds float64) cwstatsd.Timer {
	values := t.values
	sort.Float64s(values)
	n := len(values)
	count := float64(n)

	var sum, sumSquares float64
	for _, v := range values {
		sum += v
		sumSquares += v * v
	}
	mean := sum / count

	var sumOfDiffs float64
	for _, v := range values {
		sumOfDiffs += (v - mean) * (v - mean)
	}

	var median float64
	mid := n / 2
	if n%2 == 0 {
		median = (values[mid-1] + values[mid]) / 2
	} else {
		median = values[mid]
	}

	var percentiles cwstatsd.Percentiles
	if len(a.percentThresholds) > 0 {
		percentiles = make(cwstatsd.Percentiles, len(a.percentThresholds))
		for i, pct := range a.percentThresholds {
			percentiles[i] = cwstatsd.Percentile{
				Float: NearestRank(values, pct),
				Str:   a.percentNames[i],
			}
		}
	}

	return cwstatsd.Timer{
		Count:       int(round(t.sampledCount)),
		Samples:     n,
		PerSecond:   perSecond(t.sampledCount, flushInSeconds),
		Sum:         sum,
		SumSquares:  sumSquares,
		Min:         values[0],
		Max:         values[n-1],
		Mean:        mean,
		Median:      median,
		StdDev:      math.Sqrt(sumOfDiffs / count),
		Percentiles: percentiles,
	}
}

// round rounds a number to its nearest integer value.
func round(v float64) float64 {
	return math.Floor(v + 0.5)
}

func perSecond(v, flushInSeconds float64) float64 {
	if flushInSeconds <= 0 {
		return 0
	}
	return v / flushInSeconds
}

func isExpired(interval time.Duration, now, ts cwstatsd.Nanotime) bool {
	return interval != 0 && time.Duration(now-ts) > interval
}
