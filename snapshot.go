package cwstatsd

import (
	"sort"
	"time"
)

// Counter is the published value of a counter for one window.
type Counter struct {
	Value     float64 // Sum of all values, scaled by their sample rates
	PerSecond float64 // Value divided by the window length in seconds
}

// Gauge is the published value of a gauge.
type Gauge struct {
	Value     float64  // Last known value
	Timestamp Nanotime // When the gauge was last updated
}

// Percentile is a single computed percentile of a Timer.
type Percentile struct {
	Float float64
	Str   string // Published name, e.g. p90 or p99_9
}

// Percentiles represents an array of percentiles.
type Percentiles []Percentile

// Get returns the value of the named percentile.
func (p Percentiles) Get(name string) (float64, bool) {
	for _, pct := range p {
		if pct.Str == name {
			return pct.Float, true
		}
	}
	return 0, false
}

// Timer is the published summary of the samples observed for a timer in one window.
type Timer struct {
	Count       int     // Number of events, scaled by their sample rates and rounded
	Samples     int     // Number of samples actually received
	PerSecond   float64 // Count divided by the window length in seconds
	Sum         float64
	SumSquares  float64
	Min         float64
	Max         float64
	Mean        float64
	Median      float64
	StdDev      float64
	Percentiles Percentiles
}

// Set is the published value of a set for one window.
type Set struct {
	Cardinality int // Number of distinct members observed
}

// Snapshot is an immutable copy of the aggregated values at a flush instant.
type Snapshot struct {
	Timestamp time.Time     // When the window was closed
	Interval  time.Duration // Length of the window

	Counters map[string]Counter
	Gauges   map[string]Gauge
	Timers   map[string]Timer
	Sets     map[string]Set
}

// NewSnapshot creates an empty Snapshot.
func NewSnapshot(ts time.Time, interval time.Duration) *Snapshot {
	return &Snapshot{
		Timestamp: ts,
		Interval:  interval,
		Counters:  map[string]Counter{},
		Gauges:    map[string]Gauge{},
		Timers:    map[string]Timer{},
		Sets:      map[string]Set{},
	}
}

// Len returns the number of metrics in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.Counters) + len(s.Gauges) + len(s.Timers) + len(s.Sets)
}

// IsEmpty indicates if there is nothing to publish.
func (s *Snapshot) IsEmpty() bool {
	return s.Len() == 0
}

// Names returns the sorted names of all metrics in the snapshot.
func (s *Snapshot) Names() []string {
	names := make([]string, 0, s.Len())
	for name := range s.Counters {
		names = append(names, name)
	}
	for name := range s.Gauges {
		names = append(names, name)
	}
	for name := range s.Timers {
		names = append(names, name)
	}
	for name := range s.Sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Type returns the type of the named metric, and false if it isn't present.
func (s *Snapshot) Type(name string) (MetricType, bool) {
	if _, ok := s.Counters[name]; ok {
		return COUNTER, true
	}
	if _, ok := s.Gauges[name]; ok {
		return GAUGE, true
	}
	if _, ok := s.Timers[name]; ok {
		return TIMER, true
	}
	if _, ok := s.Sets[name]; ok {
		return SET, true
	}
	return 0, false
}
