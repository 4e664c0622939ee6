package cwstatsd

import (
	"fmt"
)

// MetricType is an enumeration of all the possible types of Metric.
type MetricType byte

const (
	_ = iota
	// COUNTER is statsd counter type
	COUNTER MetricType = iota
	// TIMER is statsd timer type
	TIMER
	// GAUGE is statsd gauge type
	GAUGE
	// SET is statsd set type
	SET
)

func (m MetricType) String() string {
	switch m {
	case SET:
		return "set"
	case GAUGE:
		return "gauge"
	case TIMER:
		return "timer"
	case COUNTER:
		return "counter"
	}
	return "unknown"
}

// Metric represents a single decoded datapoint.
type Metric struct {
	Name        string     // The name of the metric
	Value       float64    // The numeric value of the metric
	Rate        float64    // The sampling rate of the metric
	StringValue string     // The string value for some metrics e.g. Set
	GaugeDelta  bool       // Value is a signed delta to apply to the current gauge value
	SourceIP    IP         // IP of the source of the metric
	Timestamp   Nanotime   // Time the metric was received
	Type        MetricType // The type of metric
}

func (m *Metric) String() string {
	if m.Type == SET {
		return fmt.Sprintf("{%s, %s, %q, @%g}", m.Type, m.Name, m.StringValue, m.Rate)
	}
	return fmt.Sprintf("{%s, %s, %g, @%g}", m.Type, m.Name, m.Value, m.Rate)
}
