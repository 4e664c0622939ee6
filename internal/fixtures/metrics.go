package fixtures

import (
	"github.com/jc2k/cwstatsd"
)

type MetricOpt func(m *cwstatsd.Metric)

// MakeMetric builds a metric for tests.  The default is a counter named "name" with a value of 1.
func MakeMetric(opts ...MetricOpt) *cwstatsd.Metric {
	m := &cwstatsd.Metric{
		Type:     cwstatsd.COUNTER,
		Name:     "name",
		Value:    1,
		Rate:     1,
		SourceIP: "127.0.0.1",
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func Name(n string) MetricOpt {
	return func(m *cwstatsd.Metric) {
		m.Name = n
	}
}

func Value(v float64) MetricOpt {
	return func(m *cwstatsd.Metric) {
		m.Value = v
	}
}

func Rate(r float64) MetricOpt {
	return func(m *cwstatsd.Metric) {
		m.Rate = r
	}
}

func Gauge(m *cwstatsd.Metric) {
	m.Type = cwstatsd.GAUGE
}

func GaugeDelta(m *cwstatsd.Metric) {
	m.Type = cwstatsd.GAUGE
	m.GaugeDelta = true
}

func Timer(m *cwstatsd.Metric) {
	m.Type = cwstatsd.TIMER
}

// Member makes the metric a set containing s.
func Member(s string) MetricOpt {
	return func(m *cwstatsd.Metric) {
		m.Type = cwstatsd.SET
		m.Value = 0
		m.StringValue = s
	}
}
