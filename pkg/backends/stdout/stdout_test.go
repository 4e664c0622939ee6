package stdout

import (
	"bytes"
	"context"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jc2k/cwstatsd"
)

func TestPublishWritesJSONLine(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	c := NewClient(&buf)

	s := cwstatsd.NewSnapshot(time.Unix(100, 0).UTC(), 10*time.Second)
	s.Counters["b.count"] = cwstatsd.Counter{Value: 4, PerSecond: 0.4}
	s.Gauges["a.gauge"] = cwstatsd.Gauge{Value: 7}
	s.Sets["c.set"] = cwstatsd.Set{Cardinality: 2}
	require.NoError(t, c.Publish(context.Background(), s))

	out := buf.Bytes()
	require.NotEmpty(t, out)
	assert.Equal(t, byte('\n'), out[len(out)-1])

	var decoded struct {
		Interval float64 `json:"interval_seconds"`
		Metrics  []struct {
			Name string `json:"name"`
			Type string `json:"type"`
		} `json:"metrics"`
	}
	require.NoError(t, jsoniter.Unmarshal(out, &decoded))
	assert.Equal(t, 10.0, decoded.Interval)
	require.Len(t, decoded.Metrics, 3)
	assert.Equal(t, "a.gauge", decoded.Metrics[0].Name)
	assert.Equal(t, "gauge", decoded.Metrics[0].Type)
	assert.Equal(t, "b.count", decoded.Metrics[1].Name)
	assert.Equal(t, "counter", decoded.Metrics[1].Type)
	assert.Equal(t, "c.set", decoded.Metrics[2].Name)
}
