package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jc2k/cwstatsd/pkg/statsd"
)

func testOptions() loaderOptions {
	var opts loaderOptions
	opts.Prefix = "load."
	opts.Senders = 1
	opts.Rate = 1
	opts.SampleRate = 0.5
	opts.Lines.Counter = 10
	opts.Lines.Gauge = 5
	opts.Lines.Set = 5
	opts.Lines.Timer = 10
	opts.Names.Counter, opts.Names.Gauge, opts.Names.Set, opts.Names.Timer = 2, 2, 2, 2
	opts.Values.Counter, opts.Values.Gauge, opts.Values.Set, opts.Values.Timer = 5, 5, 5, 5
	return opts
}

func TestGeneratorProducesParseableLines(t *testing.T) {
	t.Parallel()
	opts := testOptions()
	require.NoError(t, opts.validate())
	g := newLineGenerator(1, &opts, func(n uint64) uint64 { return n })

	sb := &strings.Builder{}
	lines := 0
	for g.next(sb) {
		lines++
	}
	assert.Equal(t, 30, lines)
	assert.Equal(t, [4]uint64{}, g.remaining())

	metrics, errs := statsd.NewDecoder("").Decode([]byte(sb.String()))
	require.Empty(t, errs)
	assert.Len(t, metrics, 30)
	sampled := 0
	for _, m := range metrics {
		assert.True(t, strings.HasPrefix(m.Name, "load."), m.Name)
		if m.Rate == 0.5 {
			sampled++
		}
	}
	assert.Equal(t, 20, sampled)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	opts := testOptions()
	opts.SampleRate = 2
	assert.Error(t, opts.validate())

	opts = testOptions()
	opts.Lines.Counter, opts.Lines.Gauge, opts.Lines.Set, opts.Lines.Timer = 0, 0, 0, 0
	assert.Error(t, opts.validate())
}
