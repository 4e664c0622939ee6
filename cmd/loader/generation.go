package main

import (
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
)

// lineKind describes one kind of line, and how many of it remain to be sent.
type lineKind struct {
	remaining uint64 // atomic
	name      string
	suffix    string
	names     int
	maxValue  int
	sampled   bool
}

type lineGenerator struct {
	rnd        *rand.Rand
	prefix     string
	sampleRate string
	kinds      [4]*lineKind
}

func newLineGenerator(seed int64, opts *loaderOptions, share func(uint64) uint64) *lineGenerator {
	g := &lineGenerator{
		rnd:    rand.New(rand.NewSource(seed)),
		prefix: opts.Prefix,
		kinds: [4]*lineKind{
			{remaining: share(opts.Lines.Counter), name: "counter", suffix: "c", names: opts.Names.Counter, maxValue: opts.Values.Counter, sampled: true},
			{remaining: share(opts.Lines.Gauge), name: "gauge", suffix: "g", names: opts.Names.Gauge, maxValue: opts.Values.Gauge},
			{remaining: share(opts.Lines.Set), name: "set", suffix: "s", names: opts.Names.Set, maxValue: opts.Values.Set},
			{remaining: share(opts.Lines.Timer), name: "timer", suffix: "ms", names: opts.Names.Timer, maxValue: opts.Values.Timer, sampled: true},
		},
	}
	if opts.SampleRate < 1 {
		g.sampleRate = strconv.FormatFloat(opts.SampleRate, 'g', -1, 64)
	}
	return g
}

// next appends one line to sb, returning false when nothing remains.
func (g *lineGenerator) next(sb *strings.Builder) bool {
	// Only this goroutine decrements, so plain reads are safe here.
	var total uint64
	for _, k := range g.kinds {
		total += k.remaining
	}
	if total == 0 {
		return false
	}

	n := uint64(g.rnd.Int63n(int64(total)))
	for _, k := range g.kinds {
		if n < k.remaining {
			g.write(sb, k)
			return true
		}
		n -= k.remaining
	}
	return false
}

func (g *lineGenerator) write(sb *strings.Builder, k *lineKind) {
	atomic.AddUint64(&k.remaining, ^uint64(0))
	sb.WriteString(g.prefix)
	sb.WriteString(k.name)
	sb.WriteByte('.')
	sb.WriteString(strconv.Itoa(g.rnd.Intn(k.names)))
	sb.WriteByte(':')
	switch k.suffix {
	case "c":
		sb.WriteString(strconv.Itoa(1 + g.rnd.Intn(k.maxValue)))
	case "ms":
		sb.WriteString(strconv.FormatFloat(g.rnd.Float64()*float64(k.maxValue), 'f', 3, 64))
	default:
		sb.WriteString(strconv.Itoa(g.rnd.Intn(k.maxValue)))
	}
	sb.WriteByte('|')
	sb.WriteString(k.suffix)
	if k.sampled && g.sampleRate != "" {
		sb.WriteString("|@")
		sb.WriteString(g.sampleRate)
	}
	sb.WriteByte('\n')
}

// remaining returns how many lines of each kind are still to be sent.
func (g *lineGenerator) remaining() [4]uint64 {
	var r [4]uint64
	for i, k := range g.kinds {
		r[i] = atomic.LoadUint64(&k.remaining)
	}
	return r
}
