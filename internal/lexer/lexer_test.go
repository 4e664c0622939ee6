package lexer

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jc2k/cwstatsd"
)

func TestMetricsLexer(t *testing.T) {
	t.Parallel()
	tests := map[string]cwstatsd.Metric{
		"foo.bar.baz:2|c":                             {Name: "foo.bar.baz", Value: 2, Type: cwstatsd.COUNTER, Rate: 1.0},
		"abc.def.g:3|g":                               {Name: "abc.def.g", Value: 3, Type: cwstatsd.GAUGE, Rate: 1.0},
		"def.g:10|ms":                                 {Name: "def.g", Value: 10, Type: cwstatsd.TIMER, Rate: 1.0},
		"def.h:10|h":                                  {Name: "def.h", Value: 10, Type: cwstatsd.TIMER, Rate: 1.0},
		"def.m:10|m":                                  {Name: "def.m", Value: 10, Type: cwstatsd.TIMER, Rate: 1.0},
		"def.i:10|h|#foo":                             {Name: "def.i", Value: 10, Type: cwstatsd.TIMER, Rate: 1.0},
		"smp.rte:5|c|@0.1":                            {Name: "smp.rte", Value: 5, Type: cwstatsd.COUNTER, Rate: 0.1},
		"smp.rte:5|c|@0.1|#foo:bar,baz":               {Name: "smp.rte", Value: 5, Type: cwstatsd.COUNTER, Rate: 0.1},
		"smp.rte:5|c|#foo:bar,baz":                    {Name: "smp.rte", Value: 5, Type: cwstatsd.COUNTER, Rate: 1.0},
		"smp.rte:5|c|@1":                              {Name: "smp.rte", Value: 5, Type: cwstatsd.COUNTER, Rate: 1.0},
		"uniq.usr:joe|s":                              {Name: "uniq.usr", StringValue: "joe", Type: cwstatsd.SET, Rate: 1.0},
		"fooBarBaz:2|c":                               {Name: "fooBarBaz", Value: 2, Type: cwstatsd.COUNTER, Rate: 1.0},
		"smp gge:1|g":                                 {Name: "smp_gge", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"smp\tgge:1|g":                                {Name: "smp_gge", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"smp\t\tgge:1|g":                              {Name: "smp_gge", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"smp  gge:1|g":                                {Name: "smp__gge", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"smp \tgge:1|g":                               {Name: "smp__gge", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"smp/gge:1|g":                                 {Name: "smp-gge", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"smp,gge$:1|g":                                {Name: "smpgge", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"gauge.up:+3|g":                               {Name: "gauge.up", Value: 3, GaugeDelta: true, Type: cwstatsd.GAUGE, Rate: 1.0},
		"gauge.down:-3|g":                             {Name: "gauge.down", Value: -3, GaugeDelta: true, Type: cwstatsd.GAUGE, Rate: 1.0},
		"timer.neg:-3|ms":                             {Name: "timer.neg", Value: -3, Type: cwstatsd.TIMER, Rate: 1.0},
		"un1qu3:john|s":                               {Name: "un1qu3", StringValue: "john", Type: cwstatsd.SET, Rate: 1.0},
		"un1qu3:john|s|#some:42":                      {Name: "un1qu3", StringValue: "john", Type: cwstatsd.SET, Rate: 1.0},
		"da-sh:1|s":                                   {Name: "da-sh", StringValue: "1", Type: cwstatsd.SET, Rate: 1.0},
		"under_score:1|s":                             {Name: "under_score", StringValue: "1", Type: cwstatsd.SET, Rate: 1.0},
		"foo.bar.baz:2|c|c:xyz":                       {Name: "foo.bar.baz", Value: 2, Type: cwstatsd.COUNTER, Rate: 1.0},
		"smp.rte:5|c|@0.1|c:xyz":                      {Name: "smp.rte", Value: 5, Type: cwstatsd.COUNTER, Rate: 0.1},
		"smp.rte:5|c|@0.1|#foo:bar,baz|c:xyz":         {Name: "smp.rte", Value: 5, Type: cwstatsd.COUNTER, Rate: 0.1},
		"c.after.tags:1|g|#,,|c::,#@":                 {Name: "c.after.tags", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"field.order.rev.all:1|g|c:xyz|#foo:bar|@0.1": {Name: "field.order.rev.all", Value: 1, Type: cwstatsd.GAUGE, Rate: 0.1},
		"new.last.prefix:1|g|#,,|c:xyz|x:":            {Name: "new.last.prefix", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"new.last.empty:1|g|#,|c:xyz|":                {Name: "new.last.empty", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"new.first.empty:1|g||#,|c:xyz":               {Name: "new.first.empty", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
		"new.mid.colon:1|g|#|:|c:xyz":                 {Name: "new.mid.colon", Value: 1, Type: cwstatsd.GAUGE, Rate: 1.0},
	}

	compareMetric(t, tests, "")
}

func TestMetricsLexerNamespace(t *testing.T) {
	t.Parallel()
	tests := map[string]cwstatsd.Metric{
		"foo.bar.baz:2|c": {Name: "stats.foo.bar.baz", Value: 2, Type: cwstatsd.COUNTER, Rate: 1.0},
		"uniq.usr:joe|s":  {Name: "stats.uniq.usr", StringValue: "joe", Type: cwstatsd.SET, Rate: 1.0},
	}

	compareMetric(t, tests, "stats")
}

func compareMetric(t *testing.T, tests map[string]cwstatsd.Metric, namespace string) {
	for input, expected := range tests {
		input := input
		expected := expected
		t.Run(fmt.Sprintf("%s/%s", input, namespace), func(t *testing.T) {
			t.Parallel()
			l := Lexer{}
			result, err := l.Run([]byte(input), namespace)
			require.NoError(t, err)
			assert.Equal(t, &expected, result)
		})
	}
}

func TestInvalidMetricsLexer(t *testing.T) {
	t.Parallel()
	tests := map[string]error{
		"":                 ErrMissingKeySep,
		"foo":              ErrMissingKeySep,
		"foo.bar.baz2|c":   ErrMissingKeySep,
		":2|c":             ErrEmptyKey,
		"$%^:2|c":          ErrEmptyKey,
		"foo:2":            ErrMissingValueSep,
		"foo:2|":           ErrInvalidType,
		"foo:2|x":          ErrInvalidType,
		"foo:2|cx":         ErrInvalidType,
		"foo:2|msx":        ErrInvalidType,
		"foo:2|c|@":        ErrInvalidSampleRate,
		"foo:2|c|@abc":     ErrInvalidSampleRate,
		"foo:2|c|@0":       ErrInvalidSampleRate,
		"foo:2|c|@-0.5":    ErrInvalidSampleRate,
		"foo:2|c|@1.5":     ErrInvalidSampleRate,
		"foo:2|c|@NaN":     ErrInvalidSampleRate,
		"foo:abc|c":        ErrInvalidValue,
		"foo:|c":           ErrInvalidValue,
		"foo:|s":           ErrInvalidValue,
		"foo:1:2|ms":       ErrInvalidValue,
		"foo:NaN|g":        ErrNaN,
		"foo:Inf|ms":       ErrInf,
		"foo:-Inf|c":       ErrInf,
		"foo:1e400|c":      ErrInvalidValue,
		"foo:2|c|@0.5|#tg": nil,
	}

	for input, expected := range tests {
		input := input
		expected := expected
		t.Run(input, func(t *testing.T) {
			t.Parallel()
			l := Lexer{}
			_, err := l.Run([]byte(input), "")
			if expected == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, expected)
		})
	}
}

func TestLexerDoesNotModifyInput(t *testing.T) {
	t.Parallel()
	input := []byte("a/b c$d:1|c|@0.5|#x")
	orig := append([]byte(nil), input...)

	l := Lexer{}
	first, err := l.Run(input, "ns")
	require.NoError(t, err)
	assert.Equal(t, orig, input)

	second, err := l.Run(input, "ns")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "ns.a-b_cd", second.Name)
}

func BenchmarkLexer(b *testing.B) {
	input := []byte("abc.def.g:10|ms|@0.1|#foo:bar")
	l := Lexer{}
	b.ReportAllocs()
	b.ResetTimer()
	for n := 0; n < b.N; n++ {
		_, _ = l.Run(input, "")
	}
}
