package lexer

import (
	"bytes"
	"errors"
	"math"
	"strconv"

	"github.com/jc2k/cwstatsd"
)

// Lexer decodes a single statsd line:
//
//	name:value|type[|@sample_rate][|#tags][|c:container]
//
// Unknown trailing fields are ignored.  A Lexer may be reused, but not concurrently.
type Lexer struct {
	// any field added must be considered in Lexer.reset
	input     []byte
	len       uint32
	start     uint32
	pos       uint32
	key       []byte // cleaned key, the input is never modified
	m         *cwstatsd.Metric
	namespace string
	err       error
	sampling  float64
}

// assumes we don't have \x00 bytes in input.
const eof byte = 0

var (
	ErrMissingKeySep     = errors.New("missing key separator")
	ErrEmptyKey          = errors.New("key zero len")
	ErrMissingValueSep   = errors.New("missing value separator")
	ErrInvalidType       = errors.New("invalid type")
	ErrInvalidValue      = errors.New("invalid value")
	ErrInvalidSampleRate = errors.New("invalid sample rate")
	ErrNaN               = errors.New("invalid value NaN")
	ErrInf               = errors.New("invalid value Inf")
)

func (l *Lexer) next() byte {
	if l.pos >= l.len {
		return eof
	}
	b := l.input[l.pos]
	l.pos++
	return b
}

func (l *Lexer) reset() {
	l.start = 0
	l.pos = 0
	l.key = l.key[:0]
	l.m = nil
	l.err = nil
	l.sampling = 1
}

// Run decodes input into a Metric.  The metric name is prefixed with namespace if it is not empty.
func (l *Lexer) Run(input []byte, namespace string) (*cwstatsd.Metric, error) {
	l.reset()
	l.input = input
	l.namespace = namespace
	l.len = uint32(len(l.input))

	for state := lexStart; state != nil; {
		state = state(l)
	}
	if l.err != nil {
		return nil, l.err
	}
	if !(l.sampling > 0 && l.sampling <= 1) {
		return nil, ErrInvalidSampleRate
	}
	l.m.Rate = l.sampling
	if l.m.Type == cwstatsd.SET {
		if l.m.StringValue == "" {
			return nil, ErrInvalidValue
		}
		return l.m, nil
	}

	sv := l.m.StringValue
	if l.m.Type == cwstatsd.GAUGE && sv != "" && (sv[0] == '+' || sv[0] == '-') {
		l.m.GaugeDelta = true
	}
	v, err := strconv.ParseFloat(sv, 64)
	if err != nil {
		return nil, ErrInvalidValue
	}
	if math.IsNaN(v) {
		return nil, ErrNaN
	}
	if math.IsInf(v, 0) {
		return nil, ErrInf
	}
	l.m.Value = v
	l.m.StringValue = ""
	return l.m, nil
}

type stateFn func(*Lexer) stateFn

func lexStart(l *Lexer) stateFn {
	if l.len == 0 {
		l.err = ErrMissingKeySep
		return nil
	}
	l.m = &cwstatsd.Metric{}
	return lexKeySep
}

// lex until we find the colon separator between key and value, cleaning the key as we go.
func lexKeySep(l *Lexer) stateFn {
	for {
		switch b := l.next(); b {
		case '/':
			l.key = append(l.key, '-')
		case ' ':
			l.key = append(l.key, '_')
		case '\t', '\v', '\f', '\r':
			// A run of other whitespace becomes a single underscore.
			if l.pos < 2 || !isOtherSpace(l.input[l.pos-2]) {
				l.key = append(l.key, '_')
			}
		case ':':
			return lexKey
		case eof:
			l.err = ErrMissingKeySep
			return nil
		case '.', '-', '_':
			l.key = append(l.key, b)
		default:
			if ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9') {
				l.key = append(l.key, b)
			}
			// anything else is dropped
		}
	}
}

func isOtherSpace(b byte) bool {
	return b == '\t' || b == '\v' || b == '\f' || b == '\r'
}

// lex the key.
func lexKey(l *Lexer) stateFn {
	if len(l.key) == 0 {
		l.err = ErrEmptyKey
		return nil
	}
	if l.namespace != "" {
		l.m.Name = l.namespace + "." + string(l.key)
	} else {
		l.m.Name = string(l.key)
	}
	l.start = l.pos
	return lexValueSep
}

// lex until we find the pipe separator between value and type.
func lexValueSep(l *Lexer) stateFn {
	p := bytes.IndexByte(l.input[l.pos:], '|')
	if p == -1 {
		l.err = ErrMissingValueSep
		return nil
	}
	l.pos += uint32(p) + 1
	return lexValue
}

// lex the value.
func lexValue(l *Lexer) stateFn {
	l.m.StringValue = string(l.input[l.start : l.pos-1])
	l.start = l.pos
	return lexType
}

// lex the type.
func lexType(l *Lexer) stateFn {
	switch b := l.next(); b {
	case 'c':
		l.m.Type = cwstatsd.COUNTER
	case 'g':
		l.m.Type = cwstatsd.GAUGE
	case 'm':
		// "ms" is a timer, a bare "m" is a histogram which is treated as a timer.
		if l.pos < l.len && l.input[l.pos] == 's' {
			l.pos++
		}
		l.m.Type = cwstatsd.TIMER
	case 'h':
		l.m.Type = cwstatsd.TIMER
	case 's':
		l.m.Type = cwstatsd.SET
	default:
		l.err = ErrInvalidType
		return nil
	}
	l.start = l.pos
	return lexMetricFields
}

// lex the possible separator between type and optional fields.
func lexMetricFields(l *Lexer) stateFn {
	switch b := l.next(); b {
	case '|':
		l.start = l.pos
		return lexMetricField
	case eof:
	default:
		l.err = ErrInvalidType
	}
	return nil
}

// lexMetricField lexes an optional field.  Only the sample rate is used, tags, container,
// and unrecognised fields are skipped.
func lexMetricField(l *Lexer) stateFn {
	switch b := l.next(); b {
	case '@':
		return lexSampleRate
	case eof:
		return nil
	default:
		return lexUnknown
	}
}

// lexSampleRate consumes all bytes up to the stop byte ('|') or an eof and parses them as the
// sample rate.  The stop byte is not consumed.
func lexSampleRate(l *Lexer) stateFn {
	start := l.pos
	skipField(l)
	v, err := strconv.ParseFloat(string(l.input[start:l.pos]), 64)
	if err != nil {
		l.err = ErrInvalidSampleRate
		return nil
	}
	l.sampling = v
	return lexMetricFields
}

// lexUnknown consumes and discards all bytes up to the stop byte ('|') or an eof.
// The stop byte is not consumed.
func lexUnknown(l *Lexer) stateFn {
	skipField(l)
	return lexMetricFields
}

func skipField(l *Lexer) {
	p := bytes.IndexByte(l.input[l.pos:], '|')
	if p == -1 {
		l.pos = l.len
	} else {
		l.pos += uint32(p)
	}
}
