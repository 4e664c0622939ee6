package statsd

import (
	"bytes"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/internal/lexer"
)

// Decoder splits a datagram into lines and decodes each one into a Metric.  A Decoder is not safe for
// concurrent use, each receiver owns one.
type Decoder struct {
	namespace string // Namespace to prefix all metrics
	lexer     lexer.Lexer
}

// NewDecoder creates a Decoder which prefixes every metric name with namespace, if it is not empty.
func NewDecoder(namespace string) *Decoder {
	return &Decoder{
		namespace: namespace,
	}
}

// Decode decodes every line of msg.  A line which fails to decode produces a DecodeError and
// doesn't affect the other lines.  Empty lines are skipped, and a trailing \r is ignored.  msg
// is not modified.
func (d *Decoder) Decode(msg []byte) ([]*cwstatsd.Metric, []*cwstatsd.DecodeError) {
	var metrics []*cwstatsd.Metric
	var errs []*cwstatsd.DecodeError
	for len(msg) > 0 {
		idx := bytes.IndexByte(msg, '\n')
		var line []byte
		// protocol does not require line to end in \n
		if idx == -1 {
			line = msg
			msg = nil
		} else {
			line = msg[:idx]
			msg = msg[idx+1:]
		}
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) == 0 {
			continue
		}
		m, err := d.lexer.Run(line, d.namespace)
		if err != nil {
			errs = append(errs, &cwstatsd.DecodeError{
				Line: string(line),
				Err:  err,
			})
			continue
		}
		metrics = append(metrics, m)
	}
	return metrics, errs
}
