package statsd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/stats"
)

// ip packet size is stored in two bytes and that is how big in theory the packet can be.
// In practice it is highly unlikely but still possible to get packets bigger than usual MTU of 1500.
const packetSizeUDP = 0xffff

// ReceiverStats holds statistics for a MetricReceiver.
type ReceiverStats struct {
	LastPacket      time.Time
	PacketsReceived uint64
	MetricsReceived uint64
	BadLines        uint64
	TypeMismatches  uint64
	Filtered        uint64
	SocketErrors    uint64
}

// MetricReceiver reads datagrams from a net.PacketConn, decodes them, and records every allowed metric.
// Receive may be called concurrently on several connections, or several times on the same one.
type MetricReceiver struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastPacket      int64 // When last packet was received. Unix timestamp in nsec.
	packetsReceived uint64
	metricsReceived uint64
	badLines        uint64
	typeMismatches  uint64
	filtered        uint64
	socketErrors    uint64

	logger         logrus.FieldLogger
	namespace      string // Namespace to prefix all metrics
	filter         Filter
	recorder       cwstatsd.Recorder
	badLineLimiter *rate.Limiter
}

// NewMetricReceiver initialises a new MetricReceiver.  At most badLinesPerMinute undecodable lines
// are logged each minute.
func NewMetricReceiver(logger logrus.FieldLogger, namespace string, filter Filter, recorder cwstatsd.Recorder, badLinesPerMinute float64) *MetricReceiver {
	burst := int(badLinesPerMinute)
	if burst < 1 && badLinesPerMinute > 0 {
		burst = 1
	}
	return &MetricReceiver{
		logger:         logger,
		namespace:      namespace,
		filter:         filter,
		recorder:       recorder,
		badLineLimiter: rate.NewLimiter(rate.Limit(badLinesPerMinute/60), burst),
	}
}

// GetStats returns current receiver stats. Safe for concurrent use.
func (mr *MetricReceiver) GetStats() ReceiverStats {
	return ReceiverStats{
		LastPacket:      time.Unix(0, atomic.LoadInt64(&mr.lastPacket)),
		PacketsReceived: atomic.LoadUint64(&mr.packetsReceived),
		MetricsReceived: atomic.LoadUint64(&mr.metricsReceived),
		BadLines:        atomic.LoadUint64(&mr.badLines),
		TypeMismatches:  atomic.LoadUint64(&mr.typeMismatches),
		Filtered:        atomic.LoadUint64(&mr.filtered),
		SocketErrors:    atomic.LoadUint64(&mr.socketErrors),
	}
}

// RunMetrics emits receiver metrics after every flush until ctx is done.
func (mr *MetricReceiver) RunMetrics(ctx context.Context, statser stats.Statser) {
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	var prev ReceiverStats
	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			cur := mr.GetStats()
			statser.Count("receiver.packets_received", float64(cur.PacketsReceived-prev.PacketsReceived))
			statser.Count("receiver.metrics_received", float64(cur.MetricsReceived-prev.MetricsReceived))
			statser.Count("receiver.bad_lines_seen", float64(cur.BadLines-prev.BadLines))
			statser.Count("receiver.type_mismatch", float64(cur.TypeMismatches-prev.TypeMismatches))
			statser.Count("receiver.filtered", float64(cur.Filtered-prev.Filtered))
			statser.Count("receiver.socket_errors", float64(cur.SocketErrors-prev.SocketErrors))
			prev = cur
		}
	}
}

// Receive accepts incoming datagrams on c until ctx is done or a non-temporary error occurs.  It returns
// nil if ctx is done, which is also how a socket closed during shutdown is reported.  Any other
// non-temporary error is returned.
func (mr *MetricReceiver) Receive(ctx context.Context, c net.PacketConn) error {
	decoder := NewDecoder(mr.namespace)
	buf := make([]byte, packetSizeUDP)
	for {
		// This will error out when the socket is closed.
		nbytes, addr, err := c.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Temporary() {
				atomic.AddUint64(&mr.socketErrors, 1)
				mr.logger.WithError(err).Warn("Error reading from socket")
				continue
			}
			return fmt.Errorf("error reading from socket: %w", err)
		}
		atomic.AddUint64(&mr.packetsReceived, 1)
		atomic.StoreInt64(&mr.lastPacket, time.Now().UnixNano())
		mr.handlePacket(decoder, addr, buf[:nbytes])
	}
}

// handlePacket decodes the contents of a datagram and records every metric which passes the filter.
func (mr *MetricReceiver) handlePacket(decoder *Decoder, addr net.Addr, msg []byte) {
	metrics, errs := decoder.Decode(msg)
	ip := getIP(addr)

	if len(errs) > 0 {
		atomic.AddUint64(&mr.badLines, uint64(len(errs)))
		for _, err := range errs {
			// logging as debug, and limited, to avoid spamming logs when a bad actor sends
			// badly formatted messages
			if mr.badLineLimiter.Allow() {
				mr.logger.WithField("source", ip).Debugf("%v", err)
			}
		}
	}

	now := cwstatsd.NanoNow()
	var recorded uint64
	for _, m := range metrics {
		if !mr.filter.Allowed(m.Name) {
			atomic.AddUint64(&mr.filtered, 1)
			continue
		}
		m.SourceIP = ip
		m.Timestamp = now
		if err := mr.recorder.Record(m); err != nil {
			var mismatch *cwstatsd.TypeMismatchError
			if errors.As(err, &mismatch) {
				atomic.AddUint64(&mr.typeMismatches, 1)
			}
			if mr.badLineLimiter.Allow() {
				mr.logger.WithError(err).WithField("source", ip).Debug("Error recording metric")
			}
			continue
		}
		recorded++
	}
	atomic.AddUint64(&mr.metricsReceived, recorded)
}

func getIP(addr net.Addr) cwstatsd.IP {
	if a, ok := addr.(*net.UDPAddr); ok {
		return cwstatsd.IP(a.IP.String())
	}
	return cwstatsd.UnknownIP
}
