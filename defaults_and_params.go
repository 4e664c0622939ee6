package cwstatsd

import (
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// DefaultPublishers is the list of default publisher names.
var DefaultPublishers = []string{"cloudwatch"}

// DefaultPercentThreshold is the default list of applied percentiles.
var DefaultPercentThreshold = []float64{50, 90, 99}

// DefaultMaxReaders is the default number of socket reading goroutines.
var DefaultMaxReaders = 1

// MaxReadersLimit caps max-readers to something reasonable for the host.
var MaxReadersLimit = runtime.NumCPU() * 4

const (
	// DefaultMetricsAddr is the default address on which to listen for metrics.
	DefaultMetricsAddr = ":8125"
	// DefaultFlushInterval is the default metrics flush interval.
	DefaultFlushInterval = 60 * time.Second
	// DefaultFlushOffset is the default offset for aligned flushes.
	DefaultFlushOffset = 0
	// DefaultFlushAligned is the default value for aligning flushes to the interval.
	DefaultFlushAligned = false
	// DefaultPublishTimeout bounds a single publish of a snapshot.
	DefaultPublishTimeout = 30 * time.Second
	// DefaultShutdownTimeout bounds the final flush performed on shutdown.
	DefaultShutdownTimeout = 10 * time.Second
	// DefaultExpiryIntervalGauge is the default time after which an idle gauge stops being published.  0 disables.
	DefaultExpiryIntervalGauge = 0
	// DefaultConnPerReader is the default for whether to create a connection per reader.
	DefaultConnPerReader = false
	// DefaultReceiveBufferSize is the default kernel receive buffer size.  0 leaves the OS default.
	DefaultReceiveBufferSize = 0
	// DefaultBadLinesPerMinute is the default number of bad lines to log per minute.
	DefaultBadLinesPerMinute = 10
	// DefaultInternalNamespace is the default namespace of metrics about this process.
	DefaultInternalNamespace = "statsd"
	// DefaultStatserType is the default type of statser.
	DefaultStatserType = StatserInternal
)

const (
	// StatserInternal is the name used to indicate the use of the internal statser.
	StatserInternal = "internal"
	// StatserLogging is the name used to indicate the use of the logging statser.
	StatserLogging = "logging"
	// StatserNull is the name used to indicate the use of the null statser.
	StatserNull = "null"
)

const (
	// ParamMetricsAddr is the name of parameter with address on which to listen for metrics.
	ParamMetricsAddr = "metrics-addr"
	// ParamNamespace is the name of parameter with namespace for all metrics.
	ParamNamespace = "namespace"
	// ParamInternalNamespace is the name of parameter with the namespace of internal metrics.
	ParamInternalNamespace = "internal-namespace"
	// ParamFlushInterval is the name of parameter with metrics flush interval.
	ParamFlushInterval = "flush-interval"
	// ParamFlushOffset is the name of parameter with the flush offset when aligned.
	ParamFlushOffset = "flush-offset"
	// ParamFlushAligned is the name of parameter to align flushes to the interval.
	ParamFlushAligned = "flush-aligned"
	// ParamPublishTimeout is the name of parameter with the publish timeout.
	ParamPublishTimeout = "publish-timeout"
	// ParamShutdownTimeout is the name of parameter with the final flush timeout.
	ParamShutdownTimeout = "shutdown-timeout"
	// ParamPercentThreshold is the name of parameter with list of applied percentiles.
	ParamPercentThreshold = "percent-threshold"
	// ParamExpiryIntervalGauge is the name of parameter with expiry interval for gauges.
	ParamExpiryIntervalGauge = "expiry-interval-gauge"
	// ParamAllowMetrics is the name of parameter with the list of metric name rules to accept.
	ParamAllowMetrics = "allow-metrics"
	// ParamDenyMetrics is the name of parameter with the list of metric name rules to drop.
	ParamDenyMetrics = "deny-metrics"
	// ParamMaxReaders is the name of parameter with number of socket readers.
	ParamMaxReaders = "max-readers"
	// ParamConnPerReader is the name of parameter indicating whether to create a connection per reader.
	ParamConnPerReader = "conn-per-reader"
	// ParamReceiveBufferSize is the name of parameter with the kernel receive buffer size.
	ParamReceiveBufferSize = "receive-buffer-size"
	// ParamBadLinesPerMinute is the name of parameter with the number of bad lines to log per minute.
	ParamBadLinesPerMinute = "bad-lines-per-minute"
	// ParamPublishers is the name of parameter with publishers.
	ParamPublishers = "publishers"
	// ParamCloudProvider is the name of parameter with the name of the host provider.
	ParamCloudProvider = "cloud-provider"
	// ParamStatserType is the name of parameter with the type of statser.
	ParamStatserType = "statser-type"
	// ParamHTTPAddr is the name of parameter with the address of the health endpoint.
	ParamHTTPAddr = "http-addr"
)

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamMetricsAddr, DefaultMetricsAddr, "Address on which to listen for metrics")
	fs.String(ParamNamespace, "", "Namespace all metrics")
	fs.String(ParamInternalNamespace, DefaultInternalNamespace, "Namespace for internal metrics, may be \"\"")
	fs.Duration(ParamFlushInterval, DefaultFlushInterval, "How often to flush metrics to the publishers")
	fs.Duration(ParamFlushOffset, DefaultFlushOffset, "Offset for flush interval when flush alignment is enabled")
	fs.Bool(ParamFlushAligned, DefaultFlushAligned, "Align flushes to the flush interval")
	fs.Duration(ParamPublishTimeout, DefaultPublishTimeout, "Maximum time for a single publish")
	fs.Duration(ParamShutdownTimeout, DefaultShutdownTimeout, "Maximum time for the final flush on shutdown")
	fs.Duration(ParamExpiryIntervalGauge, DefaultExpiryIntervalGauge, "After how long do we stop publishing idle gauges (0 to disable)")
	fs.StringSlice(ParamPercentThreshold, toStringSlice(DefaultPercentThreshold), "Comma-separated list of timer percentiles")
	fs.StringSlice(ParamAllowMetrics, nil, "Comma-separated list of metric name rules, if set a metric must match one")
	fs.StringSlice(ParamDenyMetrics, nil, "Comma-separated list of metric name rules, a metric matching any is dropped")
	fs.Int(ParamMaxReaders, DefaultMaxReaders, "Maximum number of socket readers")
	fs.Bool(ParamConnPerReader, DefaultConnPerReader, "Create a separate SO_REUSEPORT connection per reader")
	fs.Int(ParamReceiveBufferSize, DefaultReceiveBufferSize, "Kernel receive buffer size for the UDP socket (0 for OS default)")
	fs.Float64(ParamBadLinesPerMinute, DefaultBadLinesPerMinute, "Number of bad lines to log per minute")
	fs.StringSlice(ParamPublishers, DefaultPublishers, "Comma-separated list of publishers")
	fs.String(ParamCloudProvider, "", "If set, use the provider to retrieve host metadata and credentials")
	fs.String(ParamStatserType, DefaultStatserType, "Statser type to be used for sending metrics about this process")
	fs.String(ParamHTTPAddr, "", "If set, serve health checks and expvar on this address")
}

// ParsePercentiles parses percentile strings, each must be in (0, 100].
func ParsePercentiles(s []string) ([]float64, error) {
	percentThresholds := make([]float64, len(s))
	for i, sPercentThreshold := range s {
		pt, err := strconv.ParseFloat(strings.TrimSpace(sPercentThreshold), 64)
		if err != nil {
			return nil, err
		}
		if !(pt > 0 && pt <= 100) {
			return nil, &InvalidPercentileError{Value: pt}
		}
		percentThresholds[i] = pt
	}
	return percentThresholds, nil
}

// InvalidPercentileError is returned by ParsePercentiles for a value outside (0, 100].
type InvalidPercentileError struct {
	Value float64
}

func (e *InvalidPercentileError) Error() string {
	return "percentile " + strconv.FormatFloat(e.Value, 'f', -1, 64) + " must be in (0, 100]"
}

func toStringSlice(fs []float64) []string {
	s := make([]string, len(fs))
	for i, f := range fs {
		s[i] = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return s
}
