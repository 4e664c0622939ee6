package stdout

import (
	"context"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/jc2k/cwstatsd"
)

// BackendName is the name of this backend.
const BackendName = "stdout"

// Client writes every snapshot as a single line of JSON.
type Client struct {
	mu sync.Mutex
	w  io.Writer
}

type jsonMetric struct {
	Name  string      `json:"name"`
	Type  string      `json:"type"`
	Value interface{} `json:"value"`
}

type jsonSnapshot struct {
	Timestamp time.Time    `json:"timestamp"`
	Interval  float64      `json:"interval_seconds"`
	Metrics   []jsonMetric `json:"metrics"`
}

// NewClientFromViper constructs a stdout publisher.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger, host cwstatsd.HostProvider, instance *cwstatsd.Instance) (cwstatsd.Publisher, error) {
	return NewClient(os.Stdout), nil
}

// NewClient constructs a publisher writing to w.
func NewClient(w io.Writer) *Client {
	return &Client{w: w}
}

// Publish writes the snapshot, with metrics sorted by name.
func (c *Client) Publish(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
	out := jsonSnapshot{
		Timestamp: snapshot.Timestamp,
		Interval:  snapshot.Interval.Seconds(),
		Metrics:   make([]jsonMetric, 0, snapshot.Len()),
	}
	for name, counter := range snapshot.Counters {
		out.Metrics = append(out.Metrics, jsonMetric{Name: name, Type: cwstatsd.COUNTER.String(), Value: counter})
	}
	for name, gauge := range snapshot.Gauges {
		out.Metrics = append(out.Metrics, jsonMetric{Name: name, Type: cwstatsd.GAUGE.String(), Value: gauge})
	}
	for name, timer := range snapshot.Timers {
		out.Metrics = append(out.Metrics, jsonMetric{Name: name, Type: cwstatsd.TIMER.String(), Value: timer})
	}
	for name, set := range snapshot.Sets {
		out.Metrics = append(out.Metrics, jsonMetric{Name: name, Type: cwstatsd.SET.String(), Value: set})
	}
	sort.Slice(out.Metrics, func(i, j int) bool {
		return out.Metrics[i].Name < out.Metrics[j].Name
	})

	buf, err := jsoniter.ConfigFastest.Marshal(out)
	if err != nil {
		return err
	}
	buf = append(buf, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.w.Write(buf)
	return err
}

// Name returns the name of the backend.
func (*Client) Name() string {
	return BackendName
}
