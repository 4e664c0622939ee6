package cloudwatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/cloudwatch"
	"github.com/aws/aws-sdk-go/service/cloudwatch/cloudwatchiface"
	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/pkg/stats"
	"github.com/jc2k/cwstatsd/pkg/util"
)

// Maximum number of dimensions per metric
// https://docs.aws.amazon.com/AmazonCloudWatch/latest/monitoring/cloudwatch_limits.html
const MaxDimensions = 10

// Maximum number of datums in a single PutMetricData request.
const maxBatchSize = 1000

// BackendName is the name of this backend.
const BackendName = "cloudwatch"

const (
	paramNamespace            = "namespace"
	paramSplitNamespace       = "split-namespace"
	paramBatchSize            = "batch-size"
	paramMaxRequestsPerSecond = "max-requests-per-second"
	paramDimensions           = "dimensions"
	paramInstanceDimension    = "instance-dimension"
	paramRegion               = "region"

	defaultNamespace            = "Statsd"
	defaultSplitNamespace       = true
	defaultBatchSize            = 20
	defaultMaxRequestsPerSecond = 10
	defaultInstanceDimension    = true
)

// SessionProvider is implemented by host providers which hold AWS credentials.
type SessionProvider interface {
	Session() *session.Session
}

// Config holds the settings of a Client.
type Config struct {
	Namespace            string            // Base namespace
	SplitNamespace       bool              // Move the dotted prefix of a name into the namespace
	BatchSize            int               // Datums per PutMetricData request
	MaxRequestsPerSecond float64           // 0 is unlimited
	Dimensions           map[string]string // Static dimensions added to every datum
	Instance             *cwstatsd.Instance
	Backoff              util.BackoffFactory
}

// Client is an object that is used to send messages to AWS CloudWatch.
type Client struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	batchesSent    uint64
	batchesFailed  uint64
	batchesRetried uint64
	datumsSent     uint64

	logger         logrus.FieldLogger
	cloudwatch     cloudwatchiface.CloudWatchAPI
	namespace      string
	splitNamespace bool
	batchSize      int
	dimensions     []*cloudwatch.Dimension
	limiter        *rate.Limiter
	backoff        util.BackoffFactory
}

// NewClientFromViper constructs a CloudWatch publisher from the cloudwatch section of v.  Credentials come from
// host if it implements SessionProvider, otherwise from the default AWS credential chain.
func NewClientFromViper(v *viper.Viper, logger logrus.FieldLogger, host cwstatsd.HostProvider, instance *cwstatsd.Instance) (cwstatsd.Publisher, error) {
	cv := util.GetSubViper(v, BackendName)
	cv.SetDefault(paramNamespace, defaultNamespace)
	cv.SetDefault(paramSplitNamespace, defaultSplitNamespace)
	cv.SetDefault(paramBatchSize, defaultBatchSize)
	cv.SetDefault(paramMaxRequestsPerSecond, defaultMaxRequestsPerSecond)
	cv.SetDefault(paramDimensions, map[string]string{})
	cv.SetDefault(paramInstanceDimension, defaultInstanceDimension)
	cv.SetDefault(paramRegion, "")

	retry, err := util.GetRetryFromViper(util.GetSubViper(v, BackendName+".retry"))
	if err != nil {
		return nil, err
	}

	awsConfig := aws.NewConfig()
	region := cv.GetString(paramRegion)
	if region == "" && instance != nil {
		region = instance.Region
	}
	if region != "" {
		awsConfig = awsConfig.WithRegion(region)
	}

	var sess *session.Session
	if sp, ok := host.(SessionProvider); ok {
		sess = sp.Session()
	} else {
		sess, err = session.NewSession()
		if err != nil {
			return nil, fmt.Errorf("creating aws session: %w", err)
		}
	}

	cfg := Config{
		Namespace:            cv.GetString(paramNamespace),
		SplitNamespace:       cv.GetBool(paramSplitNamespace),
		BatchSize:            cv.GetInt(paramBatchSize),
		MaxRequestsPerSecond: cv.GetFloat64(paramMaxRequestsPerSecond),
		Dimensions:           cv.GetStringMapString(paramDimensions),
		Backoff:              retry,
	}
	if cv.GetBool(paramInstanceDimension) {
		cfg.Instance = instance
	}
	return NewClient(logger, cloudwatch.New(sess, awsConfig), cfg)
}

// NewClient constructs a CloudWatch publisher using api.
func NewClient(logger logrus.FieldLogger, api cloudwatchiface.CloudWatchAPI, cfg Config) (*Client, error) {
	if cfg.Namespace == "" {
		return nil, errors.New("namespace must not be empty")
	}
	if cfg.BatchSize < 1 || cfg.BatchSize > maxBatchSize {
		return nil, fmt.Errorf("batch-size must be between 1 and %d", maxBatchSize)
	}
	if cfg.MaxRequestsPerSecond < 0 {
		return nil, errors.New("max-requests-per-second must not be negative")
	}
	limit := rate.Inf
	if cfg.MaxRequestsPerSecond > 0 {
		limit = rate.Limit(cfg.MaxRequestsPerSecond)
	}
	bo := cfg.Backoff
	if bo == nil {
		bo = func() backoff.BackOff { return &backoff.StopBackOff{} }
	}

	logger.WithFields(logrus.Fields{
		"namespace":       cfg.Namespace,
		"split-namespace": cfg.SplitNamespace,
		"batch-size":      cfg.BatchSize,
		"max-rps":         cfg.MaxRequestsPerSecond,
	}).Info("Created backend")

	return &Client{
		logger:         logger,
		cloudwatch:     api,
		namespace:      cfg.Namespace,
		splitNamespace: cfg.SplitNamespace,
		batchSize:      cfg.BatchSize,
		dimensions:     buildDimensions(logger, cfg.Dimensions, cfg.Instance),
		limiter:        rate.NewLimiter(limit, 1),
		backoff:        bo,
	}, nil
}

// buildDimensions sorts the static dimensions by name and adds the instance ID and auto scaling group.
func buildDimensions(logger logrus.FieldLogger, static map[string]string, instance *cwstatsd.Instance) []*cloudwatch.Dimension {
	dimensions := make([]*cloudwatch.Dimension, 0, len(static)+2)
	if instance != nil && instance.ID != "" {
		dimensions = append(dimensions, &cloudwatch.Dimension{
			Name:  aws.String("InstanceId"),
			Value: aws.String(instance.ID),
		})
	}
	if asg := instance.AutoScalingGroup(); asg != "" {
		if _, ok := static["AutoScalingGroupName"]; !ok {
			dimensions = append(dimensions, &cloudwatch.Dimension{
				Name:  aws.String("AutoScalingGroupName"),
				Value: aws.String(asg),
			})
		}
	}
	keys := make([]string, 0, len(static))
	for k := range static {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		dimensions = append(dimensions, &cloudwatch.Dimension{
			Name:  aws.String(k),
			Value: aws.String(static[k]),
		})
	}

	// Check that there are not too many dimensions
	if dimensionCount := len(dimensions); dimensionCount > MaxDimensions {
		logger.Warnf("[%s] Too many dimensions (%d) specified, truncating to %d", BackendName, dimensionCount, MaxDimensions)
		return dimensions[:MaxDimensions]
	}
	return dimensions
}

// metricName returns the namespace and metric name a statsd name is published under.
func (client *Client) metricName(name string) (string, string) {
	if !client.splitNamespace {
		return client.namespace, name
	}
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 || idx == len(name)-1 {
		return client.namespace, name
	}
	return client.namespace + "/" + strings.Replace(name[:idx], ".", "/", -1), name[idx+1:]
}

// buildMetricData converts a snapshot into datums grouped by namespace.
func (client *Client) buildMetricData(snapshot *cwstatsd.Snapshot) map[string][]*cloudwatch.MetricDatum {
	data := map[string][]*cloudwatch.MetricDatum{}
	timestamp := snapshot.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	add := func(name, suffix, unit string, fill func(d *cloudwatch.MetricDatum)) {
		namespace, metric := client.metricName(name)
		d := &cloudwatch.MetricDatum{
			MetricName: aws.String(metric + suffix),
			Timestamp:  aws.Time(timestamp),
			Unit:       aws.String(unit),
			Dimensions: client.dimensions,
		}
		fill(d)
		data[namespace] = append(data[namespace], d)
	}
	value := func(v float64) func(d *cloudwatch.MetricDatum) {
		return func(d *cloudwatch.MetricDatum) {
			d.Value = aws.Float64(v)
		}
	}

	for name, counter := range snapshot.Counters {
		add(name, "", cloudwatch.StandardUnitCount, value(counter.Value))
	}
	for name, gauge := range snapshot.Gauges {
		add(name, "", cloudwatch.StandardUnitNone, value(gauge.Value))
	}
	for name, set := range snapshot.Sets {
		add(name, "", cloudwatch.StandardUnitNone, value(float64(set.Cardinality)))
	}
	for name, timer := range snapshot.Timers {
		timer := timer
		add(name, "", cloudwatch.StandardUnitMilliseconds, func(d *cloudwatch.MetricDatum) {
			d.StatisticValues = &cloudwatch.StatisticSet{
				Minimum:     aws.Float64(timer.Min),
				Maximum:     aws.Float64(timer.Max),
				Sum:         aws.Float64(timer.Sum),
				SampleCount: aws.Float64(float64(timer.Samples)),
			}
		})
		for _, pct := range timer.Percentiles {
			add(name, "."+pct.Str, cloudwatch.StandardUnitMilliseconds, value(pct.Float))
		}
	}

	for _, datums := range data {
		sort.Slice(datums, func(i, j int) bool {
			return *datums[i].MetricName < *datums[j].MetricName
		})
	}
	return data
}

// Publish sends the snapshot to CloudWatch in batches.  Every batch is attempted, and all errors are
// returned together in a *cwstatsd.PublishError.
func (client *Client) Publish(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
	data := client.buildMetricData(snapshot)
	if len(data) == 0 {
		return nil
	}

	namespaces := make([]string, 0, len(data))
	for ns := range data {
		namespaces = append(namespaces, ns)
	}
	sort.Strings(namespaces)

	var errs []error
	for _, ns := range namespaces {
		datums := data[ns]
		// We are not allowed to add more than batch-size to a single PutMetricData request
		for start := 0; start < len(datums); start += client.batchSize {
			end := start + client.batchSize
			if end > len(datums) {
				end = len(datums)
			}
			if err := client.putBatch(ctx, ns, datums[start:end]); err != nil {
				errs = append(errs, err)
				if ctx.Err() != nil {
					return cwstatsd.NewPublishError(BackendName, errs)
				}
			}
		}
	}
	return cwstatsd.NewPublishError(BackendName, errs)
}

func (client *Client) putBatch(ctx context.Context, namespace string, datums []*cloudwatch.MetricDatum) error {
	input := &cloudwatch.PutMetricDataInput{
		MetricData: datums,
		Namespace:  aws.String(namespace),
	}
	statser := stats.FromContext(ctx)
	timer := statser.NewTimer("publisher." + BackendName + ".put_time")
	defer timer.Stop()

	err := util.Retry(ctx, client.backoff, func() error {
		if err := client.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		_, err := client.cloudwatch.PutMetricDataWithContext(ctx, input)
		if err != nil && isPermanent(err) {
			return backoff.Permanent(err)
		}
		return err
	}, func(err error, next time.Duration) {
		atomic.AddUint64(&client.batchesRetried, 1)
		client.logger.WithError(err).WithField("namespace", namespace).Warnf("PutMetricData failed, retrying in %v", next)
	})
	if err != nil {
		atomic.AddUint64(&client.batchesFailed, 1)
		return fmt.Errorf("namespace %s: %w", namespace, err)
	}
	atomic.AddUint64(&client.batchesSent, 1)
	atomic.AddUint64(&client.datumsSent, uint64(len(datums)))
	return nil
}

// isPermanent returns true if err is a validation error, which will fail again if retried.
func isPermanent(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case request.InvalidParameterErrCode,
		request.ParamRequiredErrCode,
		cloudwatch.ErrCodeInvalidParameterValueException,
		cloudwatch.ErrCodeInvalidParameterCombinationException,
		cloudwatch.ErrCodeMissingRequiredParameterException:
		return true
	}
	return false
}

// Run emits publisher metrics after every flush until ctx is done.
func (client *Client) Run(ctx context.Context) {
	statser := stats.FromContext(ctx)
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	var prevSent, prevFailed, prevRetried, prevDatums uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			sent := atomic.LoadUint64(&client.batchesSent)
			failed := atomic.LoadUint64(&client.batchesFailed)
			retried := atomic.LoadUint64(&client.batchesRetried)
			datums := atomic.LoadUint64(&client.datumsSent)
			statser.Count("publisher."+BackendName+".batches_sent", float64(sent-prevSent))
			statser.Count("publisher."+BackendName+".batches_failed", float64(failed-prevFailed))
			statser.Count("publisher."+BackendName+".batches_retried", float64(retried-prevRetried))
			statser.Count("publisher."+BackendName+".datums_sent", float64(datums-prevDatums))
			prevSent, prevFailed, prevRetried, prevDatums = sent, failed, retried, datums
		}
	}
}

// Name returns the name of the backend.
func (*Client) Name() string {
	return BackendName
}
