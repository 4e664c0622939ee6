package statsd

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/internal/util"
	"github.com/jc2k/cwstatsd/pkg/healthcheck"
	"github.com/jc2k/cwstatsd/pkg/stats"
	putil "github.com/jc2k/cwstatsd/pkg/util"
)

// Snapshotter produces the snapshot of a closed window.
type Snapshotter interface {
	Snapshot() *cwstatsd.Snapshot
}

// MetricFlusher periodically takes a snapshot from the aggregator and hands it to every publisher.
//
// Only one publish may be outstanding.  If a tick fires while the previous publish is still running the
// tick is skipped, no snapshot is taken and metrics keep folding into the current window.
type MetricFlusher struct {
	// Counter fields below must be read/written only using atomic instructions.
	// 64-bit fields must be the first fields in the struct to guarantee proper memory alignment.
	// See https://golang.org/pkg/sync/atomic/#pkg-note-BUG
	lastFlush      int64 // Last time a flush succeeded. Unix timestamp in nsec.
	lastFlushError int64 // Time of the last flush error. Unix timestamp in nsec.
	flushes        uint64
	skipped        uint64
	failed         uint64
	failedFlag     stats.ChangeGauge

	logger         logrus.FieldLogger
	flushInterval  time.Duration // How often to flush metrics to the publishers
	flushOffset    time.Duration // Offset for when to flush if alignment is enabled
	flushAligned   bool          // Indicate if flush is aligned to the interval or not
	publishTimeout time.Duration // Upper bound on a single publish
	snapshotter    Snapshotter
	publishers     []cwstatsd.Publisher

	publishing putil.Semaphore // One slot, held while a publish is outstanding
	wg         sync.WaitGroup  // Tracks background publishes

	inflightMu     sync.Mutex
	cancelInflight context.CancelFunc // Cancels publishes started by Run
}

// FlusherStats holds statistics for a MetricFlusher.
type FlusherStats struct {
	LastFlush      time.Time
	LastFlushError time.Time
	Flushes        uint64
	Skipped        uint64
	Failed         uint64
}

// NewMetricFlusher creates a new MetricFlusher with provided configuration.
func NewMetricFlusher(
	logger logrus.FieldLogger,
	flushInterval, flushOffset time.Duration,
	aligned bool,
	publishTimeout time.Duration,
	snapshotter Snapshotter,
	publishers []cwstatsd.Publisher,
) *MetricFlusher {
	return &MetricFlusher{
		logger:         logger,
		flushInterval:  flushInterval,
		flushOffset:    flushOffset,
		flushAligned:   aligned,
		publishTimeout: publishTimeout,
		snapshotter:    snapshotter,
		publishers:     publishers,
		publishing:     putil.NewSemaphore(1),
	}
}

// Run flushes every interval until ctx is done.  It waits for an outstanding publish before returning,
// which Abort cuts short.
func (f *MetricFlusher) Run(ctx context.Context) {
	// A publish in progress outlives ctx, bounded by the publish timeout or Abort.
	inflightCtx, cancelInflight := context.WithCancel(valueOnlyContext{ctx})
	defer cancelInflight()
	f.inflightMu.Lock()
	f.cancelInflight = cancelInflight
	f.inflightMu.Unlock()
	defer f.wg.Wait()

	ticker := util.NewTicker(ctx, f.flushInterval, f.flushOffset, f.flushAligned)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !f.publishing.TryAcquire() {
				atomic.AddUint64(&f.skipped, 1)
				stats.FromContext(ctx).Increment("flusher.skipped")
				f.logger.Warn("Previous publish still in progress, skipping flush")
				continue
			}
			snapshot := f.snapshotter.Snapshot()
			f.wg.Add(1)
			go func() {
				defer f.wg.Done()
				defer f.publishing.Release()
				_ = f.publish(inflightCtx, snapshot)
			}()
		}
	}
}

// Abort cancels any outstanding publish started by Run.
func (f *MetricFlusher) Abort() {
	f.inflightMu.Lock()
	cancel := f.cancelInflight
	f.inflightMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Flush waits for any outstanding publish, then takes a snapshot and publishes it synchronously.  It is
// used for the final flush on shutdown, and is bounded by ctx.
func (f *MetricFlusher) Flush(ctx context.Context) error {
	if !f.publishing.Acquire(ctx) {
		return fmt.Errorf("waiting for outstanding publish: %w", ctx.Err())
	}
	defer f.publishing.Release()
	return f.publish(ctx, f.snapshotter.Snapshot())
}

// publish sends snapshot to every publisher concurrently, bounded by the publish timeout.
func (f *MetricFlusher) publish(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
	statser := stats.FromContext(ctx)
	timer := statser.NewTimer("flusher.total_time")
	defer timer.Stop()
	defer statser.NotifyFlush(ctx, snapshot.Interval)

	publishCtx := ctx
	if f.publishTimeout > 0 {
		var cancel context.CancelFunc
		publishCtx, cancel = clock.TimeoutContext(ctx, f.publishTimeout)
		defer cancel()
	}

	errs := make([]error, len(f.publishers))
	var wg sync.WaitGroup
	wg.Add(len(f.publishers))
	for i, p := range f.publishers {
		go func(i int, p cwstatsd.Publisher) {
			defer wg.Done()
			if err := p.Publish(publishCtx, snapshot); err != nil {
				errs[i] = fmt.Errorf("%s: %w", p.Name(), err)
			}
		}(i, p)
	}
	wg.Wait()

	err := cwstatsd.NewPublishError("flusher", errs)
	f.handleSendResult(err)
	atomic.AddUint64(&f.flushes, 1)
	return err
}

func (f *MetricFlusher) handleSendResult(err error) {
	timestampPointer := &f.lastFlush
	if err != nil {
		timestampPointer = &f.lastFlushError
		atomic.AddUint64(&f.failed, 1)
		atomic.StoreUint64(&f.failedFlag.Cur, 1)
		if !errors.Is(err, context.Canceled) {
			f.logger.WithError(err).Error("Publishing metrics failed")
		}
	} else {
		atomic.StoreUint64(&f.failedFlag.Cur, 0)
	}
	atomic.StoreInt64(timestampPointer, time.Now().UnixNano())
}

// GetStats returns current flusher stats. Safe for concurrent use.
func (f *MetricFlusher) GetStats() FlusherStats {
	return FlusherStats{
		LastFlush:      time.Unix(0, atomic.LoadInt64(&f.lastFlush)),
		LastFlushError: time.Unix(0, atomic.LoadInt64(&f.lastFlushError)),
		Flushes:        atomic.LoadUint64(&f.flushes),
		Skipped:        atomic.LoadUint64(&f.skipped),
		Failed:         atomic.LoadUint64(&f.failed),
	}
}

// RunMetrics emits flusher metrics after every flush until ctx is done.
func (f *MetricFlusher) RunMetrics(ctx context.Context, statser stats.Statser) {
	flushed, unregister := statser.RegisterFlush()
	defer unregister()

	for {
		select {
		case <-ctx.Done():
			return
		case <-flushed:
			f.failedFlag.SendIfChanged(statser, "flusher.last_publish_failed")
		}
	}
}

// DeepChecks returns a check which fails if the most recent flush failed, or if nothing
// has been flushed for three intervals.
func (f *MetricFlusher) DeepChecks() []healthcheck.HealthcheckFunc {
	return []healthcheck.HealthcheckFunc{f.checkLastFlush}
}

func (f *MetricFlusher) checkLastFlush() (string, healthcheck.HealthyStatus) {
	s := f.GetStats()
	if s.Flushes == 0 {
		return "no flush yet", healthcheck.Healthy
	}
	if s.LastFlushError.After(s.LastFlush) {
		return fmt.Sprintf("last flush failed at %s", s.LastFlushError.Format(time.RFC3339)), healthcheck.Unhealthy
	}
	if f.flushInterval > 0 && time.Since(s.LastFlush) > 3*f.flushInterval {
		return fmt.Sprintf("no successful flush since %s", s.LastFlush.Format(time.RFC3339)), healthcheck.Unhealthy
	}
	return fmt.Sprintf("last flush at %s", s.LastFlush.Format(time.RFC3339)), healthcheck.Healthy
}

// valueOnlyContext keeps the values of a context, such as the clock and statser, but not its cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (time.Time, bool) { return time.Time{}, false }
func (valueOnlyContext) Done() <-chan struct{}       { return nil }
func (valueOnlyContext) Err() error                  { return nil }
