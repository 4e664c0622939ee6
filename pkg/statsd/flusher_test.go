package statsd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tilinna/clock"

	"github.com/jc2k/cwstatsd"
	"github.com/jc2k/cwstatsd/internal/fixtures"
	"github.com/jc2k/cwstatsd/pkg/healthcheck"
)

type countingSnapshotter struct {
	calls uint64
}

func (cs *countingSnapshotter) Snapshot() *cwstatsd.Snapshot {
	atomic.AddUint64(&cs.calls, 1)
	return cwstatsd.NewSnapshot(time.Now(), time.Second)
}

func (cs *countingSnapshotter) Calls() uint64 {
	return atomic.LoadUint64(&cs.calls)
}

func TestFlusherPublishesOnTick(t *testing.T) {
	t.Parallel()
	clck := clock.NewMock(time.Unix(1, 0))
	ctx, cancel := context.WithTimeout(clock.Context(context.Background(), clck), 5*time.Second)
	defer cancel()

	ma := NewMetricAggregator(nil, 0)
	require.NoError(t, ma.Record(fixtures.MakeMetric(fixtures.Name("c"), fixtures.Value(5))))
	cp := fixtures.NewCapturingPublisher()
	f := NewMetricFlusher(fixtures.NewTestLogger(t), time.Second, 0, false, time.Second, ma, []cwstatsd.Publisher{cp})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	fixtures.NextStep(ctx, clck)
	select {
	case <-cp.Published():
	case <-ctx.Done():
		require.FailNow(t, "timed out waiting for publish")
	}
	cancel()
	<-done

	snapshots := cp.Snapshots()
	require.Len(t, snapshots, 1)
	assert.Equal(t, 5.0, snapshots[0].Counters["c"].Value)
	s := f.GetStats()
	assert.EqualValues(t, 1, s.Flushes)
	assert.Zero(t, s.Failed)
	assert.True(t, s.LastFlushError.Before(s.LastFlush))
}

func TestFlusherSkipsWhilePublishing(t *testing.T) {
	t.Parallel()
	clck := clock.NewMock(time.Unix(1, 0))
	ctx, cancel := context.WithTimeout(clock.Context(context.Background(), clck), 5*time.Second)
	defer cancel()

	release := make(chan struct{})
	started := make(chan struct{}, 10)
	p := &fixtures.MockPublisher{
		TB: t,
		FnPublish: func(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
			started <- struct{}{}
			<-release
			return nil
		},
	}
	cs := &countingSnapshotter{}
	f := NewMetricFlusher(fixtures.NewTestLogger(t), time.Second, 0, false, 0, cs, []cwstatsd.Publisher{p})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	fixtures.NextStep(ctx, clck)
	select {
	case <-started:
	case <-ctx.Done():
		require.FailNow(t, "timed out waiting for publish")
	}

	require.Eventually(t, func() bool {
		clck.Add(time.Second)
		return f.GetStats().Skipped >= 2
	}, 5*time.Second, time.Millisecond)

	// No snapshot is taken for a skipped tick
	assert.EqualValues(t, 1, cs.Calls())

	// Run waits for the outstanding publish
	cancel()
	select {
	case <-done:
		require.FailNow(t, "Run returned while a publish was outstanding")
	case <-time.After(10 * time.Millisecond):
	}
	close(release)
	<-done

	assert.EqualValues(t, 1, cs.Calls())
	assert.EqualValues(t, 1, f.GetStats().Flushes)
}

func TestFlusherFlushReportsErrors(t *testing.T) {
	t.Parallel()
	failure := errors.New("unavailable")
	good := fixtures.NewCapturingPublisher()
	bad := &fixtures.MockPublisher{
		TB:     t,
		FnName: func() string { return "bad" },
		FnPublish: func(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
			return failure
		},
	}
	f := NewMetricFlusher(fixtures.NewTestLogger(t), time.Second, 0, false, time.Second, &countingSnapshotter{}, []cwstatsd.Publisher{good, bad})

	err := f.Flush(context.Background())
	var pe *cwstatsd.PublishError
	require.True(t, errors.As(err, &pe))
	require.Len(t, pe.Errs, 1)
	assert.ErrorIs(t, pe.Errs[0], failure)
	assert.Contains(t, pe.Errs[0].Error(), "bad")

	// The healthy publisher still received the snapshot
	assert.Len(t, good.Snapshots(), 1)

	s := f.GetStats()
	assert.EqualValues(t, 1, s.Flushes)
	assert.EqualValues(t, 1, s.Failed)

	_, status := f.checkLastFlush()
	assert.Equal(t, healthcheck.Unhealthy, status)
}

func TestFlusherPublishTimeout(t *testing.T) {
	t.Parallel()
	p := &fixtures.MockPublisher{
		TB: t,
		FnPublish: func(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
			<-ctx.Done()
			return ctx.Err()
		},
	}
	f := NewMetricFlusher(fixtures.NewTestLogger(t), time.Second, 0, false, 10*time.Millisecond, &countingSnapshotter{}, []cwstatsd.Publisher{p})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := f.Flush(ctx)
	var pe *cwstatsd.PublishError
	require.True(t, errors.As(err, &pe))
	assert.ErrorIs(t, pe.Errs[0], context.DeadlineExceeded)
	assert.NoError(t, ctx.Err())
}

func TestFlusherAbortCancelsOutstandingPublish(t *testing.T) {
	t.Parallel()
	clck := clock.NewMock(time.Unix(1, 0))
	ctx, cancel := context.WithTimeout(clock.Context(context.Background(), clck), 5*time.Second)
	defer cancel()

	started := make(chan struct{}, 1)
	p := &fixtures.MockPublisher{
		TB: t,
		FnPublish: func(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
			started <- struct{}{}
			<-ctx.Done()
			return ctx.Err()
		},
	}
	f := NewMetricFlusher(fixtures.NewTestLogger(t), time.Second, 0, false, time.Hour, &countingSnapshotter{}, []cwstatsd.Publisher{p})

	done := make(chan struct{})
	go func() {
		defer close(done)
		f.Run(ctx)
	}()

	fixtures.NextStep(ctx, clck)
	select {
	case <-started:
	case <-ctx.Done():
		require.FailNow(t, "timed out waiting for publish")
	}

	// Stopping Run leaves the publish outstanding until it is aborted
	cancel()
	select {
	case <-done:
		require.FailNow(t, "Run returned before the outstanding publish finished")
	case <-time.After(50 * time.Millisecond):
	}

	f.Abort()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "Abort did not cancel the outstanding publish")
	}
	assert.EqualValues(t, 1, f.GetStats().Failed)
}

func TestFlusherHealthyAfterSuccess(t *testing.T) {
	t.Parallel()
	f := NewMetricFlusher(fixtures.NewTestLogger(t), time.Minute, 0, false, time.Second, &countingSnapshotter{}, []cwstatsd.Publisher{fixtures.NewCapturingPublisher()})

	_, status := f.checkLastFlush()
	assert.Equal(t, healthcheck.Healthy, status)

	require.NoError(t, f.Flush(context.Background()))
	checks := f.DeepChecks()
	require.Len(t, checks, 1)
	_, status = checks[0]()
	assert.Equal(t, healthcheck.Healthy, status)
}
