package stats

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jc2k/cwstatsd"
)

func TestInternalStatserRecordsWithNamespace(t *testing.T) {
	t.Parallel()
	cr := &capturingRecorder{}
	is := NewInternalStatser("statsd", cr)

	is.Gauge("g", 2)
	is.Count("c", 3)
	is.Increment("i")
	is.TimingDuration("t", 1500*time.Microsecond)

	ms := cr.Metrics()
	require.Len(t, ms, 4)
	assert.Equal(t, "statsd.g", ms[0].Name)
	assert.Equal(t, cwstatsd.GAUGE, ms[0].Type)
	assert.Equal(t, "statsd.c", ms[1].Name)
	assert.EqualValues(t, 3, ms[1].Value)
	assert.Equal(t, cwstatsd.COUNTER, ms[2].Type)
	assert.EqualValues(t, 1, ms[2].Value)
	assert.Equal(t, cwstatsd.TIMER, ms[3].Type)
	assert.EqualValues(t, 1.5, ms[3].Value)
	for _, m := range ms {
		assert.EqualValues(t, 1, m.Rate)
	}
}

func TestInternalStatserNoNamespace(t *testing.T) {
	t.Parallel()
	cr := &capturingRecorder{}
	NewInternalStatser("", cr).Increment("i")
	require.Len(t, cr.Metrics(), 1)
	assert.Equal(t, "i", cr.Metrics()[0].Name)
}

func TestTimerStopSendsOnce(t *testing.T) {
	t.Parallel()
	cs := &countingStatser{}
	tm := cs.NewTimer("t")
	tm.Stop()
	tm.Stop()
	tm.SendWithName("other")
	assert.EqualValues(t, 1, cs.timers)
}

func TestFlushNotifier(t *testing.T) {
	t.Parallel()
	ns := NewNullStatser()
	ch, unregister := ns.RegisterFlush()

	done := make(chan time.Duration, 1)
	go func() {
		done <- <-ch
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// the receiver may not be ready yet, notifications are dropped in that case
	for {
		ns.NotifyFlush(ctx, time.Second)
		select {
		case d := <-done:
			assert.Equal(t, time.Second, d)
			unregister()
			return
		case <-ctx.Done():
			t.Fatal("no flush notification received")
		case <-time.After(time.Millisecond):
		}
	}
}

func TestHeartBeater(t *testing.T) {
	t.Parallel()
	cr := &capturingRecorder{}
	is := NewInternalStatser("statsd", cr)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	hbCtx, hbCancel := context.WithCancel(NewContext(ctx, is))
	hbDone := make(chan struct{})
	go func() {
		defer close(hbDone)
		NewHeartBeater("heartbeat").Run(hbCtx)
	}()

	for len(cr.Metrics()) == 0 {
		is.NotifyFlush(ctx, time.Second)
		select {
		case <-ctx.Done():
			t.Fatal("no heartbeat received")
		case <-time.After(time.Millisecond):
		}
	}
	hbCancel()
	<-hbDone

	m := cr.Metrics()[0]
	assert.Equal(t, "statsd.heartbeat", m.Name)
	assert.Equal(t, cwstatsd.COUNTER, m.Type)
}
