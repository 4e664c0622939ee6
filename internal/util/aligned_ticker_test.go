package util

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jc2k/cwstatsd/internal/fixtures"
)

func at(sec, ms int64) time.Time {
	return time.Unix(sec, ms*int64(time.Millisecond))
}

func nextTick(t *testing.T, ctx context.Context, ch <-chan time.Time) time.Time {
	select {
	case <-ctx.Done():
		require.FailNow(t, "timed out waiting for tick")
		return time.Time{}
	case tick := <-ch:
		return tick
	}
}

func TestAlignedTicker(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		start    time.Time
		offset   time.Duration
		expected []time.Time
	}{
		{name: "already aligned", start: at(1, 0), expected: []time.Time{at(2, 0), at(3, 0)}},
		{name: "rounds up", start: at(1, 500), expected: []time.Time{at(2, 0), at(3, 0)}},
		{name: "offset from aligned", start: at(1, 300), offset: 300 * time.Millisecond, expected: []time.Time{at(2, 300), at(3, 300)}},
		{name: "offset rounds up", start: at(1, 0), offset: 300 * time.Millisecond, expected: []time.Time{at(1, 300), at(2, 300)}},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			ctx, clck := fixtures.MockClockContext(t, tc.start, time.Second)
			tckr := NewAlignedTickerWithContext(ctx, time.Second, tc.offset)
			defer tckr.Stop()

			for _, expected := range tc.expected {
				fixtures.NextStep(ctx, clck)
				require.Equal(t, expected.UnixNano(), nextTick(t, ctx, tckr.C).UnixNano())
			}
		})
	}
}

func TestNewTicker(t *testing.T) {
	t.Parallel()
	t.Run("unaligned ignores offset", func(t *testing.T) {
		t.Parallel()
		ctx, clck := fixtures.MockClockContext(t, at(1, 300), time.Second)
		tckr := NewTicker(ctx, time.Second, 500*time.Millisecond, false)
		defer tckr.Stop()

		clck.Add(time.Second)
		require.Equal(t, at(2, 300).UnixNano(), nextTick(t, ctx, tckr.Chan()).UnixNano())
	})
	t.Run("aligned", func(t *testing.T) {
		t.Parallel()
		ctx, clck := fixtures.MockClockContext(t, at(1, 300), time.Second)
		tckr := NewTicker(ctx, time.Second, 0, true)
		defer tckr.Stop()

		fixtures.NextStep(ctx, clck)
		require.Equal(t, at(2, 0).UnixNano(), nextTick(t, ctx, tckr.Chan()).UnixNano())
	})
}
