package fixtures

import (
	"context"
	"testing"
	"time"

	"github.com/tilinna/clock"
)

// MockClockContext returns a context carrying a mock clock set to start.  The context is canceled after timeout of
// wall time, or when the test finishes.
func MockClockContext(t testing.TB, start time.Time, timeout time.Duration) (context.Context, *clock.Mock) {
	clck := clock.NewMock(start)
	ctx, cancel := context.WithTimeout(clock.Context(context.Background(), clck), timeout)
	t.Cleanup(cancel)
	return ctx, clck
}

// NextStep will advance the supplied clock.Mock until it moves, or the context.Context is canceled (which typically
// means it timed out in wall-time).  This is useful when testing things that exist inside goroutines, when it's not
// possible to tell when the goroutine is ready to consume mock time.
func NextStep(ctx context.Context, clck *clock.Mock) {
	for _, d := clck.AddNext(); d == 0 && ctx.Err() == nil; _, d = clck.AddNext() {
		time.Sleep(1) // Allows the system to actually idle, runtime.Gosched() does not.
	}
}
