package stats

import (
	"time"
)

// Timer times an operation and reports it as a timing metric.
type Timer struct {
	statser   Statser
	name      string
	startTime time.Time
	stopped   bool
}

func newTimer(statser Statser, name string) *Timer {
	return &Timer{
		statser:   statser,
		name:      name,
		startTime: time.Now(),
	}
}

// Stop stops the timer and sends the elapsed time in milliseconds.  Calling Stop more than once has no effect.
func (t *Timer) Stop() {
	t.SendWithName(t.name)
}

// SendWithName stops the timer and sends the elapsed time under a different name.  This is useful
// when the outcome of the operation is only known after it completes.
func (t *Timer) SendWithName(name string) {
	if t.stopped {
		return
	}
	t.stopped = true
	t.statser.TimingDuration(name, time.Since(t.startTime))
}
