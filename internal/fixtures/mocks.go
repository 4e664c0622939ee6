package fixtures

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/jc2k/cwstatsd"
)

// MockPublisher implements cwstatsd.Publisher.  Unset functions fail the test if called.
type MockPublisher struct {
	TB testing.TB

	FnName    func() string
	FnPublish func(ctx context.Context, snapshot *cwstatsd.Snapshot) error
}

func (m *MockPublisher) Name() string {
	if m.FnName != nil {
		return m.FnName()
	}
	return "mock"
}

func (m *MockPublisher) Publish(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
	if m.FnPublish != nil {
		return m.FnPublish(ctx, snapshot)
	}
	assert.Fail(m.TB, "Publisher.Publish must not be called")
	return nil
}

// CapturingPublisher records every published snapshot.
type CapturingPublisher struct {
	mu        sync.Mutex
	snapshots []*cwstatsd.Snapshot
	published chan struct{}
}

func NewCapturingPublisher() *CapturingPublisher {
	return &CapturingPublisher{
		published: make(chan struct{}, 1000),
	}
}

func (cp *CapturingPublisher) Name() string {
	return "capturing"
}

func (cp *CapturingPublisher) Publish(ctx context.Context, snapshot *cwstatsd.Snapshot) error {
	cp.mu.Lock()
	cp.snapshots = append(cp.snapshots, snapshot)
	cp.mu.Unlock()
	select {
	case cp.published <- struct{}{}:
	default:
	}
	return nil
}

// Published is signalled once for every Publish call.
func (cp *CapturingPublisher) Published() <-chan struct{} {
	return cp.published
}

func (cp *CapturingPublisher) Snapshots() []*cwstatsd.Snapshot {
	cp.mu.Lock()
	defer cp.mu.Unlock()
	return append([]*cwstatsd.Snapshot(nil), cp.snapshots...)
}

// Merged combines all published counters, timer counts and set cardinalities by name, and keeps the
// last value of each gauge.
func (cp *CapturingPublisher) Merged() *cwstatsd.Snapshot {
	merged := cwstatsd.NewSnapshot(time.Time{}, 0)
	for _, s := range cp.Snapshots() {
		merged.Interval += s.Interval
		for name, c := range s.Counters {
			mc := merged.Counters[name]
			mc.Value += c.Value
			merged.Counters[name] = mc
		}
		for name, g := range s.Gauges {
			merged.Gauges[name] = g
		}
		for name, tm := range s.Timers {
			mt := merged.Timers[name]
			mt.Count += tm.Count
			mt.Samples += tm.Samples
			mt.Sum += tm.Sum
			merged.Timers[name] = mt
		}
		for name, set := range s.Sets {
			ms := merged.Sets[name]
			ms.Cardinality += set.Cardinality
			merged.Sets[name] = ms
		}
	}
	return merged
}
