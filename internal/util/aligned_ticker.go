package util

import (
	"context"
	"time"

	"github.com/tilinna/clock"
)

// Ticker is the common interface of AlignedTicker and a clock.Ticker.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// NewTicker returns an AlignedTicker if aligned is set, otherwise a plain ticker from the clock attached to ctx.
// offset is only used when aligned.
func NewTicker(ctx context.Context, interval, offset time.Duration, aligned bool) Ticker {
	if aligned {
		return NewAlignedTickerWithContext(ctx, interval, offset)
	}
	return clockTicker{clock.FromContext(ctx).NewTicker(interval)}
}

type clockTicker struct {
	*clock.Ticker
}

func (ct clockTicker) Chan() <-chan time.Time {
	return ct.C
}

// AlignedTicker is a ticker which fires on multiples of interval, shifted by offset, so flushes from many hosts
// land in the same CloudWatch period.
//
// Instead of firing at:
// [T+1*interval, T+2*interval, T+3*interval, ...]
//
// It will fire at:
// r = roundup(T-offset, interval)+offset
// [r, r+1*interval, r+2*interval, ...]
//
// The time.Time sent to the channel is the aligned time, rather than the actual time of firing.  A tick which
// can't be delivered because the previous one hasn't been consumed is dropped.
type AlignedTicker struct {
	C        <-chan time.Time
	ch       chan time.Time
	chStop   chan struct{}
	interval time.Duration
	offset   time.Duration
}

// NewAlignedTickerWithContext creates an AlignedTicker using the clock attached to ctx.  The ticker stops when ctx
// is done or Stop is called.
func NewAlignedTickerWithContext(ctx context.Context, interval, offset time.Duration) *AlignedTicker {
	ch := make(chan time.Time, 1)
	at := &AlignedTicker{
		C:        ch,
		ch:       ch,
		chStop:   make(chan struct{}),
		interval: interval,
		offset:   offset,
	}
	go at.run(ctx)
	return at
}

func (at *AlignedTicker) Chan() <-chan time.Time {
	return at.C
}

func (at *AlignedTicker) Stop() {
	close(at.chStop)
}

func (at *AlignedTicker) align(t time.Time) time.Time {
	return t.Add(-at.offset).Truncate(at.interval).Add(at.offset)
}

func (at *AlignedTicker) run(ctx context.Context) {
	clck := clock.FromContext(ctx)
	now := clck.Now()
	first := at.align(now).Add(at.interval)
	tmr := clck.NewTimer(first.Sub(now))
	defer tmr.Stop()

	// Wait for the first aligned instant, then tick from there.
	var tckr *clock.Ticker
	select {
	case t := <-tmr.C:
		tckr = clck.NewTicker(at.interval)
		defer tckr.Stop()
		if !at.send(ctx, t) {
			return
		}
	case <-at.chStop:
		return
	case <-ctx.Done():
		return
	}

	for {
		select {
		case t := <-tckr.C:
			if !at.send(ctx, t) {
				return
			}
		case <-at.chStop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (at *AlignedTicker) send(ctx context.Context, t time.Time) bool {
	select {
	case at.ch <- at.align(t):
		return true
	case <-at.chStop:
		return false
	case <-ctx.Done():
		return false
	default:
		return true
	}
}
