// Package schedule paces repeated work against a clock instead of sleeping.
package schedule

import (
	"context"
	"time"
)

// Pacer blocks until the next tick.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Ticker is a Pacer backed by time.Ticker. Ticks missed while the caller was
// busy are dropped, so slow work never causes a burst of catch-up ticks.
type Ticker struct {
	ticker *time.Ticker
}

func NewTicker(interval time.Duration) *Ticker {
	return &Ticker{ticker: time.NewTicker(interval)}
}

func (t *Ticker) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ticker.C:
		return nil
	}
}

func (t *Ticker) Stop() {
	t.ticker.Stop()
}

// Immediate never waits. It still honors cancellation.
type Immediate struct{}

func (Immediate) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Factory creates a Pacer for one run; stop releases it.
type Factory func() (p Pacer, stop func())

// Every returns a Factory producing Tickers at interval.
func Every(interval time.Duration) Factory {
	return func() (Pacer, func()) {
		t := NewTicker(interval)
		return t, t.Stop
	}
}

// NoDelay returns a Factory producing Immediate pacers.
func NoDelay() Factory {
	return func() (Pacer, func()) {
		return Immediate{}, func() {}
	}
}

// Loop calls fn on every tick until ctx is done.
func Loop(ctx context.Context, p Pacer, fn func(ctx context.Context)) {
	for {
		if err := p.Wait(ctx); err != nil {
			return
		}
		fn(ctx)
	}
}
