package clock

import (
	"context"
	"sync"
	"time"
)

// Fake is a Clock whose time only moves when something waits on it. Every
// Sleep, SleepContext and After call advances the clock by the requested
// duration immediately, so code that blocks on time runs to completion
// without real delays while still observing consistent timestamps.
//
// Fake is safe for concurrent use.
type Fake struct {
	mu      sync.Mutex
	current time.Time
	waits   []time.Duration

	// OnWait, when set, is called after every wait with the duration waited.
	// Tests use it to change collaborator state between retries.
	OnWait func(d time.Duration)
}

// NewFake returns a Fake clock set to initial.
func NewFake(initial time.Time) *Fake {
	return &Fake{current: initial}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.current
}

func (f *Fake) Sleep(d time.Duration) {
	f.wait(d)
}

func (f *Fake) SleepContext(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.wait(d)
	return ctx.Err()
}

func (f *Fake) After(d time.Duration) <-chan time.Time {
	f.wait(d)
	c := make(chan time.Time, 1)
	c <- f.Now()
	return c
}

// Advance moves the clock forward by d without recording a wait.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = f.current.Add(d)
}

// Waits returns every duration waited on so far, in order.
func (f *Fake) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

func (f *Fake) wait(d time.Duration) {
	f.mu.Lock()
	if d > 0 {
		f.current = f.current.Add(d)
	}
	f.waits = append(f.waits, d)
	hook := f.OnWait
	f.mu.Unlock()

	if hook != nil {
		hook(d)
	}
}
