// Package clock abstracts the passage of time so that hold durations, retry
// backoff and idle pacing can be exercised in tests without real delays.
package clock

import (
	"context"
	"time"
)

// Clock provides the time operations used by the controller and its
// collaborators.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses the calling goroutine for d. It cannot be interrupted.
	Sleep(d time.Duration)

	// SleepContext pauses the calling goroutine for d or until ctx is done,
	// whichever happens first, returning ctx.Err() in the latter case.
	SleepContext(ctx context.Context, d time.Duration) error

	// After returns a channel that receives the current time once d has
	// elapsed.
	After(d time.Duration) <-chan time.Time
}

// Real returns a Clock backed by the time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

func (realClock) SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
