package clock

import "time"

// Backoff decides how long to wait before retry number attempt (starting at
// zero).
type Backoff interface {
	Next(attempt int) time.Duration
}

// ConstantBackoff waits the same duration before every retry.
type ConstantBackoff time.Duration

func (b ConstantBackoff) Next(int) time.Duration {
	return time.Duration(b)
}

// ExponentialBackoff grows the wait by Multiplier on each attempt, starting
// at Initial and never exceeding Max.
type ExponentialBackoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
}

func (b ExponentialBackoff) Next(attempt int) time.Duration {
	d := float64(b.Initial)
	for i := 0; i < attempt; i++ {
		d *= b.Multiplier
		if b.Max > 0 && d >= float64(b.Max) {
			return b.Max
		}
	}
	if b.Max > 0 && time.Duration(d) > b.Max {
		return b.Max
	}
	return time.Duration(d)
}
