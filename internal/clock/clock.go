// Package clock lets timing-dependent code (invocation timings, batch
// flushes, rate limiting) run against a fake clock in tests.
package clock

import "time"

// Clock is the time source injected into components via WithClock options.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// RealClock reads the system clock.
type RealClock struct{}

// Now returns time.Now().
func (RealClock) Now() time.Time {
	return time.Now()
}

// After returns time.After(d).
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

// OrReal returns c, or RealClock when c is nil.
func OrReal(c Clock) Clock {
	if c == nil {
		return RealClock{}
	}
	return c
}

// Since is the elapsed time on c since start. It never returns a negative
// duration, even when a fake clock is rewound.
func Since(c Clock, start time.Time) time.Duration {
	d := OrReal(c).Now().Sub(start)
	if d < 0 {
		return 0
	}
	return d
}
