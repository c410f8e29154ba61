package clock

import (
	"sync"
	"time"
)

// FakeClock is a manually driven Clock. Now only moves with Advance, and
// After channels only fire on Fire.
type FakeClock struct {
	mu      sync.Mutex
	now     time.Time
	waiters []chan time.Time
	pending int
}

// NewFakeClock returns a FakeClock reading the Unix epoch.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Unix(0, 0)}
}

// Now returns the fake current time.
func (f *FakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// After returns a channel that receives on the next Fire. A Fire that found
// no waiters is banked and consumed by the next After call.
func (f *FakeClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending > 0 {
		f.pending--
		ch <- f.now
		return ch
	}
	f.waiters = append(f.waiters, ch)
	return ch
}

// Fire releases every channel handed out by After since the last Fire.
func (f *FakeClock) Fire() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.waiters) == 0 {
		f.pending++
		return
	}
	for _, ch := range f.waiters {
		ch <- f.now
	}
	f.waiters = nil
}

// Waiters reports how many After channels are waiting for Fire.
func (f *FakeClock) Waiters() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.waiters)
}

// Advance moves Now forward by d.
func (f *FakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
