package clock

import (
	"sync"
	"time"
)

// Clock supplies the current time to the engines
type Clock interface {
	Now() time.Time
}

// System is the wall clock
type System struct{}

// Now returns time.Now()
func (System) Now() time.Time {
	return time.Now()
}

// Fixed is a settable clock for tests and replay tooling
type Fixed struct {
	mu  sync.RWMutex
	now time.Time
}

// NewFixed creates a clock stopped at t
func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

// Now returns the stored time
func (f *Fixed) Now() time.Time {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.now
}

// Set moves the clock to t
func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

// Advance moves the clock forward by d
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
