package timerq

import (
	"sync"
	"time"
)

// TimeTraits describes the clock a Queue is keyed on.
type TimeTraits[T any] interface {
	// current time in this clock domain
	Now() T

	// t shifted by d
	Add(t T, d time.Duration) T

	// whether a is strictly before b
	Less(a, b T) bool

	// a - b
	Sub(a, b T) time.Duration

	// projection onto wall time, used to order deadlines across queues of different domains
	ToTime(t T) time.Time
}

// SystemTraits keys timers on time.Time as returned by time.Now.
type SystemTraits struct{}

func (SystemTraits) Now() time.Time                             { return time.Now() }
func (SystemTraits) Add(t time.Time, d time.Duration) time.Time { return t.Add(d) }
func (SystemTraits) Less(a, b time.Time) bool                   { return a.Before(b) }
func (SystemTraits) Sub(a, b time.Time) time.Duration           { return a.Sub(b) }
func (SystemTraits) ToTime(t time.Time) time.Time               { return t }

// MonotonicTraits keys timers on the elapsed steady time since the traits were created,
// unaffected by wall clock adjustments.
type MonotonicTraits struct {
	epoch time.Time
}

func NewMonotonicTraits() *MonotonicTraits {
	return &MonotonicTraits{
		epoch: time.Now(),
	}
}

func (m *MonotonicTraits) Now() time.Duration                                 { return time.Since(m.epoch) }
func (m *MonotonicTraits) Add(t time.Duration, d time.Duration) time.Duration { return t + d }
func (m *MonotonicTraits) Less(a, b time.Duration) bool                       { return a < b }
func (m *MonotonicTraits) Sub(a, b time.Duration) time.Duration               { return a - b }
func (m *MonotonicTraits) ToTime(t time.Duration) time.Time                   { return m.epoch.Add(t) }

// ManualClock is a time.Time clock that only moves when told to.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{
		now: start,
	}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

// Set jumps the clock to t, backwards included.
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *ManualClock) Add(t time.Time, d time.Duration) time.Time { return t.Add(d) }
func (c *ManualClock) Less(a, b time.Time) bool                   { return a.Before(b) }
func (c *ManualClock) Sub(a, b time.Time) time.Duration           { return a.Sub(b) }
func (c *ManualClock) ToTime(t time.Time) time.Time               { return t }
