package util

import (
	"sync"
	"time"
)

type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }

// StepClock is a deterministic clock for tests. After(d) advances the clock by d
// and fires immediately; OnAfter, if set, runs on every step (e.g. to mine a block).
type StepClock struct {
	mu      sync.Mutex
	now     time.Time
	OnAfter func()
}

func NewStepClock(start time.Time) *StepClock {
	return &StepClock{now: start}
}

func (c *StepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *StepClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *StepClock) After(d time.Duration) <-chan time.Time {
	c.Advance(d)
	if c.OnAfter != nil {
		c.OnAfter()
	}
	ch := make(chan time.Time, 1)
	ch <- c.Now()
	return ch
}
