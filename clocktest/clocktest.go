// Package clocktest provides deterministic Clock/Scheduler fakes for
// exercising the retrying and bundling decorators without real sleeps.
// Per spec.md §9's design note, the fake clock advances synchronously
// whenever an action is scheduled, and records the requested duration for
// assertion — the load-bearing property that lets tests pin exact retry
// and flush timing.
package clocktest

import (
	"sync"
	"time"

	"github.com/bodrovis/lokacall/clock"
)

// FakeClock is a Clock whose Now() is an explicit, advanceable instant.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock returns a FakeClock starting at start.
func NewFakeClock(start time.Time) *FakeClock {
	return &FakeClock{now: start}
}

// Now returns the current fake instant.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the fake instant forward by d and returns the new value.
func (c *FakeClock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return c.now
}

var _ clock.Clock = (*FakeClock)(nil)

// FakeScheduler is a Scheduler that fires its action immediately and
// inline (on the calling goroutine, synchronously), after advancing an
// associated FakeClock by the requested duration. It records every
// requested duration in call order so tests can assert the exact sleep
// sequence a retry or bundle flush produced.
//
// Schedule runs the action before it returns the CancelFunc, so calling
// the CancelFunc never prevents an action from running; it only marks the
// entry as canceled.
type FakeScheduler struct {
	mu       sync.Mutex
	clk      *FakeClock
	Sleeps   []time.Duration
	canceled map[int]bool
	seq      int
}

// NewFakeScheduler returns a FakeScheduler that advances clk on every
// Schedule call before invoking the action.
func NewFakeScheduler(clk *FakeClock) *FakeScheduler {
	return &FakeScheduler{clk: clk, canceled: make(map[int]bool)}
}

// Schedule advances the backing clock by d, then runs action inline
// unless it has already been canceled.
func (s *FakeScheduler) Schedule(d time.Duration, action func()) clock.CancelFunc {
	s.mu.Lock()
	id := s.seq
	s.seq++
	s.Sleeps = append(s.Sleeps, d)
	s.mu.Unlock()

	if s.clk != nil {
		s.clk.Advance(d)
	}

	cancel := func() {
		s.mu.Lock()
		s.canceled[id] = true
		s.mu.Unlock()
	}

	s.mu.Lock()
	already := s.canceled[id]
	s.mu.Unlock()
	if !already {
		action()
	}
	return cancel
}

// Reset clears the recorded sleep history.
func (s *FakeScheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Sleeps = nil
}

var _ clock.Scheduler = (*FakeScheduler)(nil)
