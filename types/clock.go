package types

import (
	"sort"
	"sync"
	"time"
)

// CycleLength is the fixed wall-clock cycle of signals and market expiry
const CycleLength = 15 * time.Minute

// CycleStart returns the start of the cycle containing t
func CycleStart(t time.Time) time.Time {
	return t.UTC().Truncate(CycleLength)
}

// CycleID identifies a cycle by the unix seconds of its start
func CycleID(t time.Time) int64 {
	return CycleStart(t).Unix()
}

// NextBoundary returns the start of the next cycle after t
func NextBoundary(t time.Time) time.Time {
	return CycleStart(t).Add(CycleLength)
}

// MinuteInCycle returns 0..14
func MinuteInCycle(t time.Time) int {
	return t.UTC().Minute() % int(CycleLength/time.Minute)
}

// Clock abstracts time so loops can be driven by tests
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// SystemClock is the wall clock
type SystemClock struct{}

func (SystemClock) Now() time.Time                         { return time.Now() }
func (SystemClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// ═══════════════════════════════════════════════════════════════════════════════
// MANUAL CLOCK - deterministic time for tests and replays
// ═══════════════════════════════════════════════════════════════════════════════

type waiter struct {
	deadline time.Time
	ch       chan time.Time
}

// ManualClock only moves when Advance or Set is called
type ManualClock struct {
	mu      sync.Mutex
	cond    *sync.Cond
	now     time.Time
	waiters []waiter
}

// NewManualClock starts at t
func NewManualClock(t time.Time) *ManualClock {
	c := &ManualClock{now: t}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan time.Time, 1)
	deadline := c.now.Add(d)
	if d <= 0 {
		ch <- c.now
		return ch
	}
	c.waiters = append(c.waiters, waiter{deadline: deadline, ch: ch})
	c.cond.Broadcast()
	return ch
}

// Advance moves time forward and fires every due timer in deadline order
func (c *ManualClock) Advance(d time.Duration) {
	c.Set(c.Now().Add(d))
}

// Set jumps to t (never backwards)
func (c *ManualClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if t.Before(c.now) {
		return
	}
	c.now = t

	sort.Slice(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	pending := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.deadline.After(t) {
			w.ch <- t
			continue
		}
		pending = append(pending, w)
	}
	c.waiters = pending
}

// BlockUntil waits until at least n goroutines are parked on After
func (c *ManualClock) BlockUntil(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.waiters) < n {
		c.cond.Wait()
	}
}

// Waiters returns the number of pending timers
func (c *ManualClock) Waiters() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.waiters)
}
