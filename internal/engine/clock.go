package engine

import (
	"sync/atomic"
	"time"
)

// TimeSource supplies the environment's notion of current time as unix
// seconds. Ledger timestamps and deposit events are stamped from it.
type TimeSource interface {
	Now() int64
}

// WallClock reads the system clock.
type WallClock struct{}

// Now returns the current unix time in seconds.
func (WallClock) Now() int64 {
	return time.Now().Unix()
}

// Clock is a monotonic logical clock for run-loop tickets.
//
// Every enqueued request is stamped with a strictly increasing ticket from
// this clock, so log lines from the run loop can be ordered without
// relying on wall-clock time.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// NewClockAt creates a new clock starting at a specific sequence number.
func NewClockAt(start int64) *Clock {
	c := &Clock{}
	c.seq.Store(start)
	return c
}

// Next returns the next sequence number and increments the clock.
// Calls are linearizable - each call returns a unique, increasing value.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
