package testutil

import "sync"

// DeterministicClock provides a thread-safe monotonic time source for tests.
//
// It stands in for the environment's block time: each call to Now advances
// by a fixed step, so the same scenario produces identical ledger
// timestamps and event logs on every run.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	start int64
	step  int64
	now   int64
}

// NewDeterministicClock creates a clock whose first Now returns start+step.
// A zero step is treated as 1.
func NewDeterministicClock(start, step int64) *DeterministicClock {
	if step == 0 {
		step = 1
	}
	return &DeterministicClock{start: start, step: step, now: start}
}

// Now advances the clock and returns the new unix timestamp.
func (c *DeterministicClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += c.step
	return c.now
}

// Current returns the last timestamp without advancing.
func (c *DeterministicClock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Reset rewinds the clock to its start.
//
// Used for test reuse. After Reset(), the next Now returns start+step.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.start
}

// FixedIDGenerator generates the same execution id every time.
//
// This enables deterministic receipts and golden snapshot comparison.
//
// Thread-safety: FixedIDGenerator is stateless and safe for concurrent use.
type FixedIDGenerator struct {
	id string
}

// NewFixedIDGenerator creates a fixed id generator.
// If id is empty, Generate() returns "test-exec-default".
func NewFixedIDGenerator(id string) *FixedIDGenerator {
	if id == "" {
		id = "test-exec-default"
	}
	return &FixedIDGenerator{id: id}
}

// Generate returns the fixed id.
func (g *FixedIDGenerator) Generate() string {
	return g.id
}
