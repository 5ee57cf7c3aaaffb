package session

import (
	"sync"
	"sync/atomic"
)

// Gate converts a fixed number of initialization signals into a single ready
// notification per cycle. It counts completed attempts, not successes.
type Gate struct {
	required int32
	onReady  func()

	mu      sync.Mutex
	current *Cycle
}

// Cycle is one initialization round. Signals on a superseded cycle are ignored.
type Cycle struct {
	gate      *Gate
	remaining atomic.Int32
}

func NewGate(required int, onReady func()) *Gate {
	if required <= 0 {
		required = 1
	}
	return &Gate{required: int32(required), onReady: onReady}
}

// Reset starts a new cycle. prepare runs while no ready notification can fire,
// so callers can move the session back to Init atomically with the reset.
func (g *Gate) Reset(prepare func()) *Cycle {
	c := &Cycle{gate: g}
	c.remaining.Store(g.required)

	g.mu.Lock()
	defer g.mu.Unlock()
	if prepare != nil {
		prepare()
	}
	g.current = c
	return c
}

// Outstanding is the number of signals the current cycle still waits for.
func (g *Gate) Outstanding() int {
	g.mu.Lock()
	c := g.current
	g.mu.Unlock()
	if c == nil {
		return int(g.required)
	}
	n := c.remaining.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// Signal records one completed initialization attempt. It reports whether this
// signal completed the current cycle.
func (c *Cycle) Signal() bool {
	if c.remaining.Add(-1) != 0 {
		return false
	}
	g := c.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.current != c {
		return false
	}
	if g.onReady != nil {
		g.onReady()
	}
	return true
}

// Current reports whether c is still the active cycle.
func (c *Cycle) Current() bool {
	g := c.gate
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.current == c
}
