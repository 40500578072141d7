package engine

import "time"

// renderGate rate-limits answer-triggered status renders. State transitions
// bypass the gate via force; only opportunistic re-renders go through allow.
// Callers must hold the owning session's lock.
type renderGate struct {
	interval time.Duration
	last     time.Time
}

// allow reports whether enough time has passed since the last render and,
// if so, consumes the slot.
func (g *renderGate) allow(now time.Time) bool {
	if g.interval <= 0 || g.last.IsZero() || now.Sub(g.last) >= g.interval {
		g.last = now
		return true
	}
	return false
}

// force records a transition-triggered render without consulting the interval.
func (g *renderGate) force(now time.Time) {
	g.last = now
}
