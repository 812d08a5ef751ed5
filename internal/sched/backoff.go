package sched

import "time"

// Backoff is the explicit retry policy applied after a faulted step. The
// first retry waits Base; each further consecutive fault doubles the wait up
// to Max. A successful step resets it.
type Backoff struct {
	Base time.Duration
	Max  time.Duration

	faults int
	delay  time.Duration
}

// NewBackoff returns a Backoff starting at base and capped at max.
// A max below base is raised to base.
func NewBackoff(base, max time.Duration) *Backoff {
	if max < base {
		max = base
	}
	return &Backoff{Base: base, Max: max}
}

// Fault records a failed step and returns the delay before the next attempt.
func (b *Backoff) Fault() time.Duration {
	b.faults++
	if b.delay == 0 {
		b.delay = b.Base
	} else {
		b.delay *= 2
	}
	if b.delay > b.Max {
		b.delay = b.Max
	}
	return b.delay
}

// Success clears the fault streak.
func (b *Backoff) Success() {
	b.faults = 0
	b.delay = 0
}

// Faults returns the number of consecutive faults.
func (b *Backoff) Faults() int {
	return b.faults
}

// Delay returns the delay most recently handed out, or 0 after a success.
func (b *Backoff) Delay() time.Duration {
	return b.delay
}
