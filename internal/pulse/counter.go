// Package pulse counts flow-sensor edges delivered outside the scheduler.
//
// Edge runs on the GPIO event goroutine and may interleave with anything the
// scheduler is doing, so every field is accessed atomically. Drain is a single
// swap: an edge that lands between "read" and "reset" cannot be lost.
package pulse

import (
	"sync/atomic"
	"time"
)

// Counter accumulates rising edges for one sampling window.
type Counter struct {
	count    atomic.Uint32
	total    atomic.Uint64
	lastEdge atomic.Int64 // unix nanoseconds, 0 = never
}

// NewCounter returns an empty counter.
func NewCounter() *Counter {
	return &Counter{}
}

// Edge records one rising edge. It does no other work.
func (c *Counter) Edge(ts time.Time) {
	c.count.Add(1)
	c.total.Add(1)
	c.lastEdge.Store(ts.UnixNano())
}

// Drain returns the pulses counted since the previous Drain and resets the
// window to zero in one indivisible step.
func (c *Counter) Drain() uint32 {
	return c.count.Swap(0)
}

// Pending returns the pulses counted in the current window without resetting.
func (c *Counter) Pending() uint32 {
	return c.count.Load()
}

// Total returns every pulse seen since startup.
func (c *Counter) Total() uint64 {
	return c.total.Load()
}

// LastEdge returns the timestamp of the most recent edge, or the zero time.
func (c *Counter) LastEdge() time.Time {
	ns := c.lastEdge.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
