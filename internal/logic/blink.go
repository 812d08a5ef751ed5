package logic

import "time"

// Blinker drives one indicator lamp. While its flag is set the lamp toggles
// whenever Interval has elapsed since the previous toggle; the first toggle
// happens on the tick the flag is first seen. A cleared flag forces the lamp
// off and rewinds the phase.
type Blinker struct {
	Interval time.Duration

	lit        bool
	lastToggle time.Time
}

// NewBlinker returns a Blinker toggling every interval.
func NewBlinker(interval time.Duration) *Blinker {
	return &Blinker{Interval: interval}
}

// Tick returns the lamp level for the given flag at time now.
func (b *Blinker) Tick(flag bool, now time.Time) bool {
	if !flag {
		b.lit = false
		b.lastToggle = time.Time{}
		return false
	}
	if b.lastToggle.IsZero() || now.Sub(b.lastToggle) >= b.Interval {
		b.lit = !b.lit
		b.lastToggle = now
	}
	return b.lit
}

// Lit reports the current lamp level.
func (b *Blinker) Lit() bool {
	return b.lit
}
