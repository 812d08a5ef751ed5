package logic

import "time"

// Debouncer filters a sampled digital input. A new level is only accepted
// once it has been observed continuously for the debounce duration. A zero
// duration accepts every sample immediately.
type Debouncer struct {
	duration time.Duration

	// Current stable (debounced) level
	stable bool
	// Pending level during debounce
	pending    bool
	hasPending bool
	// Time when pending level was first observed
	pendingSince time.Time
	// Whether a first stable level has been established
	baselined bool
}

// NewDebouncer creates a debouncer with the given duration.
func NewDebouncer(d time.Duration) *Debouncer {
	return &Debouncer{duration: d}
}

// Process takes a new sample and returns the stable level, whether it
// changed on this sample, and whether a baseline has been established.
// Before the baseline exists the returned level is meaningless.
func (d *Debouncer) Process(level bool, now time.Time) (stable, changed, ready bool) {
	if d.baselined && level == d.stable {
		// No change from stable level, clear any pending
		d.hasPending = false
		return d.stable, false, true
	}

	if !d.hasPending || d.pending != level {
		// New pending level
		d.pending = level
		d.pendingSince = now
		d.hasPending = true
	}

	if now.Sub(d.pendingSince) >= d.duration {
		d.stable = level
		d.hasPending = false
		d.baselined = true
		return d.stable, true, true
	}

	return d.stable, false, d.baselined
}

// IsBaselined returns whether a first stable level has been established.
func (d *Debouncer) IsBaselined() bool {
	return d.baselined
}
