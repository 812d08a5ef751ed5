// Package gpio provides GPIO line access with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementations allow testing without hardware.
package gpio

import "time"

// Input reads the raw electrical level of one line.
type Input interface {
	// Read returns true when the line is electrically high.
	Read() (bool, error)

	// Close releases the line.
	Close() error
}

// Output drives one relay or lamp line. Set is fire-and-forget: the
// hardware gives no acknowledgment beyond the ioctl succeeding.
type Output interface {
	// Set energizes (true) or de-energizes (false) the load.
	Set(on bool) error

	// Close de-energizes and releases the line.
	Close() error
}

// EdgeSource delivers rising-edge callbacks. The callback runs on a
// goroutine owned by the source, not the scheduler.
type EdgeSource interface {
	// Watch starts delivering edges to fn. It may be called once.
	Watch(fn func(ts time.Time)) error

	// Close stops edge delivery and releases the line.
	Close() error
}
