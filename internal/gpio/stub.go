//go:build !linux

package gpio

import (
	"errors"
	"time"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errUnsupported
}

// Close is a no-op on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// LineInput is not available on non-Linux platforms.
type LineInput struct{}

// Input returns an error on non-Linux platforms.
func (c *Chip) Input(offset int) (*LineInput, error) { return nil, errUnsupported }

// Read is not implemented on non-Linux platforms.
func (l *LineInput) Read() (bool, error) { return false, errUnsupported }

// Close is a no-op on non-Linux platforms.
func (l *LineInput) Close() error { return nil }

// LineOutput is not available on non-Linux platforms.
type LineOutput struct{}

// Output returns an error on non-Linux platforms.
func (c *Chip) Output(offset int, activeLow bool) (*LineOutput, error) { return nil, errUnsupported }

// Set is not implemented on non-Linux platforms.
func (l *LineOutput) Set(on bool) error { return errUnsupported }

// Close is a no-op on non-Linux platforms.
func (l *LineOutput) Close() error { return nil }

// EdgeLine is not available on non-Linux platforms.
type EdgeLine struct{}

// RisingEdges returns an EdgeLine whose Watch always fails.
func (c *Chip) RisingEdges(offset int) *EdgeLine { return &EdgeLine{} }

// Watch is not implemented on non-Linux platforms.
func (e *EdgeLine) Watch(fn func(ts time.Time)) error { return errUnsupported }

// Close is a no-op on non-Linux platforms.
func (e *EdgeLine) Close() error { return nil }
