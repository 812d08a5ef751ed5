//go:build linux

package gpio

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Chip hands out lines from one Linux GPIO character device.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named chip, e.g. "gpiochip0".
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}
	return &Chip{chip: chip}, nil
}

// Close releases the chip. Lines must be closed separately.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// LineInput is a level input on a real line.
type LineInput struct {
	offset int
	line   *gpiocdev.Line
}

// Input requests offset as an input with pull-up, matching float switches
// that short the line to ground.
func (c *Chip) Input(offset int) (*LineInput, error) {
	line, err := c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullUp)
	if err != nil {
		return nil, fmt.Errorf("request input pin %d: %w", offset, err)
	}
	return &LineInput{offset: offset, line: line}, nil
}

// Read returns the raw electrical level.
func (l *LineInput) Read() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %d: %w", l.offset, err)
	}
	return v == 1, nil
}

// Close releases the line.
func (l *LineInput) Close() error {
	return l.line.Close()
}

// LineOutput is a relay or lamp output on a real line.
type LineOutput struct {
	offset int
	line   *gpiocdev.Line
}

// Output requests offset as an output, initially de-energized. With
// activeLow the electrical level is inverted by the kernel so Set(true)
// still means "energize".
func (c *Chip) Output(offset int, activeLow bool) (*LineOutput, error) {
	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if activeLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	line, err := c.chip.RequestLine(offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", offset, err)
	}
	return &LineOutput{offset: offset, line: line}, nil
}

// Set drives the load.
func (l *LineOutput) Set(on bool) error {
	v := 0
	if on {
		v = 1
	}
	if err := l.line.SetValue(v); err != nil {
		return fmt.Errorf("set pin %d: %w", l.offset, err)
	}
	return nil
}

// Close de-energizes the load, then reconfigures the line as an input with
// pull-down (matching Pi boot defaults) before releasing it.
func (l *LineOutput) Close() error {
	var errs []error
	if err := l.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("de-energize pin %d: %w", l.offset, err))
	}
	if err := l.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
		errs = append(errs, fmt.Errorf("reconfigure pin %d: %w", l.offset, err))
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %d: %w", l.offset, err))
	}
	return errors.Join(errs...)
}

// EdgeLine counts rising edges on a real line via kernel edge events.
type EdgeLine struct {
	chip   *gpiocdev.Chip
	offset int

	mu   sync.Mutex
	line *gpiocdev.Line
}

// RisingEdges prepares offset for edge watching. The line is requested when
// Watch is called.
func (c *Chip) RisingEdges(offset int) *EdgeLine {
	return &EdgeLine{chip: c.chip, offset: offset}
}

// Watch requests the line with pull-up and rising-edge detection; fn is
// called from gpiocdev's event goroutine for every edge.
func (e *EdgeLine) Watch(fn func(ts time.Time)) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.line != nil {
		return fmt.Errorf("pin %d: already watching", e.offset)
	}
	handler := func(gpiocdev.LineEvent) {
		fn(time.Now())
	}
	line, err := e.chip.RequestLine(e.offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		return fmt.Errorf("request edge pin %d: %w", e.offset, err)
	}
	e.line = line
	return nil
}

// Close stops edge delivery.
func (e *EdgeLine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.line == nil {
		return nil
	}
	err := e.line.Close()
	e.line = nil
	return err
}
