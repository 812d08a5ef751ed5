package gpio

import (
	"errors"
	"sync"
	"time"
)

// FakeInput is a test double that returns scripted raw levels.
type FakeInput struct {
	// Levels contains scripted raw levels to return.
	// Each call to Read() consumes the next level.
	Levels []bool

	// index tracks current position in Levels
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeInput creates a FakeInput with the given levels.
func NewFakeInput(levels ...bool) *FakeInput {
	return &FakeInput{Levels: levels}
}

// Read returns the next scripted level.
// If levels are exhausted, returns the last level repeatedly.
func (f *FakeInput) Read() (bool, error) {
	if f.ReadError != nil {
		return false, f.ReadError
	}
	if len(f.Levels) == 0 {
		return false, errors.New("no levels configured")
	}

	level := f.Levels[f.index]
	if f.index < len(f.Levels)-1 {
		f.index++
	}
	return level, nil
}

// Close marks the input as closed.
func (f *FakeInput) Close() error {
	f.Closed = true
	return nil
}

// FakeOutput records every level written to it.
type FakeOutput struct {
	// Level is the most recently written level.
	Level bool

	// History contains every level written, in order.
	History []bool

	// SetError, if set, will be returned by Set() and the level not recorded.
	SetError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeOutput creates a de-energized FakeOutput.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{}
}

// Set records the level.
func (f *FakeOutput) Set(on bool) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.Level = on
	f.History = append(f.History, on)
	return nil
}

// Close de-energizes and marks the output as closed.
func (f *FakeOutput) Close() error {
	f.Level = false
	f.Closed = true
	return nil
}

// FakeEdgeSource lets tests fire edges by hand.
type FakeEdgeSource struct {
	mu     sync.Mutex
	fn     func(time.Time)
	Closed bool

	// WatchError, if set, will be returned by Watch().
	WatchError error
}

// NewFakeEdgeSource creates an idle FakeEdgeSource.
func NewFakeEdgeSource() *FakeEdgeSource {
	return &FakeEdgeSource{}
}

// Watch stores fn for later Fire calls.
func (f *FakeEdgeSource) Watch(fn func(time.Time)) error {
	if f.WatchError != nil {
		return f.WatchError
	}
	f.mu.Lock()
	f.fn = fn
	f.mu.Unlock()
	return nil
}

// Fire delivers n edges stamped ts. It is a no-op before Watch or after Close.
func (f *FakeEdgeSource) Fire(n int, ts time.Time) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn == nil {
		return
	}
	for i := 0; i < n; i++ {
		fn(ts)
	}
}

// Close stops delivery.
func (f *FakeEdgeSource) Close() error {
	f.mu.Lock()
	f.fn = nil
	f.Closed = true
	f.mu.Unlock()
	return nil
}

var (
	_ Input      = (*FakeInput)(nil)
	_ Output     = (*FakeOutput)(nil)
	_ EdgeSource = (*FakeEdgeSource)(nil)
	_ Input      = (*LineInput)(nil)
	_ Output     = (*LineOutput)(nil)
	_ EdgeSource = (*EdgeLine)(nil)
)
