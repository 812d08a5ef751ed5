package serial

import (
	"bytes"
	"strings"
	"sync"
)

// FakePort is an in-memory Port for tests.
type FakePort struct {
	mu      sync.Mutex
	inbound []byte
	written bytes.Buffer

	// WriteError, if set, is returned by Write and nothing is recorded.
	WriteError error

	// Closed tracks if Close was called
	Closed bool

	health Health
}

// NewFakePort creates an empty FakePort.
func NewFakePort() *FakePort {
	return &FakePort{}
}

// Push queues bytes as if they had arrived from the controller.
func (f *FakePort) Push(p []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inbound = append(f.inbound, p...)
}

// Write records p.
func (f *FakePort) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return 0, f.WriteError
	}
	return f.written.Write(p)
}

// Available returns the number of queued inbound bytes.
func (f *FakePort) Available() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.inbound)
}

// ReadNonblocking returns and consumes every queued inbound byte.
func (f *FakePort) ReadNonblocking() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.inbound) == 0 {
		return nil
	}
	out := f.inbound
	f.inbound = nil
	return out
}

// Written returns everything written so far.
func (f *FakePort) Written() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.written.String()
}

// Lines returns the written output split into lines, without terminators.
func (f *FakePort) Lines() []string {
	s := strings.TrimSuffix(f.Written(), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

// Reset clears recorded output.
func (f *FakePort) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.written.Reset()
}

// SetHealth sets what Health reports.
func (f *FakePort) SetHealth(h Health) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.health = h
}

// Health returns the value last given to SetHealth.
func (f *FakePort) Health() Health {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.health
}

// Close marks the port as closed.
func (f *FakePort) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

var (
	_ Port           = (*FakePort)(nil)
	_ HealthReporter = (*FakePort)(nil)
)
