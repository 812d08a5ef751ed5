package mqtt

import (
	"sync"
	"time"

	"github.com/sweeney/vessel-monitor/internal/state"
)

// FakePublisher records published messages for test assertions. It is safe
// for concurrent use since the telemetry loop publishes from its own
// goroutine.
type FakePublisher struct {
	mu sync.Mutex

	// States contains every snapshot passed to PublishState.
	States []state.Snapshot

	// StatePayloads contains the JSON payloads for state publications.
	StatePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by PublishState.
	PublishError error

	// PublishSystemError, if set, will be returned by PublishSystem.
	PublishSystemError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishState records the snapshot.
func (f *FakePublisher) PublishState(ts time.Time, snap state.Snapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatStatePayload(ts, "", snap)
	if err != nil {
		return err
	}
	f.States = append(f.States, snap)
	f.StatePayloads = append(f.StatePayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishSystemError != nil {
		return f.PublishSystemError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// SetConnected changes what IsConnected reports.
func (f *FakePublisher) SetConnected(c bool) {
	f.mu.Lock()
	f.Connected = c
	f.mu.Unlock()
}

// StateCount returns how many state publications were recorded.
func (f *FakePublisher) StateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.States)
}

// Events returns a copy of the recorded system events.
func (f *FakePublisher) Events() []SystemEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]SystemEvent, len(f.SystemEvents))
	copy(out, f.SystemEvents)
	return out
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.States = nil
	f.StatePayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.PublishSystemError = nil
	f.Connected = false
}

var (
	_ Publisher        = (*FakePublisher)(nil)
	_ ConnectionStatus = (*FakePublisher)(nil)
	_ Publisher        = (*RealPublisher)(nil)
	_ ConnectionStatus = (*RealPublisher)(nil)
)
