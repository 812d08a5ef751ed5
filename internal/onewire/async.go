package onewire

import (
	"context"
	"sync"
	"time"
)

// Async keeps the blocking kernel conversion off the caller's goroutine. Run
// polls the wrapped Thermometer; ReadCelsius returns the most recent result
// immediately.
type Async struct {
	src      Thermometer
	interval time.Duration

	mu   sync.Mutex
	last float64
	err  error
}

// NewAsync wraps src. Until the first poll completes ReadCelsius returns
// ErrNotReady.
func NewAsync(src Thermometer, interval time.Duration) *Async {
	return &Async{src: src, interval: interval, err: ErrNotReady}
}

// Run polls until ctx is done.
func (a *Async) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		a.Poll()
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Poll performs one blocking read of the wrapped Thermometer.
func (a *Async) Poll() {
	v, err := a.src.ReadCelsius()
	a.mu.Lock()
	defer a.mu.Unlock()
	a.err = err
	if err == nil {
		a.last = v
	}
}

// ReadCelsius returns the latest polled result without blocking.
func (a *Async) ReadCelsius() (float64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return 0, a.err
	}
	return a.last, nil
}

var _ Thermometer = (*Async)(nil)
