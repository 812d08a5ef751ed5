package protocol

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vessel-monitor/internal/serial"
	"github.com/sweeney/vessel-monitor/internal/state"
)

// Counters summarize link traffic since startup.
type Counters struct {
	LinesSent     uint64 `json:"lines_sent"`
	LinesReceived uint64 `json:"lines_received"`
	Applied       uint64 `json:"applied"`
	Malformed     uint64 `json:"malformed"`
	UnknownDevice uint64 `json:"unknown_device"`
	DecodeFaults  uint64 `json:"decode_faults"`
	RxDropped     uint64 `json:"rx_dropped"`
	RxReadErrors  uint64 `json:"rx_read_errors"`
	RxError       string `json:"rx_error,omitempty"`
}

// Broadcaster periodically writes both vessels' state to the link.
type Broadcaster struct {
	store  *state.Store
	port   serial.Port
	period time.Duration
	sent   uint64
}

// NewBroadcaster creates the outbound task.
func NewBroadcaster(s *state.Store, p serial.Port, period time.Duration) *Broadcaster {
	return &Broadcaster{store: s, port: p, period: period}
}

func (b *Broadcaster) Name() string          { return "broadcast" }
func (b *Broadcaster) Period() time.Duration { return b.period }

// Step writes device1 then device2. A failure on one line does not stop the
// other.
func (b *Broadcaster) Step(time.Time) error {
	snap := b.store.ReadAll()
	var errs []error
	for _, id := range state.Devices {
		d, _ := snap.Device(id)
		line, err := Encode(id, d, snap.Flow)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := b.port.Write(line); err != nil {
			errs = append(errs, fmt.Errorf("send %s: %w", id, err))
			continue
		}
		b.sent++
	}
	return errors.Join(errs...)
}

// Sent returns the number of lines written.
func (b *Broadcaster) Sent() uint64 {
	return b.sent
}

// Receiver polls the link and applies inbound updates.
type Receiver struct {
	store    *state.Store
	port     serial.Port
	period   time.Duration
	framer   *Framer
	log      *zap.SugaredLogger
	counters Counters
}

// NewReceiver creates the inbound task.
func NewReceiver(s *state.Store, p serial.Port, period time.Duration, log *zap.SugaredLogger) *Receiver {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Receiver{
		store:  s,
		port:   p,
		period: period,
		framer: NewFramer(DefaultMaxLine),
		log:    log,
	}
}

func (r *Receiver) Name() string          { return "receive" }
func (r *Receiver) Period() time.Duration { return r.period }

// Step drains whatever the link has buffered. Bad input is logged and
// dropped; Step itself never faults, so the link is never backed off.
func (r *Receiver) Step(time.Time) error {
	if r.port.Available() == 0 {
		return nil
	}
	data := r.port.ReadNonblocking()
	if len(data) == 0 {
		return nil
	}

	lines, err := r.framer.Feed(data)
	if err != nil {
		r.counters.DecodeFaults++
		r.log.Warnw("inbound buffer discarded", "err", err)
	}
	for _, line := range lines {
		r.handle(line)
	}
	return nil
}

func (r *Receiver) handle(line string) {
	r.counters.LinesReceived++
	msg, err := Parse(line)
	if err != nil {
		if errors.Is(err, state.ErrUnknownDevice) {
			r.counters.UnknownDevice++
		} else {
			r.counters.Malformed++
		}
		r.log.Warnw("inbound line dropped", "line", line, "err", err)
		return
	}
	if err := Apply(r.store, msg); err != nil {
		r.counters.UnknownDevice++
		r.log.Warnw("inbound line dropped", "line", line, "err", err)
		return
	}
	r.counters.Applied++
	r.log.Debugw("inbound update applied", "device", msg.Device)
}

// Counters returns the receive counters, plus the port's reader health when
// the port reports it. Call from the scheduler goroutine.
func (r *Receiver) Counters() Counters {
	c := r.counters
	if hr, ok := r.port.(serial.HealthReporter); ok {
		h := hr.Health()
		c.RxDropped = h.Dropped
		c.RxReadErrors = h.ReadErrors
		if h.Err != nil {
			c.RxError = h.Err.Error()
		}
	}
	return c
}

// LinkCounters merges both directions. Either side may be nil.
func LinkCounters(b *Broadcaster, r *Receiver) Counters {
	var c Counters
	if r != nil {
		c = r.Counters()
	}
	if b != nil {
		c.LinesSent = b.Sent()
	}
	return c
}
