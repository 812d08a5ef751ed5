// Package sensor holds the ingestion tasks that move readings from the
// hardware collaborators into the state store.
package sensor

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/vessel-monitor/internal/gpio"
	"github.com/sweeney/vessel-monitor/internal/logic"
	"github.com/sweeney/vessel-monitor/internal/onewire"
	"github.com/sweeney/vessel-monitor/internal/pulse"
	"github.com/sweeney/vessel-monitor/internal/state"
)

// ErrTransientSensorFault marks a failed read. The previous value is kept
// and the task is retried.
var ErrTransientSensorFault = errors.New("transient sensor fault")

// FlowSampler converts the pulses counted in each window into a flow rate.
type FlowSampler struct {
	counter        *pulse.Counter
	store          *state.Store
	pulsesPerLiter float64
	interval       time.Duration

	lastPulses uint32
}

// NewFlowSampler creates a sampler with window length interval.
func NewFlowSampler(c *pulse.Counter, s *state.Store, pulsesPerLiter float64, interval time.Duration) *FlowSampler {
	return &FlowSampler{
		counter:        c,
		store:          s,
		pulsesPerLiter: pulsesPerLiter,
		interval:       interval,
	}
}

func (f *FlowSampler) Name() string          { return "flow" }
func (f *FlowSampler) Period() time.Duration { return f.interval }

// Step drains the window's pulses and publishes the rate. A window without
// pulses reports 0.
func (f *FlowSampler) Step(time.Time) error {
	n := f.counter.Drain()
	f.lastPulses = n
	f.store.SetFlow(logic.FlowRate(n, f.pulsesPerLiter, f.interval))
	return nil
}

// LastPulses returns the pulse count of the most recent window.
func (f *FlowSampler) LastPulses() uint32 {
	return f.lastPulses
}

// TemperatureTask polls one vessel's thermometer.
type TemperatureTask struct {
	id     state.DeviceID
	therm  onewire.Thermometer
	store  *state.Store
	period time.Duration
}

// NewTemperatureTask creates a temperature poller for id.
func NewTemperatureTask(id state.DeviceID, t onewire.Thermometer, s *state.Store, period time.Duration) *TemperatureTask {
	return &TemperatureTask{id: id, therm: t, store: s, period: period}
}

func (t *TemperatureTask) Name() string          { return "temperature/" + string(t.id) }
func (t *TemperatureTask) Period() time.Duration { return t.period }

// Step stores a fresh reading. On failure the stored value is left as is.
func (t *TemperatureTask) Step(time.Time) error {
	v, err := t.therm.ReadCelsius()
	if err != nil {
		return fmt.Errorf("%w: %s temperature: %w", ErrTransientSensorFault, t.id, err)
	}
	return t.store.Update(t.id, state.Partial{Temperature: &v})
}

// LevelTask polls one vessel's water-level switch.
type LevelTask struct {
	id         state.DeviceID
	input      gpio.Input
	store      *state.Store
	period     time.Duration
	normalHigh bool
	debouncer  *logic.Debouncer
}

// NewLevelTask creates a level poller for id. normalHigh selects which raw
// electrical level means "water normal"; debounce is the time a new level
// must hold before it is accepted.
func NewLevelTask(id state.DeviceID, in gpio.Input, s *state.Store, period time.Duration, normalHigh bool, debounce time.Duration) *LevelTask {
	return &LevelTask{
		id:         id,
		input:      in,
		store:      s,
		period:     period,
		normalHigh: normalHigh,
		debouncer:  logic.NewDebouncer(debounce),
	}
}

func (l *LevelTask) Name() string          { return "level/" + string(l.id) }
func (l *LevelTask) Period() time.Duration { return l.period }

// Step samples the switch. WaterLevelOK and Warning are written together,
// and only when the debounced level changes; a warning set by the
// controller stands until the level itself moves.
func (l *LevelTask) Step(now time.Time) error {
	raw, err := l.input.Read()
	if err != nil {
		return fmt.Errorf("%w: %s level: %w", ErrTransientSensorFault, l.id, err)
	}
	ok, changed, _ := l.debouncer.Process(raw == l.normalHigh, now)
	if !changed {
		return nil
	}
	return l.store.Update(l.id, state.Partial{
		WaterLevelOK: state.Bool(ok),
		Warning:      state.Bool(!ok),
	})
}
