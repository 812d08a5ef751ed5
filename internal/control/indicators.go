package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/vessel-monitor/internal/gpio"
	"github.com/sweeney/vessel-monitor/internal/logic"
	"github.com/sweeney/vessel-monitor/internal/state"
)

// Lamps holds one vessel's indicator outputs, indexed by state.Alert.
type Lamps [len(state.Alerts)]gpio.Output

type lampBank struct {
	id       state.DeviceID
	lamps    Lamps
	blinkers [len(state.Alerts)]*logic.Blinker
}

// Indicators blinks each lamp while its alert flag is set. Warning and alarm
// lamps have separate cadences; the task period only bounds how finely those
// cadences are resolved.
type Indicators struct {
	store  *state.Store
	period time.Duration
	banks  []*lampBank
}

// NewIndicators creates the indicator task. warnBlink and alarmBlink are the
// toggle intervals of the warning and alarm lamps.
func NewIndicators(s *state.Store, period, warnBlink, alarmBlink time.Duration, lamps map[state.DeviceID]Lamps) *Indicators {
	ind := &Indicators{store: s, period: period}
	for _, id := range state.Devices {
		l, ok := lamps[id]
		if !ok {
			continue
		}
		b := &lampBank{id: id, lamps: l}
		b.blinkers[state.Warning] = logic.NewBlinker(warnBlink)
		b.blinkers[state.Alarm] = logic.NewBlinker(alarmBlink)
		ind.banks = append(ind.banks, b)
	}
	return ind
}

func (i *Indicators) Name() string          { return "indicators" }
func (i *Indicators) Period() time.Duration { return i.period }

// MaxBackoff keeps a faulting output from slowing the rest of the bank.
func (i *Indicators) MaxBackoff() time.Duration { return i.period }

// Step advances every blinker and drives its lamp.
func (i *Indicators) Step(now time.Time) error {
	var errs []error
	for _, b := range i.banks {
		d, err := i.store.Get(b.id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, kind := range state.Alerts {
			lit := b.blinkers[kind].Tick(d.Alert(kind), now)
			out := b.lamps[kind]
			if out == nil {
				continue
			}
			if err := out.Set(lit); err != nil {
				errs = append(errs, fmt.Errorf("%s %s lamp: %w", b.id, kind, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Lit reports the current level of one lamp.
func (i *Indicators) Lit(id state.DeviceID, kind state.Alert) bool {
	for _, b := range i.banks {
		if b.id == id {
			return b.blinkers[kind].Lit()
		}
	}
	return false
}

// Close switches off and releases every lamp.
func (i *Indicators) Close() error {
	var errs []error
	for _, b := range i.banks {
		for _, out := range b.lamps {
			if out != nil {
				errs = append(errs, out.Close())
			}
		}
	}
	return errors.Join(errs...)
}
