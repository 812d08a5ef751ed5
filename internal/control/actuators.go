// Package control drives the relay and lamp outputs from the state store.
package control

import (
	"errors"
	"fmt"
	"time"

	"github.com/sweeney/vessel-monitor/internal/gpio"
	"github.com/sweeney/vessel-monitor/internal/logic"
	"github.com/sweeney/vessel-monitor/internal/state"
)

// Loads holds one vessel's relay outputs, indexed by state.Actuator.
type Loads [len(state.Actuators)]gpio.Output

type loadBank struct {
	id     state.DeviceID
	loads  Loads
	cool   logic.CoolCycle
	driven [len(state.Actuators)]bool
}

// Actuators follows heater and pump intent directly and duty-cycles the
// cooler: while cooling is requested the cooler relay toggles once per step.
type Actuators struct {
	store  *state.Store
	period time.Duration
	banks  []*loadBank
}

// NewActuators creates the actuator task. Devices without an entry in loads
// are not driven.
func NewActuators(s *state.Store, period time.Duration, loads map[state.DeviceID]Loads) *Actuators {
	a := &Actuators{store: s, period: period}
	for _, id := range state.Devices {
		l, ok := loads[id]
		if !ok {
			continue
		}
		a.banks = append(a.banks, &loadBank{id: id, loads: l})
	}
	return a
}

func (a *Actuators) Name() string          { return "actuators" }
func (a *Actuators) Period() time.Duration { return a.period }

// MaxBackoff keeps a faulting output from slowing the rest of the bank.
func (a *Actuators) MaxBackoff() time.Duration { return a.period }

// Step drives every output once. A failed write does not stop the others;
// all failures are returned together.
func (a *Actuators) Step(time.Time) error {
	var errs []error
	for _, b := range a.banks {
		d, err := a.store.Get(b.id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, kind := range state.Actuators {
			level := d.Actuator(kind)
			if kind == state.Cooler {
				level = b.cool.Tick(level)
			}
			b.driven[kind] = level
			out := b.loads[kind]
			if out == nil {
				continue
			}
			if err := out.Set(level); err != nil {
				errs = append(errs, fmt.Errorf("%s %s: %w", b.id, kind, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Driven returns the level last commanded for one load.
func (a *Actuators) Driven(id state.DeviceID, kind state.Actuator) bool {
	for _, b := range a.banks {
		if b.id == id {
			return b.driven[kind]
		}
	}
	return false
}

// CoolPhase returns the duty-cycle phase of a vessel's cooler.
func (a *Actuators) CoolPhase(id state.DeviceID) logic.CoolPhase {
	for _, b := range a.banks {
		if b.id == id {
			return b.cool.Phase()
		}
	}
	return logic.AwaitingOn
}

// Close de-energizes and releases every output.
func (a *Actuators) Close() error {
	var errs []error
	for _, b := range a.banks {
		for _, out := range b.loads {
			if out != nil {
				errs = append(errs, out.Close())
			}
		}
	}
	return errors.Join(errs...)
}
