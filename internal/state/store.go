package state

import (
	"fmt"
	"strings"
)

// Store is the single process-wide SystemState. Construct it once at startup
// with New and hand the pointer to every task.
type Store struct {
	device1 DeviceState
	device2 DeviceState
	flow    float64
}

// New returns a Store holding power-on defaults.
func New() *Store {
	return &Store{
		device1: DeviceState{Temperature: DefaultTemperature},
		device2: DeviceState{Temperature: DefaultTemperature},
	}
}

func (s *Store) device(id DeviceID) (*DeviceState, error) {
	switch id {
	case Device1:
		return &s.device1, nil
	case Device2:
		return &s.device2, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDevice, string(id))
}

// Get returns a copy of the device's current state.
func (s *Store) Get(id DeviceID) (DeviceState, error) {
	d, err := s.device(id)
	if err != nil {
		return DeviceState{}, err
	}
	return *d, nil
}

// Update applies only the fields present in p. An unknown id leaves the
// store unchanged.
func (s *Store) Update(id DeviceID, p Partial) error {
	d, err := s.device(id)
	if err != nil {
		return err
	}
	p.applyTo(d)
	return nil
}

// SetActuator sets the intent for one load on one device.
func (s *Store) SetActuator(id DeviceID, a Actuator, on bool) error {
	d, err := s.device(id)
	if err != nil {
		return err
	}
	switch a {
	case Heater:
		d.HeaterOn = on
	case Pump:
		d.PumpOn = on
	case Cooler:
		d.CoolerOn = on
	default:
		return fmt.Errorf("set %s on %s: unsupported actuator", a, id)
	}
	return nil
}

// SetAlert sets one fault flag on one device.
func (s *Store) SetAlert(id DeviceID, a Alert, on bool) error {
	d, err := s.device(id)
	if err != nil {
		return err
	}
	switch a {
	case Warning:
		d.Warning = on
	case Alarm:
		d.Alarm = on
	default:
		return fmt.Errorf("set %s on %s: unsupported alert", a, id)
	}
	return nil
}

// SetFlow sets the shared flow rate in L/min.
func (s *Store) SetFlow(rate float64) {
	s.flow = rate
}

// Flow returns the shared flow rate in L/min.
func (s *Store) Flow() float64 {
	return s.flow
}

// ReadAll returns a point-in-time copy of the whole state.
func (s *Store) ReadAll() Snapshot {
	return Snapshot{
		Device1: s.device1,
		Device2: s.device2,
		Flow:    s.flow,
	}
}

// Snapshot is an immutable copy of the SystemState. It is a value type and
// safe to pass between goroutines.
type Snapshot struct {
	Device1 DeviceState
	Device2 DeviceState
	Flow    float64 // L/min, shared by both devices
}

// Device returns the state of the given device.
func (s Snapshot) Device(id DeviceID) (DeviceState, error) {
	switch id {
	case Device1:
		return s.Device1, nil
	case Device2:
		return s.Device2, nil
	}
	return DeviceState{}, fmt.Errorf("%w: %q", ErrUnknownDevice, string(id))
}

// Summary renders the snapshot as a short multi-line report.
func (s Snapshot) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "flow: %.2f L/min\n", s.Flow)
	for _, id := range Devices {
		d, _ := s.Device(id)
		fmt.Fprintf(&b, "%s: temp=%.2fC water=%s heater=%s pump=%s cooler=%s warning=%s alarm=%s\n",
			id, d.Temperature, levelString(d.WaterLevelOK),
			onOff(d.HeaterOn), onOff(d.PumpOn), onOff(d.CoolerOn),
			yesNo(d.Warning), yesNo(d.Alarm))
	}
	return b.String()
}

func levelString(ok bool) string {
	if ok {
		return "normal"
	}
	return "low"
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}
