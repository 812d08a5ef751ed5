// Package state holds the canonical in-memory record of both vessels and the
// shared flow measurement.
//
// The Store is not synchronized. It must only be touched from the scheduler
// goroutine; other goroutines read Snapshot values handed out by ReadAll.
package state

import (
	"errors"
	"fmt"
)

// ErrUnknownDevice is returned for any device id outside the fixed set.
var ErrUnknownDevice = errors.New("unknown device")

// DeviceID identifies one of the two monitored vessels.
type DeviceID string

const (
	Device1 DeviceID = "device1"
	Device2 DeviceID = "device2"
)

// Devices lists every valid DeviceID in wire order.
var Devices = [2]DeviceID{Device1, Device2}

// ParseDeviceID resolves a wire identifier to a DeviceID.
func ParseDeviceID(s string) (DeviceID, error) {
	switch DeviceID(s) {
	case Device1, Device2:
		return DeviceID(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownDevice, s)
}

// DefaultTemperature is the reading reported before the first conversion.
const DefaultTemperature = 25.0

// DeviceState is the per-vessel sensor, actuator and alert record.
type DeviceState struct {
	Temperature  float64 // °C
	WaterLevelOK bool    // true = normal, false = low/fault
	HeaterOn     bool
	PumpOn       bool
	CoolerOn     bool
	Warning      bool
	Alarm        bool
}

// Actuator enumerates the physical loads attached to each vessel.
type Actuator int

const (
	Heater Actuator = iota
	Pump
	Cooler
)

// Actuators lists every Actuator in output order.
var Actuators = [3]Actuator{Heater, Pump, Cooler}

func (a Actuator) String() string {
	switch a {
	case Heater:
		return "heater"
	case Pump:
		return "pump"
	case Cooler:
		return "cooler"
	}
	return fmt.Sprintf("actuator(%d)", int(a))
}

// Alert enumerates the fault flags carried by each vessel.
type Alert int

const (
	Warning Alert = iota
	Alarm
)

// Alerts lists every Alert in lamp order.
var Alerts = [2]Alert{Warning, Alarm}

func (a Alert) String() string {
	switch a {
	case Warning:
		return "warning"
	case Alarm:
		return "alarm"
	}
	return fmt.Sprintf("alert(%d)", int(a))
}

// Actuator returns the requested intent for the given load.
func (d DeviceState) Actuator(a Actuator) bool {
	switch a {
	case Heater:
		return d.HeaterOn
	case Pump:
		return d.PumpOn
	case Cooler:
		return d.CoolerOn
	}
	return false
}

// Alert returns the given fault flag.
func (d DeviceState) Alert(a Alert) bool {
	switch a {
	case Warning:
		return d.Warning
	case Alarm:
		return d.Alarm
	}
	return false
}

// Partial describes a subset of DeviceState fields. Nil fields are left
// untouched when applied.
type Partial struct {
	Temperature  *float64
	WaterLevelOK *bool
	HeaterOn     *bool
	PumpOn       *bool
	CoolerOn     *bool
	Warning      *bool
	Alarm        *bool
}

// Empty reports whether the partial carries no fields.
func (p Partial) Empty() bool {
	return p.Temperature == nil && p.WaterLevelOK == nil && p.HeaterOn == nil &&
		p.PumpOn == nil && p.CoolerOn == nil && p.Warning == nil && p.Alarm == nil
}

func (p Partial) applyTo(d *DeviceState) {
	if p.Temperature != nil {
		d.Temperature = *p.Temperature
	}
	if p.WaterLevelOK != nil {
		d.WaterLevelOK = *p.WaterLevelOK
	}
	if p.HeaterOn != nil {
		d.HeaterOn = *p.HeaterOn
	}
	if p.PumpOn != nil {
		d.PumpOn = *p.PumpOn
	}
	if p.CoolerOn != nil {
		d.CoolerOn = *p.CoolerOn
	}
	if p.Warning != nil {
		d.Warning = *p.Warning
	}
	if p.Alarm != nil {
		d.Alarm = *p.Alarm
	}
}

// Float returns a pointer to v, for building a Partial.
func Float(v float64) *float64 { return &v }

// Bool returns a pointer to v, for building a Partial.
func Bool(v bool) *bool { return &v }
