// Package onewire reads DS18B20-class thermometers on the Linux 1-Wire bus.
package onewire

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

var (
	// ErrCRC is returned when the bus master reports a failed checksum.
	ErrCRC = errors.New("crc check failed")

	// ErrNotReady is returned for the 85.000°C power-on reset value, which
	// means the conversion never ran.
	ErrNotReady = errors.New("conversion not ready")

	// ErrMalformed is returned when w1_slave content cannot be parsed.
	ErrMalformed = errors.New("malformed w1_slave data")
)

// powerOnReset is the scratchpad value before the first conversion.
const powerOnReset = 85000

// Thermometer returns one temperature reading.
type Thermometer interface {
	ReadCelsius() (float64, error)
}

// Sysfs reads a sensor through the w1-therm kernel driver. Each read triggers
// a conversion in the kernel and blocks for its duration (~750ms at 12 bits).
type Sysfs struct {
	path string
}

// NewSysfs returns a reader for the sensor with the given id (e.g.
// "28-0316a2795cff") below basePath (normally /sys/bus/w1/devices).
func NewSysfs(basePath, id string) *Sysfs {
	return &Sysfs{path: filepath.Join(basePath, id, "w1_slave")}
}

// Path returns the w1_slave file being read.
func (s *Sysfs) Path() string {
	return s.path
}

// ReadCelsius reads and parses the sensor.
func (s *Sysfs) ReadCelsius() (float64, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", s.path, err)
	}
	return Parse(string(data))
}

// Parse decodes w1_slave content:
//
//	72 01 4b 46 7f ff 0e 10 57 : crc=57 YES
//	72 01 4b 46 7f ff 0e 10 57 t=23125
func Parse(content string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(content), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("%w: expected 2 lines, got %d", ErrMalformed, len(lines))
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, ErrCRC
	}
	idx := strings.LastIndex(lines[1], "t=")
	if idx < 0 {
		return 0, fmt.Errorf("%w: no temperature field", ErrMalformed)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(lines[1][idx+2:]))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if milli == powerOnReset {
		return 0, ErrNotReady
	}
	return float64(milli) / 1000, nil
}

// FakeThermometer is a test double returning scripted readings.
type FakeThermometer struct {
	// Readings are returned in order; the last repeats.
	Readings []float64
	index    int

	// Err, if set, is returned instead of a reading.
	Err error

	// Calls counts ReadCelsius invocations.
	Calls int
}

// NewFakeThermometer creates a FakeThermometer with the given readings.
func NewFakeThermometer(readings ...float64) *FakeThermometer {
	return &FakeThermometer{Readings: readings}
}

// ReadCelsius returns the next scripted reading.
func (f *FakeThermometer) ReadCelsius() (float64, error) {
	f.Calls++
	if f.Err != nil {
		return 0, f.Err
	}
	if len(f.Readings) == 0 {
		return 0, errors.New("no readings configured")
	}
	v := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return v, nil
}

var (
	_ Thermometer = (*Sysfs)(nil)
	_ Thermometer = (*FakeThermometer)(nil)
)
