// Package config loads the monitor's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	Pins      PinsConfig      `yaml:"pins"`
	OneWire   OneWireConfig   `yaml:"onewire"`
	Flow      FlowConfig      `yaml:"flow"`
	Level     LevelConfig     `yaml:"level"`
	Indicator IndicatorConfig `yaml:"indicator"`
	Intervals IntervalsConfig `yaml:"intervals"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
}

// SerialConfig contains the controller link settings.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// PinsConfig contains GPIO line offsets on Chip.
type PinsConfig struct {
	Chip           string     `yaml:"chip"`
	Flow           int        `yaml:"flow"`
	RelayActiveLow bool       `yaml:"relay_active_low"`
	Device1        DevicePins `yaml:"device1"`
	Device2        DevicePins `yaml:"device2"`
}

// DevicePins contains the per-vessel GPIO lines.
type DevicePins struct {
	Heater    int `yaml:"heater"`
	Pump      int `yaml:"pump"`
	Cooler    int `yaml:"cooler"`
	Level     int `yaml:"level"`
	WarnLamp  int `yaml:"warn_lamp"`
	AlarmLamp int `yaml:"alarm_lamp"`
}

// OneWireConfig names the temperature sensor of each vessel on the w1 bus.
type OneWireConfig struct {
	BasePath string `yaml:"base_path"`
	Device1  string `yaml:"device1"`
	Device2  string `yaml:"device2"`
}

// FlowConfig contains flow sensor calibration.
type FlowConfig struct {
	PulsesPerLiter float64       `yaml:"pulses_per_liter"`
	Interval       time.Duration `yaml:"interval"`
}

// LevelConfig describes the water-level switches.
type LevelConfig struct {
	NormalHigh bool          `yaml:"normal_high"` // false: raw low = normal
	Debounce   time.Duration `yaml:"debounce"`
}

// IndicatorConfig contains lamp blink cadences.
type IndicatorConfig struct {
	WarnBlink  time.Duration `yaml:"warn_blink"`
	AlarmBlink time.Duration `yaml:"alarm_blink"`
}

// IntervalsConfig contains task periods.
type IntervalsConfig struct {
	Tick        time.Duration `yaml:"tick"`
	Actuator    time.Duration `yaml:"actuator"`
	Indicator   time.Duration `yaml:"indicator"`
	Temperature time.Duration `yaml:"temperature"`
	Level       time.Duration `yaml:"level"`
	Broadcast   time.Duration `yaml:"broadcast"`
	Receive     time.Duration `yaml:"receive"`
	Mirror      time.Duration `yaml:"mirror"`
	MaxBackoff  time.Duration `yaml:"max_backoff"`
}

// MQTTConfig contains telemetry settings. An empty broker disables telemetry.
type MQTTConfig struct {
	Broker        string        `yaml:"broker"`
	ClientID      string        `yaml:"client_id"`
	Prefix        string        `yaml:"prefix"`
	StateInterval time.Duration `yaml:"state_interval"`
	Heartbeat     time.Duration `yaml:"heartbeat"` // 0 disables
}

// HTTPConfig contains the status server address. Empty disables it.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/serial0",
			Baud: 115200,
		},
		Pins: PinsConfig{
			Chip: "gpiochip0",
			Flow: 27,
			Device1: DevicePins{
				Heater: 17, Pump: 18, Cooler: 22,
				Level: 26, WarnLamp: 5, AlarmLamp: 12,
			},
			Device2: DevicePins{
				Heater: 23, Pump: 24, Cooler: 25,
				Level: 16, WarnLamp: 6, AlarmLamp: 13,
			},
		},
		OneWire: OneWireConfig{
			BasePath: "/sys/bus/w1/devices",
		},
		Flow: FlowConfig{
			PulsesPerLiter: 450,
			Interval:       time.Second,
		},
		Indicator: IndicatorConfig{
			WarnBlink:  time.Second,
			AlarmBlink: 300 * time.Millisecond,
		},
		Intervals: IntervalsConfig{
			Tick:        10 * time.Millisecond,
			Actuator:    500 * time.Millisecond,
			Indicator:   100 * time.Millisecond,
			Temperature: 2500 * time.Millisecond,
			Level:       time.Second,
			Broadcast:   time.Second,
			Receive:     10 * time.Millisecond,
			Mirror:      250 * time.Millisecond,
			MaxBackoff:  30 * time.Second,
		},
		MQTT: MQTTConfig{
			ClientID:      "vessel-monitor",
			Prefix:        "vessels/monitor",
			StateInterval: 10 * time.Second,
			Heartbeat:     15 * time.Minute,
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// ensureDefaults fills zero-valued fields that have no meaningful zero.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}
	if c.Pins.Chip == "" {
		c.Pins.Chip = def.Pins.Chip
	}
	if c.OneWire.BasePath == "" {
		c.OneWire.BasePath = def.OneWire.BasePath
	}
	if c.Flow.PulsesPerLiter == 0 {
		c.Flow.PulsesPerLiter = def.Flow.PulsesPerLiter
	}
	if c.Flow.Interval == 0 {
		c.Flow.Interval = def.Flow.Interval
	}
	if c.Indicator.WarnBlink == 0 {
		c.Indicator.WarnBlink = def.Indicator.WarnBlink
	}
	if c.Indicator.AlarmBlink == 0 {
		c.Indicator.AlarmBlink = def.Indicator.AlarmBlink
	}

	iv, div := &c.Intervals, def.Intervals
	for _, f := range []struct {
		dst *time.Duration
		def time.Duration
	}{
		{&iv.Tick, div.Tick},
		{&iv.Actuator, div.Actuator},
		{&iv.Indicator, div.Indicator},
		{&iv.Temperature, div.Temperature},
		{&iv.Level, div.Level},
		{&iv.Broadcast, div.Broadcast},
		{&iv.Receive, div.Receive},
		{&iv.Mirror, div.Mirror},
		{&iv.MaxBackoff, div.MaxBackoff},
	} {
		if *f.dst == 0 {
			*f.dst = f.def
		}
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = def.MQTT.Prefix
	}
	if c.MQTT.StateInterval == 0 {
		c.MQTT.StateInterval = def.MQTT.StateInterval
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
}

// Validate rejects configurations the monitor cannot run with.
func (c *Config) Validate() error {
	if c.Flow.PulsesPerLiter <= 0 {
		return fmt.Errorf("flow.pulses_per_liter must be positive, got %v", c.Flow.PulsesPerLiter)
	}
	if c.Flow.Interval <= 0 {
		return fmt.Errorf("flow.interval must be positive, got %v", c.Flow.Interval)
	}
	if c.Intervals.Tick <= 0 {
		return fmt.Errorf("intervals.tick must be positive, got %v", c.Intervals.Tick)
	}
	if c.Level.Debounce < 0 {
		return fmt.Errorf("level.debounce must not be negative, got %v", c.Level.Debounce)
	}

	seen := map[int]string{}
	claim := func(name string, pin int) error {
		if pin < 0 {
			return fmt.Errorf("pin %s: invalid offset %d", name, pin)
		}
		if other, ok := seen[pin]; ok {
			return fmt.Errorf("pin %s: offset %d already used by %s", name, pin, other)
		}
		seen[pin] = name
		return nil
	}
	if err := claim("flow", c.Pins.Flow); err != nil {
		return err
	}
	for _, d := range []struct {
		name string
		pins DevicePins
	}{
		{"device1", c.Pins.Device1},
		{"device2", c.Pins.Device2},
	} {
		for _, p := range []struct {
			name string
			pin  int
		}{
			{"heater", d.pins.Heater},
			{"pump", d.pins.Pump},
			{"cooler", d.pins.Cooler},
			{"level", d.pins.Level},
			{"warn_lamp", d.pins.WarnLamp},
			{"alarm_lamp", d.pins.AlarmLamp},
		} {
			if err := claim(d.name+"."+p.name, p.pin); err != nil {
				return err
			}
		}
	}
	return nil
}
