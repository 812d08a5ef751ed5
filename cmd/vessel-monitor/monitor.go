package main

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/vessel-monitor/internal/config"
	"github.com/sweeney/vessel-monitor/internal/control"
	"github.com/sweeney/vessel-monitor/internal/gpio"
	"github.com/sweeney/vessel-monitor/internal/onewire"
	"github.com/sweeney/vessel-monitor/internal/protocol"
	"github.com/sweeney/vessel-monitor/internal/pulse"
	"github.com/sweeney/vessel-monitor/internal/sched"
	"github.com/sweeney/vessel-monitor/internal/sensor"
	"github.com/sweeney/vessel-monitor/internal/serial"
	"github.com/sweeney/vessel-monitor/internal/state"
	"github.com/sweeney/vessel-monitor/internal/status"
)

// hardware is everything the monitor talks to. Devices missing from a map
// are simply not sensed or driven.
type hardware struct {
	flow   gpio.EdgeSource
	levels map[state.DeviceID]gpio.Input
	therms map[state.DeviceID]onewire.Thermometer
	loads  map[state.DeviceID]control.Loads
	lamps  map[state.DeviceID]control.Lamps
	port   serial.Port
}

// closeInputs releases the flow line, the level lines and the port.
func (hw hardware) closeInputs() error {
	var errs []error
	if hw.flow != nil {
		errs = append(errs, hw.flow.Close())
	}
	for _, in := range hw.levels {
		errs = append(errs, in.Close())
	}
	if hw.port != nil {
		errs = append(errs, hw.port.Close())
	}
	return errors.Join(errs...)
}

// Close releases everything in hw, outputs first.
func (hw hardware) Close() error {
	var errs []error
	for _, loads := range hw.loads {
		for _, out := range loads {
			if out != nil {
				errs = append(errs, out.Close())
			}
		}
	}
	for _, lamps := range hw.lamps {
		for _, out := range lamps {
			if out != nil {
				errs = append(errs, out.Close())
			}
		}
	}
	errs = append(errs, hw.closeInputs())
	return errors.Join(errs...)
}

// monitor owns the store and the fixed task set. Everything except the
// pulse counter is touched only from the scheduler goroutine.
type monitor struct {
	store       *state.Store
	counter     *pulse.Counter
	sched       *sched.Scheduler
	flow        *sensor.FlowSampler
	actuators   *control.Actuators
	indicators  *control.Indicators
	broadcaster *protocol.Broadcaster
	receiver    *protocol.Receiver
	hw          hardware
}

// newMonitor takes ownership of hw. If it fails, hw has been released.
func newMonitor(cfg *config.Config, hw hardware, tracker *status.Tracker, log *zap.SugaredLogger) (*monitor, error) {
	iv := cfg.Intervals
	m := &monitor{
		store:   state.New(),
		counter: pulse.NewCounter(),
		sched:   sched.New(log, iv.MaxBackoff),
		hw:      hw,
	}

	if hw.flow != nil {
		if err := hw.flow.Watch(m.counter.Edge); err != nil {
			return nil, errors.Join(fmt.Errorf("watch flow sensor: %w", err), hw.Close())
		}
	}

	m.flow = sensor.NewFlowSampler(m.counter, m.store, cfg.Flow.PulsesPerLiter, cfg.Flow.Interval)
	m.actuators = control.NewActuators(m.store, iv.Actuator, hw.loads)
	m.indicators = control.NewIndicators(m.store, iv.Indicator, cfg.Indicator.WarnBlink, cfg.Indicator.AlarmBlink, hw.lamps)

	// Inbound updates land first so the rest of the tick sees them.
	if hw.port != nil {
		m.receiver = protocol.NewReceiver(m.store, hw.port, iv.Receive, log)
		m.sched.Add(m.receiver)
	}
	m.sched.Add(m.flow)
	for _, id := range state.Devices {
		if in, ok := hw.levels[id]; ok {
			m.sched.Add(sensor.NewLevelTask(id, in, m.store, iv.Level, cfg.Level.NormalHigh, cfg.Level.Debounce))
		}
		if th, ok := hw.therms[id]; ok {
			m.sched.Add(sensor.NewTemperatureTask(id, th, m.store, iv.Temperature))
		}
	}
	m.sched.Add(m.actuators)
	m.sched.Add(m.indicators)
	if hw.port != nil {
		m.broadcaster = protocol.NewBroadcaster(m.store, hw.port, iv.Broadcast)
		m.sched.Add(m.broadcaster)
	}
	if tracker != nil {
		m.sched.Add(status.NewMirror(tracker, iv.Mirror, m.collect))
	}
	return m, nil
}

// collect runs on the scheduler goroutine. Everything it returns is a copy.
func (m *monitor) collect() status.Frame {
	outputs := make(map[state.DeviceID]status.Outputs, len(state.Devices))
	for _, id := range state.Devices {
		outputs[id] = status.Outputs{
			Heater:    m.actuators.Driven(id, state.Heater),
			Pump:      m.actuators.Driven(id, state.Pump),
			Cooler:    m.actuators.Driven(id, state.Cooler),
			WarnLamp:  m.indicators.Lit(id, state.Warning),
			AlarmLamp: m.indicators.Lit(id, state.Alarm),
			CoolPhase: m.actuators.CoolPhase(id).String(),
		}
	}
	return status.Frame{
		State:   m.store.ReadAll(),
		Outputs: outputs,
		Pulses: status.Pulses{
			Total:      m.counter.Total(),
			LastWindow: m.flow.LastPulses(),
			LastEdge:   m.counter.LastEdge(),
		},
		Link:  protocol.LinkCounters(m.broadcaster, m.receiver),
		Tasks: m.sched.Stats(),
	}
}

// step runs every due task once. Used by the main loop.
func (m *monitor) step(now time.Time) {
	m.sched.RunDue(now)
}

// Close de-energizes every output and releases all hardware.
func (m *monitor) Close() error {
	return errors.Join(m.actuators.Close(), m.indicators.Close(), m.hw.closeInputs())
}
