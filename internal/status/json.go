package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/vessel-monitor/internal/protocol"
	"github.com/sweeney/vessel-monitor/internal/state"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string                `json:"event,omitempty"`
	Reason        string                `json:"reason,omitempty"`
	Session       string                `json:"session,omitempty"`
	Ready         bool                  `json:"ready"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	StartTime     string                `json:"start_time"`
	Timestamp     string                `json:"timestamp"`
	Flow          float64               `json:"flow"`
	Devices       map[string]DeviceJSON `json:"devices"`
	Pulses        PulsesJSON            `json:"pulses"`
	Link          protocol.Counters     `json:"link"`
	Tasks         []TaskJSON            `json:"tasks"`
	MQTT          MQTTStatus            `json:"mqtt"`
	Network       *NetworkJSON          `json:"network,omitempty"`
	Config        ConfigJSON            `json:"config"`
}

// DeviceJSON is one vessel's state and driven outputs.
type DeviceJSON struct {
	Temp    float64     `json:"temp"`
	Water   bool        `json:"water"`
	Heat    bool        `json:"heat"`
	Pump    bool        `json:"pump"`
	Cool    bool        `json:"cool"`
	Warn    bool        `json:"warn"`
	Alarm   bool        `json:"alarm"`
	Outputs OutputsJSON `json:"outputs"`
}

// OutputsJSON is the JSON representation of Outputs.
type OutputsJSON struct {
	Heater    bool   `json:"heater"`
	Pump      bool   `json:"pump"`
	Cooler    bool   `json:"cooler"`
	WarnLamp  bool   `json:"warn_lamp"`
	AlarmLamp bool   `json:"alarm_lamp"`
	CoolPhase string `json:"cool_phase,omitempty"`
}

// PulsesJSON is the JSON representation of Pulses.
type PulsesJSON struct {
	Total      uint64 `json:"total"`
	LastWindow uint32 `json:"last_window"`
	LastEdge   string `json:"last_edge,omitempty"`
}

// TaskJSON is the JSON representation of one task's stats.
type TaskJSON struct {
	Name              string `json:"name"`
	Runs              uint64 `json:"runs"`
	Faults            uint64 `json:"faults"`
	ConsecutiveFaults int    `json:"consecutive_faults"`
	LastResult        string `json:"last_result"`
	LastError         string `json:"last_error,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SerialPort     string  `json:"serial_port"`
	Baud           int     `json:"baud"`
	PulsesPerLiter float64 `json:"pulses_per_liter"`
	ActuatorMs     int64   `json:"actuator_ms"`
	BroadcastMs    int64   `json:"broadcast_ms"`
	WarnBlinkMs    int64   `json:"warn_blink_ms"`
	AlarmBlinkMs   int64   `json:"alarm_blink_ms"`
	HeartbeatMs    int64   `json:"heartbeat_ms"`
	Broker         string  `json:"broker"`
	HTTPAddr       string  `json:"http_addr"`
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func buildDevice(d state.DeviceState, o Outputs) DeviceJSON {
	return DeviceJSON{
		Temp:  round2(d.Temperature),
		Water: d.WaterLevelOK,
		Heat:  d.HeaterOn,
		Pump:  d.PumpOn,
		Cool:  d.CoolerOn,
		Warn:  d.Warning,
		Alarm: d.Alarm,
		Outputs: OutputsJSON{
			Heater:    o.Heater,
			Pump:      o.Pump,
			Cooler:    o.Cooler,
			WarnLamp:  o.WarnLamp,
			AlarmLamp: o.AlarmLamp,
			CoolPhase: o.CoolPhase,
		},
	}
}

func buildInner(snap Snapshot) StatusInner {
	devices := make(map[string]DeviceJSON, len(state.Devices))
	for _, id := range state.Devices {
		d, _ := snap.State.Device(id)
		devices[string(id)] = buildDevice(d, snap.Outputs[id])
	}

	tasks := make([]TaskJSON, 0, len(snap.Tasks))
	for _, ts := range snap.Tasks {
		tasks = append(tasks, TaskJSON{
			Name:              ts.Name,
			Runs:              ts.Runs,
			Faults:            ts.Faults,
			ConsecutiveFaults: ts.ConsecutiveFaults,
			LastResult:        ts.LastResult.String(),
			LastError:         ts.LastError,
		})
	}

	pulses := PulsesJSON{Total: snap.Pulses.Total, LastWindow: snap.Pulses.LastWindow}
	if !snap.Pulses.LastEdge.IsZero() {
		pulses.LastEdge = snap.Pulses.LastEdge.UTC().Format(time.RFC3339Nano)
	}

	return StatusInner{
		Ready:         snap.Mirrored,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Flow:          round2(snap.State.Flow),
		Devices:       devices,
		Pulses:        pulses,
		Link:          snap.Link,
		Tasks:         tasks,
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			SerialPort:     snap.Config.SerialPort,
			Baud:           snap.Config.Baud,
			PulsesPerLiter: snap.Config.PulsesPerLiter,
			ActuatorMs:     snap.Config.ActuatorMs,
			BroadcastMs:    snap.Config.BroadcastMs,
			WarnBlinkMs:    snap.Config.WarnBlinkMs,
			AlarmBlinkMs:   snap.Config.AlarmBlinkMs,
			HeartbeatMs:    snap.Config.HeartbeatMs,
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// Build returns the status document for snap.
func Build(snap Snapshot) StatusJSON {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)
	return StatusJSON{Status: inner}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(Build(snap), "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason, session string) []byte {
	sj := Build(snap)
	sj.Status.Event = event
	sj.Status.Reason = reason
	sj.Status.Session = session

	data, _ := json.Marshal(sj)
	return data
}
