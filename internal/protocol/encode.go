package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/sweeney/vessel-monitor/internal/state"
)

// WireState is one vessel as it appears on the wire. Field order is the
// outbound key order.
type WireState struct {
	Device string  `json:"device"`
	Temp   decimal `json:"temp"`
	Water  bit     `json:"water"`
	Heat   bit     `json:"heat"`
	Pump   bit     `json:"pump"`
	Cool   bit     `json:"cool"`
	Warn   bit     `json:"warn"`
	Alarm  bit     `json:"alarm"`
	Flow   decimal `json:"flow"`
}

// NewWireState builds the wire record for one vessel.
func NewWireState(id state.DeviceID, d state.DeviceState, flow float64) WireState {
	return WireState{
		Device: string(id),
		Temp:   decimal(d.Temperature),
		Water:  bit(d.WaterLevelOK),
		Heat:   bit(d.HeaterOn),
		Pump:   bit(d.PumpOn),
		Cool:   bit(d.CoolerOn),
		Warn:   bit(d.Warning),
		Alarm:  bit(d.Alarm),
		Flow:   decimal(flow),
	}
}

// WireStates builds the wire records of both vessels in wire order.
func WireStates(s state.Snapshot) []WireState {
	out := make([]WireState, 0, len(state.Devices))
	for _, id := range state.Devices {
		d, _ := s.Device(id)
		out = append(out, NewWireState(id, d, s.Flow))
	}
	return out
}

// Encode renders one vessel's full state, with the shared flow duplicated
// in, as a newline-terminated line.
func Encode(id state.DeviceID, d state.DeviceState, flow float64) ([]byte, error) {
	b, err := json.Marshal(NewWireState(id, d, flow))
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", id, err)
	}
	return append(b, '\n'), nil
}

// EncodeSnapshot renders both vessels in wire order.
func EncodeSnapshot(s state.Snapshot) ([]byte, error) {
	var out []byte
	for _, id := range state.Devices {
		d, err := s.Device(id)
		if err != nil {
			return nil, err
		}
		line, err := Encode(id, d, s.Flow)
		if err != nil {
			return nil, err
		}
		out = append(out, line...)
	}
	return out, nil
}
