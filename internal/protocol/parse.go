package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/sweeney/vessel-monitor/internal/state"
)

// Parse decodes one inbound line. Unknown keys are ignored. Values may be
// JSON numbers, booleans or numeric strings; a field that cannot be coerced
// rejects the whole line so nothing is half-applied.
func Parse(line string) (Message, error) {
	dec := json.NewDecoder(strings.NewReader(line))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if raw == nil {
		return Message{}, fmt.Errorf("%w: not an object", ErrMalformedMessage)
	}
	if dec.More() {
		return Message{}, fmt.Errorf("%w: trailing data", ErrMalformedMessage)
	}

	dv, ok := raw[KeyDevice]
	if !ok {
		return Message{}, fmt.Errorf("%w: missing %s", ErrMalformedMessage, KeyDevice)
	}
	name, ok := dv.(string)
	if !ok || name == "" {
		return Message{}, fmt.Errorf("%w: %s must be a non-empty string", ErrMalformedMessage, KeyDevice)
	}
	id, err := state.ParseDeviceID(name)
	if err != nil {
		return Message{}, err
	}

	msg := Message{Device: id}
	if msg.Fields.Temperature, err = floatField(raw, KeyTemp); err != nil {
		return Message{}, err
	}
	if msg.Flow, err = floatField(raw, KeyFlow); err != nil {
		return Message{}, err
	}
	for _, f := range []struct {
		key string
		dst **bool
	}{
		{KeyWater, &msg.Fields.WaterLevelOK},
		{KeyHeat, &msg.Fields.HeaterOn},
		{KeyPump, &msg.Fields.PumpOn},
		{KeyCool, &msg.Fields.CoolerOn},
		{KeyWarn, &msg.Fields.Warning},
		{KeyAlarm, &msg.Fields.Alarm},
	} {
		if *f.dst, err = boolField(raw, f.key); err != nil {
			return Message{}, err
		}
	}
	return msg, nil
}

func floatField(raw map[string]any, key string) (*float64, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	var f float64
	var err error
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	case bool:
		if x {
			f = 1
		}
	default:
		err = fmt.Errorf("unsupported type %T", v)
	}
	if err == nil && (math.IsNaN(f) || math.IsInf(f, 0)) {
		err = fmt.Errorf("non-finite value %v", f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
	}
	return &f, nil
}

func boolField(raw map[string]any, key string) (*bool, error) {
	v, ok := raw[key]
	if !ok {
		return nil, nil
	}
	var b bool
	switch x := v.(type) {
	case bool:
		b = x
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
		}
		b = f != 0
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(x))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedMessage, key, err)
		}
		b = n != 0
	default:
		return nil, fmt.Errorf("%w: %s: unsupported type %T", ErrMalformedMessage, key, v)
	}
	return &b, nil
}

// Apply writes msg into the store as a partial update. Flow is applied to
// the shared value regardless of the device named.
func Apply(s *state.Store, msg Message) error {
	if err := s.Update(msg.Device, msg.Fields); err != nil {
		return err
	}
	if msg.Flow != nil {
		s.SetFlow(*msg.Flow)
	}
	return nil
}
