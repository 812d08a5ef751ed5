// Package protocol implements the newline-delimited JSON link to the
// external controller.
//
// Each line is one JSON object describing one vessel:
//
//	{"device":"device1","temp":25.0,"water":1,"heat":0,"pump":0,"cool":0,"warn":0,"alarm":0,"flow":0.0}
//
// Outbound lines always carry every field. Inbound lines may carry any subset
// of the non-device fields and are applied as a partial update.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/sweeney/vessel-monitor/internal/state"
)

var (
	// ErrMalformedMessage is returned for a line that is not a JSON object,
	// lacks a device, or carries a field that cannot be coerced.
	ErrMalformedMessage = errors.New("malformed message")

	// ErrDecodeFault is returned when inbound bytes are not valid UTF-8 or a
	// line outgrows the buffer. The buffered bytes are discarded.
	ErrDecodeFault = errors.New("decode fault")
)

// Wire keys.
const (
	KeyDevice = "device"
	KeyTemp   = "temp"
	KeyWater  = "water"
	KeyHeat   = "heat"
	KeyPump   = "pump"
	KeyCool   = "cool"
	KeyWarn   = "warn"
	KeyAlarm  = "alarm"
	KeyFlow   = "flow"
)

// Message is one decoded inbound line.
type Message struct {
	Device state.DeviceID
	Fields state.Partial
	// Flow is shared by both vessels; it is applied whichever device the
	// message names.
	Flow *float64
}

// decimal is a float rendered with two decimal places and always at least
// one fractional digit, e.g. 25.0 or 23.13.
type decimal float64

func (d decimal) MarshalJSON() ([]byte, error) {
	v := float64(d)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("unsupported value %v", v)
	}
	v = round2(v)
	b := strconv.AppendFloat(nil, v, 'f', -1, 64)
	for _, c := range b {
		if c == '.' {
			return b, nil
		}
	}
	return append(b, '.', '0'), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// bit is a bool rendered as 0 or 1.
type bit bool

func (b bit) MarshalJSON() ([]byte, error) {
	if b {
		return []byte("1"), nil
	}
	return []byte("0"), nil
}
