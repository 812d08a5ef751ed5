// Package logic contains the pure control state machines of the monitor.
// This package has NO external dependencies (no GPIO, serial, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

// CoolPhase is the two-valued duty-cycle phase of a cooling output.
type CoolPhase int

const (
	// AwaitingOn means the next tick with intent set energizes the output.
	AwaitingOn CoolPhase = iota
	// AwaitingOff means the next tick with intent set de-energizes the output.
	AwaitingOff
)

func (p CoolPhase) String() string {
	if p == AwaitingOff {
		return "AWAITING_OFF"
	}
	return "AWAITING_ON"
}
