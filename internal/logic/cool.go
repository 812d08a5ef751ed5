package logic

// CoolCycle maps a binary "cooling requested" intent onto a duty-cycled
// output. While intent holds, the output toggles on every tick, starting
// energized. Dropping intent de-energizes immediately and rewinds the phase.
type CoolCycle struct {
	phase CoolPhase
}

// Tick advances the cycle by one control tick and returns the output level.
func (c *CoolCycle) Tick(intent bool) bool {
	if !intent {
		c.phase = AwaitingOn
		return false
	}
	if c.phase == AwaitingOn {
		c.phase = AwaitingOff
		return true
	}
	c.phase = AwaitingOn
	return false
}

// Phase returns the current phase.
func (c *CoolCycle) Phase() CoolPhase {
	return c.phase
}
