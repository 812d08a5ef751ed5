package logic

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var start = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func TestCoolCycleTogglesEveryTickStartingOn(t *testing.T) {
	var c CoolCycle

	want := []bool{true, false, true, false, true, false, true}
	for i, w := range want {
		require.Equal(t, w, c.Tick(true), "tick %d", i)
	}
}

func TestCoolCycleIntentOffForcesOffAndResets(t *testing.T) {
	for _, ticksOn := range []int{1, 2, 3, 4} {
		var c CoolCycle
		for i := 0; i < ticksOn; i++ {
			c.Tick(true)
		}

		assert.False(t, c.Tick(false), "after %d on-ticks: off when intent drops", ticksOn)
		assert.Equal(t, AwaitingOn, c.Phase(), "after %d on-ticks", ticksOn)
		// Stays off regardless of prior phase.
		for i := 0; i < 3; i++ {
			assert.False(t, c.Tick(false), "after %d on-ticks: energized with intent off", ticksOn)
		}
		// Re-arming starts again from on.
		assert.True(t, c.Tick(true), "after %d on-ticks: first tick after re-arm", ticksOn)
	}
}

func TestCoolPhaseString(t *testing.T) {
	assert.Equal(t, "AWAITING_ON", AwaitingOn.String())
	assert.Equal(t, "AWAITING_OFF", AwaitingOff.String())
}

func TestBlinkerTogglesAtInterval(t *testing.T) {
	b := NewBlinker(300 * time.Millisecond)

	// 100ms task tick, 300ms blink interval
	want := []bool{true, true, true, false, false, false, true}
	for i, w := range want {
		now := start.Add(time.Duration(i) * 100 * time.Millisecond)
		require.Equal(t, w, b.Tick(true, now), "t=%dms", i*100)
	}
}

func TestBlinkerUniformTickTogglesEveryTick(t *testing.T) {
	b := NewBlinker(time.Second)

	for i := 0; i < 6; i++ {
		got := b.Tick(true, start.Add(time.Duration(i)*time.Second))
		require.Equal(t, i%2 == 0, got, "tick %d", i)
	}
}

func TestBlinkerFlagClearedForcesOff(t *testing.T) {
	b := NewBlinker(time.Second)

	require.True(t, b.Tick(true, start), "lit on first flagged tick")
	assert.False(t, b.Tick(false, start.Add(100*time.Millisecond)), "off when flag cleared")
	assert.False(t, b.Lit())
	// Phase was reset: next flagged tick lights immediately.
	assert.True(t, b.Tick(true, start.Add(200*time.Millisecond)))
}

func TestFlowRate(t *testing.T) {
	tests := []struct {
		name   string
		pulses uint32
		ppl    float64
		window time.Duration
		want   float64
	}{
		{"60 pulses in 1s", 60, 450, time.Second, 8.0},
		{"no pulses", 0, 450, time.Second, 0},
		{"450 pulses in 1s", 450, 450, time.Second, 60},
		{"60 pulses in 2s", 60, 450, 2 * time.Second, 4.0},
		{"zero calibration", 60, 0, time.Second, 0},
		{"zero window", 60, 450, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FlowRate(tt.pulses, tt.ppl, tt.window))
		})
	}
}

func TestDebouncerZeroDurationPassesThrough(t *testing.T) {
	d := NewDebouncer(0)

	stable, changed, ready := d.Process(true, start)
	require.True(t, stable)
	require.True(t, changed)
	require.True(t, ready)

	stable, changed, _ = d.Process(false, start.Add(time.Second))
	assert.False(t, stable)
	assert.True(t, changed)
}

func TestDebouncerBaseline(t *testing.T) {
	d := NewDebouncer(2 * time.Second)

	// First sample - starts observation
	_, _, ready := d.Process(true, start)
	require.False(t, ready, "not baselined after first sample")

	// Before debounce period
	_, _, ready = d.Process(true, start.Add(time.Second))
	require.False(t, ready, "not baselined before debounce period")

	// After debounce period - baseline established
	stable, _, ready := d.Process(true, start.Add(2*time.Second))
	require.True(t, ready)
	require.True(t, stable)
	assert.True(t, d.IsBaselined())
}

func TestDebouncerRejectsBounce(t *testing.T) {
	d := NewDebouncer(2 * time.Second)
	d.Process(true, start)
	d.Process(true, start.Add(2*time.Second))

	// Bounce to false for one sample only
	stable, changed, _ := d.Process(false, start.Add(3*time.Second))
	assert.True(t, stable, "bounce keeps stable level")
	assert.False(t, changed)

	stable, changed, _ = d.Process(true, start.Add(4*time.Second))
	assert.True(t, stable)
	assert.False(t, changed, "return to stable is not a change")

	// Held false long enough
	d.Process(false, start.Add(5*time.Second))
	d.Process(false, start.Add(6*time.Second))
	stable, changed, _ = d.Process(false, start.Add(7*time.Second))
	assert.False(t, stable)
	assert.True(t, changed)
}
