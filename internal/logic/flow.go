package logic

import "time"

// DefaultPulsesPerLiter is the calibration constant of the ZJS201-class
// hall-effect flow sensor.
const DefaultPulsesPerLiter = 450

// FlowRate converts the pulses counted in one window into liters per minute:
// (pulses / pulsesPerLiter) * (60 / window seconds). Invalid calibration or
// window yields 0.
func FlowRate(pulses uint32, pulsesPerLiter float64, window time.Duration) float64 {
	if pulsesPerLiter <= 0 || window <= 0 {
		return 0
	}
	return (float64(pulses) / pulsesPerLiter) * (60 / window.Seconds())
}
