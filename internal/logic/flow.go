package logic

import "time"

// DefaultCalibration is the sensor's pulse frequency (Hz) per L/min.
const DefaultCalibration = 6.6

// EstimateFlow converts pulses counted over window into L/min.
// Zero pulses always yield exactly 0.
func EstimateFlow(pulses uint64, window time.Duration, calibration float64) float64 {
	if pulses == 0 || window <= 0 || calibration <= 0 {
		return 0
	}
	frequency := float64(pulses) / window.Seconds()
	return frequency / calibration
}
