package logic

// EdgeDetector turns sampled sensor levels into rising-edge pulses.
// Owned by the sampling goroutine; not safe for concurrent use.
type EdgeDetector struct {
	threshold int
	above     bool
}

// NewEdgeDetector creates a detector that counts a pulse each time the level
// rises above threshold.
func NewEdgeDetector(threshold int) *EdgeDetector {
	return &EdgeDetector{threshold: threshold}
}

// Observe feeds one sample and reports whether it is a rising edge.
func (e *EdgeDetector) Observe(level int) bool {
	if level <= e.threshold {
		e.above = false
		return false
	}
	rising := !e.above
	e.above = true
	return rising
}

// Above reports whether the last sample was above threshold.
func (e *EdgeDetector) Above() bool {
	return e.above
}
