package logic

import "sync/atomic"

// PulseAccumulator hands the pulse count from the sampling goroutine to the
// scheduler. Increment and TakeAndReset are each a single atomic
// read-modify-write, so no pulse is lost or counted twice across the hand-off.
type PulseAccumulator struct {
	pending atomic.Uint64
	total   atomic.Uint64
}

// Increment records one pulse. Called only from the sampling goroutine.
func (a *PulseAccumulator) Increment() {
	a.pending.Add(1)
	a.total.Add(1)
}

// TakeAndReset returns the pulses counted since the previous call and resets
// the count to zero. Called only from the scheduler.
func (a *PulseAccumulator) TakeAndReset() uint64 {
	return a.pending.Swap(0)
}

// Total returns the number of pulses since startup.
func (a *PulseAccumulator) Total() uint64 {
	return a.total.Load()
}
