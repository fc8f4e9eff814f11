package scheduler

import "time"

// Timer fires when at least Interval has passed since it last fired.
// Missed periods are not caught up. An Interval of 0 fires on every check.
type Timer struct {
	LastFired time.Time
	Interval  time.Duration
}

// NewTimer creates a Timer that first fires one interval after start.
func NewTimer(start time.Time, interval time.Duration) Timer {
	return Timer{LastFired: start, Interval: interval}
}

// Due reports whether the timer should fire at now.
func (t *Timer) Due(now time.Time) bool {
	return now.Sub(t.LastFired) >= t.Interval
}

// Fire records now as the last firing.
func (t *Timer) Fire(now time.Time) {
	t.LastFired = now
}

// Poll fires the timer if it is due and reports whether it did.
func (t *Timer) Poll(now time.Time) bool {
	if !t.Due(now) {
		return false
	}
	t.Fire(now)
	return true
}
