package cloud

import "time"

// TimeLayout is the store's timestamp format.
const TimeLayout = "2006-01-02 15:04:05"

// WallClock reports the current wall-clock time, if it is known.
type WallClock interface {
	Now() (time.Time, bool)
}

// SystemClock is the host clock, trusted only once the kernel reports it
// synchronized. Times are returned in loc.
type SystemClock struct {
	loc    *time.Location
	synced func() bool
}

// NewSystemClock creates a SystemClock reporting times in loc.
func NewSystemClock(loc *time.Location) *SystemClock {
	return &SystemClock{loc: loc, synced: kernelSynced}
}

// Now returns the local time, or false while the clock is unsynchronized.
func (c *SystemClock) Now() (time.Time, bool) {
	if !c.synced() {
		return time.Time{}, false
	}
	return time.Now().In(c.loc), true
}

// FixedClock is a WallClock for tests.
type FixedClock struct {
	T     time.Time
	Unset bool
}

// Now returns T, or false if Unset.
func (c FixedClock) Now() (time.Time, bool) {
	if c.Unset {
		return time.Time{}, false
	}
	return c.T, true
}
