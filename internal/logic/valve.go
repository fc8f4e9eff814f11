package logic

import (
	"errors"
	"fmt"
	"time"
)

// DefaultPulseDuration is how long a valve line is held active.
const DefaultPulseDuration = 2 * time.Second

// ErrBusy is returned when a pulse is requested while another is active.
var ErrBusy = errors.New("valve: pulse already active")

// ValveActuator drives a two-position valve with timed pulses on one of two
// output lines. At most one pulse is active at a time and there is no cancel.
// Not safe for concurrent use; owned by the scheduler.
type ValveActuator struct {
	out      Output
	duration time.Duration
	state    ActuatorState

	actuations map[Channel]int
	rejected   int
}

// NewValveActuator creates an idle actuator.
func NewValveActuator(out Output, pulse time.Duration) *ValveActuator {
	return &ValveActuator{
		out:        out,
		duration:   pulse,
		actuations: make(map[Channel]int),
	}
}

// Request starts a pulse on ch. While a pulse is active the request is
// rejected with ErrBusy and the active pulse is left untouched.
// If the line cannot be asserted the actuator stays idle.
func (v *ValveActuator) Request(ch Channel, now time.Time) error {
	if v.state.Pulsing {
		v.rejected++
		return ErrBusy
	}
	if err := v.out.Set(ch, true); err != nil {
		// Best effort: never leave a half-asserted line behind.
		_ = v.out.Set(ch, false)
		return fmt.Errorf("assert %s: %w", ch, err)
	}
	v.state = ActuatorState{Pulsing: true, Channel: ch, StartedAt: now}
	v.actuations[ch]++
	return nil
}

// Tick ends the active pulse once it has lasted the pulse duration.
// It reports whether a pulse ended; err is a deassert failure, in which case
// the actuator is idle anyway.
func (v *ValveActuator) Tick(now time.Time) (ended bool, err error) {
	if !v.state.Pulsing {
		return false, nil
	}
	if now.Sub(v.state.StartedAt) < v.duration {
		return false, nil
	}
	ch := v.state.Channel
	v.state = ActuatorState{}
	if err := v.out.Set(ch, false); err != nil {
		return true, fmt.Errorf("deassert %s: %w", ch, err)
	}
	return true, nil
}

// State returns the current actuator state.
func (v *ValveActuator) State() ActuatorState {
	return v.state
}

// Pulsing reports whether a pulse is active.
func (v *ValveActuator) Pulsing() bool {
	return v.state.Pulsing
}

// Counts returns completed-start counts per channel and the number of
// rejected requests since startup.
func (v *ValveActuator) Counts() (opens, closes, rejected int) {
	return v.actuations[ChannelOpen], v.actuations[ChannelClose], v.rejected
}
