package logic

import (
	"errors"
	"testing"
	"time"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type lineChange struct {
	ch     Channel
	active bool
}

// recordingOutput records every line change.
type recordingOutput struct {
	changes []lineChange
	failOn  *lineChange
}

func (r *recordingOutput) Set(ch Channel, active bool) error {
	if r.failOn != nil && *r.failOn == (lineChange{ch, active}) {
		return errors.New("line fault")
	}
	r.changes = append(r.changes, lineChange{ch, active})
	return nil
}

func TestValveRequestAndTimeout(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	out := &recordingOutput{}
	v := NewValveActuator(out, 2*time.Second)

	if err := v.Request(ChannelOpen, now); err != nil {
		t.Fatalf("request from idle: %v", err)
	}
	st := v.State()
	if !st.Pulsing || st.Channel != ChannelOpen || !st.StartedAt.Equal(now) {
		t.Fatalf("unexpected state after request: %+v", st)
	}
	if len(out.changes) != 1 || out.changes[0] != (lineChange{ChannelOpen, true}) {
		t.Fatalf("expected OPEN asserted, got %+v", out.changes)
	}

	ended, err := v.Tick(now.Add(1999 * time.Millisecond))
	if ended || err != nil {
		t.Errorf("tick before duration: ended=%v err=%v", ended, err)
	}
	if !v.Pulsing() {
		t.Error("should still be pulsing before duration")
	}

	ended, err = v.Tick(now.Add(2 * time.Second))
	if !ended || err != nil {
		t.Errorf("tick at duration: ended=%v err=%v", ended, err)
	}
	if v.Pulsing() {
		t.Error("should be idle after duration")
	}
	if len(out.changes) != 2 || out.changes[1] != (lineChange{ChannelOpen, false}) {
		t.Fatalf("expected OPEN deasserted, got %+v", out.changes)
	}

	// Only one transition back to idle.
	ended, _ = v.Tick(now.Add(3 * time.Second))
	if ended {
		t.Error("second tick after timeout should not end another pulse")
	}
	if len(out.changes) != 2 {
		t.Errorf("no further line changes expected, got %+v", out.changes)
	}
}

func TestValveRejectsWhilePulsing(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	out := &recordingOutput{}
	v := NewValveActuator(out, 2*time.Second)

	if err := v.Request(ChannelOpen, now); err != nil {
		t.Fatal(err)
	}

	err := v.Request(ChannelClose, now.Add(500*time.Millisecond))
	if !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}
	err = v.Request(ChannelOpen, now.Add(time.Second))
	if !errors.Is(err, ErrBusy) {
		t.Errorf("same channel: expected ErrBusy, got %v", err)
	}

	st := v.State()
	if st.Channel != ChannelOpen {
		t.Errorf("active channel changed to %s", st.Channel)
	}
	if !st.StartedAt.Equal(now) {
		t.Errorf("startedAt restarted: %v", st.StartedAt)
	}
	if len(out.changes) != 1 {
		t.Errorf("rejected requests must not touch lines: %+v", out.changes)
	}

	opens, closes, rejected := v.Counts()
	if opens != 1 || closes != 0 || rejected != 2 {
		t.Errorf("counts: opens=%d closes=%d rejected=%d", opens, closes, rejected)
	}

	// After the pulse ends a new request is accepted.
	v.Tick(now.Add(2 * time.Second))
	if err := v.Request(ChannelClose, now.Add(2*time.Second)); err != nil {
		t.Errorf("request after idle: %v", err)
	}
}

func TestValveAssertFailureStaysIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	out := &recordingOutput{failOn: &lineChange{ChannelClose, true}}
	v := NewValveActuator(out, 2*time.Second)

	if err := v.Request(ChannelClose, now); err == nil {
		t.Fatal("expected error when line cannot be asserted")
	}
	if v.Pulsing() {
		t.Error("actuator should stay idle after assert failure")
	}
	if len(out.changes) != 1 || out.changes[0] != (lineChange{ChannelClose, false}) {
		t.Errorf("expected cleanup deassert, got %+v", out.changes)
	}
}

func TestValveDeassertFailureStillIdle(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	out := &recordingOutput{failOn: &lineChange{ChannelOpen, false}}
	v := NewValveActuator(out, 2*time.Second)

	if err := v.Request(ChannelOpen, now); err != nil {
		t.Fatal(err)
	}
	ended, err := v.Tick(now.Add(2 * time.Second))
	if !ended {
		t.Error("expected pulse to end")
	}
	if err == nil {
		t.Error("expected deassert error")
	}
	if v.Pulsing() {
		t.Error("actuator should be idle after deassert failure")
	}
}
