package gpio

import (
	"errors"
	"testing"

	"github.com/sweeney/leak-gateway/internal/logic"
)

func TestFakeReaderRead(t *testing.T) {
	f := NewFakeReader([]int{0, FullScale, 120})

	want := []int{0, FullScale, 120, 120}
	for i, w := range want {
		got, err := f.Read()
		if err != nil {
			t.Fatalf("sample %d: unexpected error: %v", i, err)
		}
		if got != w {
			t.Errorf("sample %d: got %d, want %d", i, got, w)
		}
	}
}

func TestFakeReaderNoSamples(t *testing.T) {
	f := NewFakeReader(nil)

	_, err := f.Read()
	if err == nil {
		t.Error("expected error with no samples")
	}
}

func TestFakeReaderError(t *testing.T) {
	f := NewFakeReader([]int{FullScale})
	f.ReadError = errors.New("simulated error")

	_, err := f.Read()
	if err == nil {
		t.Error("expected error to be returned")
	}
	if err.Error() != "simulated error" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFakeReaderCloseAndReset(t *testing.T) {
	f := NewFakeReader([]int{1, 2})

	if f.Closed {
		t.Error("should not be closed initially")
	}
	f.Read()
	if err := f.Close(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	if !f.Closed {
		t.Error("should be closed after Close()")
	}

	f.Reset()
	if got, _ := f.Read(); got != 1 {
		t.Errorf("after reset: got %d, want 1", got)
	}
	if f.Closed {
		t.Error("reset should clear Closed")
	}
}

func TestFakeValveRecordsChanges(t *testing.T) {
	v := NewFakeValve()

	if err := v.Set(logic.ChannelOpen, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v.Active(logic.ChannelOpen) {
		t.Error("OPEN should be active")
	}
	if v.Active(logic.ChannelClose) {
		t.Error("CLOSE should be inactive")
	}
	v.Set(logic.ChannelOpen, false)

	h := v.History()
	if len(h) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(h))
	}
	if h[1] != (LineChange{Channel: logic.ChannelOpen, Active: false}) {
		t.Errorf("unexpected change: %+v", h[1])
	}

	v.Set(logic.ChannelClose, true)
	v.Close()
	if v.Active(logic.ChannelClose) || !v.Closed {
		t.Error("Close should deassert lines and mark closed")
	}
}

func TestFakeValveError(t *testing.T) {
	v := NewFakeValve()
	v.SetError = errors.New("line busy")

	if err := v.Set(logic.ChannelClose, true); err == nil {
		t.Error("expected error")
	}
	if len(v.History()) != 0 {
		t.Error("failed Set must not be recorded")
	}
}
