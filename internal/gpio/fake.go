package gpio

import (
	"errors"
	"sync"

	"github.com/sweeney/leak-gateway/internal/logic"
)

// FakeReader is a test double that returns scripted sensor levels.
type FakeReader struct {
	// Samples contains scripted levels to return.
	// Each call to Read() consumes the next sample.
	Samples []int

	// index tracks current position in Samples
	index int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// NewFakeReader creates a FakeReader with the given samples.
func NewFakeReader(samples []int) *FakeReader {
	return &FakeReader{Samples: samples}
}

// Read returns the next scripted sample.
// If samples are exhausted, returns the last sample repeatedly.
func (f *FakeReader) Read() (int, error) {
	if f.ReadError != nil {
		return 0, f.ReadError
	}

	if len(f.Samples) == 0 {
		return 0, errors.New("no samples configured")
	}

	sample := f.Samples[f.index]
	if f.index < len(f.Samples)-1 {
		f.index++
	}

	return sample, nil
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of samples.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Closed = false
}

// LineChange is one recorded valve line transition.
type LineChange struct {
	Channel logic.Channel
	Active  bool
}

// FakeValve records valve line changes for test assertions.
type FakeValve struct {
	mu sync.Mutex

	// Changes contains every Set call in order.
	Changes []LineChange

	// SetError, if set, will be returned by Set.
	SetError error

	// Closed tracks if Close was called.
	Closed bool

	active map[logic.Channel]bool
}

// NewFakeValve creates a FakeValve with both lines inactive.
func NewFakeValve() *FakeValve {
	return &FakeValve{active: make(map[logic.Channel]bool)}
}

// Set records the line change.
func (f *FakeValve) Set(ch logic.Channel, active bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.SetError != nil {
		return f.SetError
	}
	f.Changes = append(f.Changes, LineChange{Channel: ch, Active: active})
	f.active[ch] = active
	return nil
}

// Active reports whether the line for ch is currently asserted.
func (f *FakeValve) Active(ch logic.Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active[ch]
}

// History returns a copy of the recorded changes.
func (f *FakeValve) History() []LineChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]LineChange(nil), f.Changes...)
}

// Close deasserts both lines and marks the valve as closed.
func (f *FakeValve) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.active = make(map[logic.Channel]bool)
	f.Closed = true
	return nil
}
