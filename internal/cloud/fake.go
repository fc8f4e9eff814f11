package cloud

import (
	"context"
	"sync"
	"time"
)

// FakeStore is an in-memory Store for tests.
type FakeStore struct {
	mu sync.Mutex

	// Values holds the raw JSON stored at each path.
	Values map[string][]byte

	// Puts records every Put body in order.
	Puts []FakePut

	// Gets counts Get calls.
	Gets int

	// PutError and GetError, if set, are returned instead of succeeding.
	PutError error
	GetError error

	// Delay, if set, is waited (honouring ctx) before each call.
	Delay time.Duration
}

// FakePut is one recorded Put call.
type FakePut struct {
	Path string
	Body []byte
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{Values: make(map[string][]byte)}
}

func (f *FakeStore) wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return nil
	}
	select {
	case <-time.After(f.Delay):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Put records body at path.
func (f *FakeStore) Put(ctx context.Context, path string, body []byte) error {
	if err := f.wait(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PutError != nil {
		return f.PutError
	}
	f.Values[path] = append([]byte(nil), body...)
	f.Puts = append(f.Puts, FakePut{Path: path, Body: append([]byte(nil), body...)})
	return nil
}

// Get returns the value at path, or JSON null.
func (f *FakeStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Gets++
	if f.GetError != nil {
		return nil, f.GetError
	}
	v, ok := f.Values[path]
	if !ok {
		return []byte("null"), nil
	}
	return append([]byte(nil), v...), nil
}

// Set stores a raw value, as a remote app would.
func (f *FakeStore) Set(path, raw string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Values[path] = []byte(raw)
}

// PutCount returns the number of successful Put calls.
func (f *FakeStore) PutCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Puts)
}

// LastPut returns the most recent Put, if any.
func (f *FakeStore) LastPut() (FakePut, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.Puts) == 0 {
		return FakePut{}, false
	}
	return f.Puts[len(f.Puts)-1], true
}

// GetCount returns the number of Get calls.
func (f *FakeStore) GetCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Gets
}
