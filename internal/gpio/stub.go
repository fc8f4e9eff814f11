//go:build !linux

package gpio

import (
	"errors"

	"github.com/sweeney/leak-gateway/internal/logic"
)

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// RealReader is not available on non-Linux platforms.
type RealReader struct{}

// NewRealReader returns an error on non-Linux platforms.
func NewRealReader(chipName string, pin int) (*RealReader, error) {
	return nil, errUnsupported
}

// Read is not implemented on non-Linux platforms.
func (r *RealReader) Read() (int, error) {
	return 0, errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (r *RealReader) Close() error {
	return nil
}

// EdgeCounter is not available on non-Linux platforms.
type EdgeCounter struct{}

// NewEdgeCounter returns an error on non-Linux platforms.
func NewEdgeCounter(chipName string, pin int, onPulse func()) (*EdgeCounter, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (e *EdgeCounter) Close() error {
	return nil
}

// RealValve is not available on non-Linux platforms.
type RealValve struct{}

// NewRealValve returns an error on non-Linux platforms.
func NewRealValve(chipName string, openPin, closePin int) (*RealValve, error) {
	return nil, errUnsupported
}

// Set is not implemented on non-Linux platforms.
func (v *RealValve) Set(ch logic.Channel, active bool) error {
	return errors.New("gpio: not supported")
}

// Close is not implemented on non-Linux platforms.
func (v *RealValve) Close() error {
	return nil
}
