// Package gpio provides flow sensor input and valve output with hardware abstraction.
// The real implementation uses Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// FullScale is the level reported for an active digital input, so that
// thresholds stay expressed in 12-bit ADC units.
const FullScale = 4095

// Reader reads the flow sensor level.
type Reader interface {
	// Read returns the current sensor level in ADC units.
	Read() (int, error)

	// Close releases GPIO resources.
	Close() error
}
