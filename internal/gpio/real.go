//go:build linux

package gpio

import (
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/leak-gateway/internal/logic"
)

// RealReader reads the flow sensor from actual hardware using Linux GPIO character device.
type RealReader struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewRealReader creates a sensor reader on the given chip and BCM pin.
func NewRealReader(chipName string, pin int) (*RealReader, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	// Pull-down keeps a disconnected sensor reading as no flow.
	line, err := chip.RequestLine(pin, gpiocdev.AsInput, gpiocdev.WithPullDown)
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d: %w", pin, err)
	}

	return &RealReader{chip: chip, line: line}, nil
}

// Read returns FullScale when the line is active, 0 otherwise.
func (r *RealReader) Read() (int, error) {
	v, err := r.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read sensor pin: %w", err)
	}
	if v != 0 {
		return FullScale, nil
	}
	return 0, nil
}

// Close releases GPIO resources.
func (r *RealReader) Close() error {
	return closeLines(r.chip, r.line)
}

// EdgeCounter counts rising edges on the sensor line using kernel edge
// detection instead of polling. onPulse runs on gpiocdev's event goroutine.
type EdgeCounter struct {
	chip *gpiocdev.Chip
	line *gpiocdev.Line
}

// NewEdgeCounter requests the sensor line with rising-edge events.
func NewEdgeCounter(chipName string, pin int, onPulse func()) (*EdgeCounter, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	handler := func(evt gpiocdev.LineEvent) {
		if evt.Type == gpiocdev.LineEventRisingEdge {
			onPulse()
		}
	}
	line, err := chip.RequestLine(pin,
		gpiocdev.WithPullDown,
		gpiocdev.WithRisingEdge,
		gpiocdev.WithEventHandler(handler))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request sensor pin %d for edges: %w", pin, err)
	}

	return &EdgeCounter{chip: chip, line: line}, nil
}

// Close stops edge detection and releases GPIO resources.
func (e *EdgeCounter) Close() error {
	return closeLines(e.chip, e.line)
}

// RealValve drives the valve's two lines as active-high outputs.
type RealValve struct {
	chip  *gpiocdev.Chip
	lines map[logic.Channel]*gpiocdev.Line
}

// NewRealValve requests the open and close pins as outputs, both inactive.
func NewRealValve(chipName string, openPin, closePin int) (*RealValve, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	openLine, err := chip.RequestLine(openPin, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request OPEN pin %d: %w", openPin, err)
	}

	closeLine, err := chip.RequestLine(closePin, gpiocdev.AsOutput(0))
	if err != nil {
		openLine.Close()
		chip.Close()
		return nil, fmt.Errorf("request CLOSE pin %d: %w", closePin, err)
	}

	return &RealValve{
		chip: chip,
		lines: map[logic.Channel]*gpiocdev.Line{
			logic.ChannelOpen:  openLine,
			logic.ChannelClose: closeLine,
		},
	}, nil
}

// Set drives the line for ch high (active) or low.
func (v *RealValve) Set(ch logic.Channel, active bool) error {
	line, ok := v.lines[ch]
	if !ok {
		return fmt.Errorf("unknown valve channel %q", ch)
	}
	value := 0
	if active {
		value = 1
	}
	if err := line.SetValue(value); err != nil {
		return fmt.Errorf("set %s pin: %w", ch, err)
	}
	return nil
}

// Close drives both lines low, then releases them.
// Lines are reconfigured as inputs with pull-down (matching Pi boot defaults)
// so no valve coil stays energized after the daemon exits.
func (v *RealValve) Close() error {
	var errs []error
	for ch, line := range v.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("deassert %s pin: %w", ch, err))
		}
	}
	lines := make([]*gpiocdev.Line, 0, len(v.lines))
	for _, line := range v.lines {
		lines = append(lines, line)
	}
	if err := closeLines(v.chip, lines...); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// closeLines reconfigures lines to Pi boot defaults (input with pull-down)
// before releasing them and the chip.
func closeLines(chip *gpiocdev.Chip, lines ...*gpiocdev.Line) error {
	var errs []error

	for _, line := range lines {
		if line == nil {
			continue
		}
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure pin: %w", err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close pin: %w", err))
		}
	}
	if chip != nil {
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
