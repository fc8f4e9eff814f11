// Package sampler runs the high-rate sensor sampling goroutine.
// It only ever touches the sensor reader, its own edge detector and
// PulseAccumulator.Increment, so it can never be blocked by the scheduler.
package sampler

import (
	"context"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/gpio"
	"github.com/sweeney/leak-gateway/internal/logic"
)

// Sampler polls the sensor and counts rising edges.
type Sampler struct {
	reader gpio.Reader
	edge   *logic.EdgeDetector
	pulses *logic.PulseAccumulator
	log    zerolog.Logger

	readErrors int
}

// New creates a Sampler that counts a pulse each time the sensor level rises
// above threshold.
func New(reader gpio.Reader, threshold int, pulses *logic.PulseAccumulator, log zerolog.Logger) *Sampler {
	return &Sampler{
		reader: reader,
		edge:   logic.NewEdgeDetector(threshold),
		pulses: pulses,
		log:    log,
	}
}

// Run samples once per tick until ctx is done or tick is closed.
// The goroutine is locked to its OS thread for the whole run.
func (s *Sampler) Run(ctx context.Context, tick <-chan time.Time) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-tick:
			if !ok {
				return
			}
			s.Sample()
		}
	}
}

// Sample reads the sensor once. Read errors are logged at the start of a
// burst and when it ends; the edge state is left as it was.
func (s *Sampler) Sample() {
	level, err := s.reader.Read()
	if err != nil {
		if s.readErrors == 0 {
			s.log.Warn().Err(err).Msg("sensor read failed")
		}
		s.readErrors++
		return
	}
	if s.readErrors > 0 {
		s.log.Info().Int("failed_reads", s.readErrors).Msg("sensor read recovered")
		s.readErrors = 0
	}

	if s.edge.Observe(level) {
		s.pulses.Increment()
	}
}
