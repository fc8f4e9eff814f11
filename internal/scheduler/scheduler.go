// Package scheduler runs the gateway's periodic jobs: valve pulse timeout,
// flow calculation, remote staleness, push and pull. It is driven by Tick
// from a single goroutine and never blocks on network I/O.
package scheduler

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/logic"
	"github.com/sweeney/leak-gateway/internal/metrics"
)

// Syncer exchanges data with the remote store without blocking. A nil
// Syncer disables push and pull.
type Syncer interface {
	TryPush(r logic.Report) bool
	TryPull() (string, bool)
}

// Config holds the job intervals and flow parameters.
type Config struct {
	Calculate time.Duration
	Push      time.Duration
	Pull      time.Duration
	Timeout   time.Duration

	Calibration float64

	// SuspendWhilePulsing skips all jobs except the pulse timeout while the
	// valve is pulsing.
	SuspendWhilePulsing bool
}

// Result describes what happened during one Tick.
type Result struct {
	// Suspended is set when jobs were skipped because the valve is pulsing.
	Suspended bool
	// Reading is the new local reading, if the calculation ran.
	Reading *logic.Reading
	// Report is the report queued for push, if any.
	Report *logic.Report
	// Command is the new normalized command, if the pulled value changed.
	Command string
	// Started is the pulse started by the command, if any.
	Started *logic.ActuatorState
	// Rejected is set when a command arrived while a pulse was active.
	Rejected bool
	// Ended is set when a pulse ended at its timeout.
	Ended bool
	// Stale lists peers that went stale this tick.
	Stale []logic.Source
}

// Scheduler owns the valve, the command channel and the job timers.
type Scheduler struct {
	cfg     Config
	pulses  *logic.PulseAccumulator
	remote  *logic.RemoteReadingCache
	valve   *logic.ValveActuator
	sync    Syncer
	log     zerolog.Logger
	metrics *metrics.Metrics

	commands logic.CommandChannel

	calculate Timer
	push      Timer
	pull      Timer
	timeout   Timer

	local logic.Reading
	stale map[logic.PeerID]bool
}

// New creates a Scheduler whose timers start at start.
func New(cfg Config, start time.Time, pulses *logic.PulseAccumulator, remote *logic.RemoteReadingCache,
	valve *logic.ValveActuator, sync Syncer, log zerolog.Logger, m *metrics.Metrics) *Scheduler {
	stale := make(map[logic.PeerID]bool)
	for _, p := range remote.Peers() {
		stale[p.ID] = true
	}
	return &Scheduler{
		cfg:       cfg,
		pulses:    pulses,
		remote:    remote,
		valve:     valve,
		sync:      sync,
		log:       log,
		metrics:   m,
		calculate: NewTimer(start, cfg.Calculate),
		push:      NewTimer(start, cfg.Push),
		pull:      NewTimer(start, cfg.Pull),
		timeout:   NewTimer(start, cfg.Timeout),
		local:     logic.Reading{Source: logic.LocalSource, ObservedAt: start},
		stale:     stale,
	}
}

// Tick runs every due job once, in order.
func (s *Scheduler) Tick(now time.Time) Result {
	var res Result

	if s.timeout.Poll(now) {
		s.checkTimeout(now, &res)
	}

	if s.cfg.SuspendWhilePulsing && s.valve.Pulsing() {
		res.Suspended = true
		return res
	}

	if s.calculate.Poll(now) {
		s.calculateFlow(now, &res)
		s.checkRemote(now, &res)
	}

	if s.push.Poll(now) {
		s.queuePush(now, &res)
	}

	if s.pull.Poll(now) {
		s.applyPull(now, &res)
	}

	return res
}

func (s *Scheduler) checkTimeout(now time.Time, res *Result) {
	st := s.valve.State()
	ended, err := s.valve.Tick(now)
	if err != nil {
		s.log.Error().Err(err).Str("channel", string(st.Channel)).Msg("valve deassert failed")
	}
	if ended {
		res.Ended = true
		s.log.Info().
			Str("channel", string(st.Channel)).
			Dur("pulse", now.Sub(st.StartedAt)).
			Msg("valve pulse ended")
	}
}

// calculateFlow drains the pulse count over a fixed window equal to the
// calculation interval.
func (s *Scheduler) calculateFlow(now time.Time, res *Result) {
	pulses := s.pulses.TakeAndReset()
	lpm := logic.EstimateFlow(pulses, s.cfg.Calculate, s.cfg.Calibration)

	s.local = logic.Reading{Value: lpm, Source: logic.LocalSource, ObservedAt: now}
	r := s.local
	res.Reading = &r

	s.metrics.ObserveFlow(pulses, lpm)
	s.log.Debug().Uint64("pulses", pulses).Float64("lpm", lpm).Msg("local flow")
}

func (s *Scheduler) checkRemote(now time.Time, res *Result) {
	for _, r := range s.remote.Snapshot(now) {
		s.metrics.ObserveRemote(r.Source.Name, r.Value)
		was := s.stale[r.Source.Peer]
		s.stale[r.Source.Peer] = r.Stale
		if r.Stale && !was {
			res.Stale = append(res.Stale, r.Source)
			s.log.Warn().Str("peer", r.Source.Name).Msg("remote reading stale")
		}
	}
}

func (s *Scheduler) queuePush(now time.Time, res *Result) {
	if s.sync == nil {
		return
	}
	report := s.Report(now)
	if !s.sync.TryPush(report) {
		s.log.Warn().Msg("push queue full, report dropped")
		return
	}
	res.Report = &report
}

func (s *Scheduler) applyPull(now time.Time, res *Result) {
	if s.sync == nil {
		return
	}
	raw, ok := s.sync.TryPull()
	if !ok {
		return
	}

	prev := s.commands.LastApplied()
	req, ok := s.commands.Apply(raw)
	if cmd := s.commands.LastApplied(); cmd != prev {
		res.Command = cmd
		s.log.Info().Str("command", cmd).Msg("command changed")
	}
	if !ok {
		return
	}

	err := s.valve.Request(req.Channel, now)
	switch {
	case errors.Is(err, logic.ErrBusy):
		res.Rejected = true
		s.metrics.Rejected()
		s.log.Info().Str("channel", string(req.Channel)).Msg("valve busy, command ignored")
	case err != nil:
		s.log.Error().Err(err).Str("channel", string(req.Channel)).Msg("valve request failed")
	default:
		st := s.valve.State()
		res.Started = &st
		s.metrics.Actuation(string(req.Channel))
		s.log.Info().Str("channel", string(req.Channel)).Msg("valve pulse started")
	}
}

// Report builds the current report: the last local reading, the effective
// remote readings at now, and the valve state.
func (s *Scheduler) Report(now time.Time) logic.Report {
	return logic.Report{
		Local:  s.local,
		Remote: s.remote.Snapshot(now),
		Valve:  s.valve.State(),
		At:     now,
	}
}

// Local returns the last calculated local reading.
func (s *Scheduler) Local() logic.Reading {
	return s.local
}

// LastCommand returns the last applied normalized command.
func (s *Scheduler) LastCommand() string {
	return s.commands.LastApplied()
}

// Valve returns the current actuator state.
func (s *Scheduler) Valve() logic.ActuatorState {
	return s.valve.State()
}

// ValveCounts returns the pulses started per channel and rejected requests.
func (s *Scheduler) ValveCounts() (opens, closes, rejected int) {
	return s.valve.Counts()
}
