// Package metrics exposes gateway counters and gauges for Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "leak_gateway"

// Peer message results.
const (
	PeerAccepted     = "accepted"
	PeerUnknown      = "unknown_peer"
	PeerBadRecord    = "bad_record"
	PeerIDMismatch   = "id_mismatch"
	PeerInvalidValue = "invalid_value"
)

// Sync results.
const (
	SyncOK      = "ok"
	SyncOffline = "offline"
	SyncNoClock = "no_wall_clock"
	SyncError   = "error"
	SyncOpPush  = "push"
	SyncOpPull  = "pull"
)

// Metrics holds the gateway's collectors and their registry.
type Metrics struct {
	Registry *prometheus.Registry

	pulses       prometheus.Counter
	localFlow    prometheus.Gauge
	remoteFlow   *prometheus.GaugeVec
	peerMessages *prometheus.CounterVec
	actuations   *prometheus.CounterVec
	rejected     prometheus.Counter
	sync         *prometheus.CounterVec
}

// New creates and registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		pulses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sensor_pulses_total",
			Help:      "Flow sensor pulses drained by the flow calculation.",
		}),
		localFlow: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "local_flow_lpm",
			Help:      "Last calculated local flow rate in L/min.",
		}),
		remoteFlow: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remote_flow_lpm",
			Help:      "Effective remote flow rate in L/min (0 when stale).",
		}, []string{"peer"}),
		peerMessages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peer_messages_total",
			Help:      "Peer link messages by handling result.",
		}, []string{"result"}),
		actuations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valve_actuations_total",
			Help:      "Valve pulses started, by channel.",
		}, []string{"channel"}),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valve_rejected_requests_total",
			Help:      "Valve requests rejected because a pulse was active.",
		}),
		sync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_operations_total",
			Help:      "Remote store operations by kind and result.",
		}, []string{"op", "result"}),
	}

	m.Registry.MustRegister(
		m.pulses, m.localFlow, m.remoteFlow, m.peerMessages,
		m.actuations, m.rejected, m.sync,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// ObserveFlow records a flow calculation.
func (m *Metrics) ObserveFlow(pulses uint64, lpm float64) {
	if m == nil {
		return
	}
	m.pulses.Add(float64(pulses))
	m.localFlow.Set(lpm)
}

// ObserveRemote records the effective value of a peer.
func (m *Metrics) ObserveRemote(peer string, lpm float64) {
	if m == nil {
		return
	}
	m.remoteFlow.WithLabelValues(peer).Set(lpm)
}

// PeerMessage counts one peer link message.
func (m *Metrics) PeerMessage(result string) {
	if m == nil {
		return
	}
	m.peerMessages.WithLabelValues(result).Inc()
}

// Actuation counts a started valve pulse.
func (m *Metrics) Actuation(channel string) {
	if m == nil {
		return
	}
	m.actuations.WithLabelValues(channel).Inc()
}

// Rejected counts a valve request rejected while pulsing.
func (m *Metrics) Rejected() {
	if m == nil {
		return
	}
	m.rejected.Inc()
}

// Sync counts one remote store operation.
func (m *Metrics) Sync(op, result string) {
	if m == nil {
		return
	}
	m.sync.WithLabelValues(op, result).Inc()
}
