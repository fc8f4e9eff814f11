// Package status provides a thread-safe status tracker for the leak gateway.
// It is written by the run loop and read by HTTP handlers and heartbeats.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/leak-gateway/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing the main package's env reader from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	SensorMode          string
	SampleMs            int64
	CalculateMs         int64
	PushMs              int64
	PullMs              int64
	PulseMs             int64
	StalenessMs         int64
	HeartbeatMs         int64
	SuspendWhilePulsing bool
	Broker              string
	HTTPAddr            string
	StoreURL            string // Without credentials
}

// PeerStatus is the effective reading of one remote node.
type PeerStatus struct {
	Name     string
	Value    float64
	Stale    bool
	LastSeen time.Time // Zero if the peer never reported
}

// ValveStatus is the actuator state plus lifetime counts.
type ValveStatus struct {
	Pulsing   bool
	Channel   logic.Channel
	StartedAt time.Time
	Opens     int
	Closes    int
	Rejected  int
}

// SyncStats counts remote store outcomes. Local copy of the gateway's stats.
type SyncStats struct {
	PushOK      int64
	PushFailed  int64
	PushSkipped int64
	PullOK      int64
	PullFailed  int64
	PullSkipped int64
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type; safe to use after the lock is released.
type Snapshot struct {
	LocalFlow     float64
	LocalAt       time.Time
	PulseTotal    uint64
	Peers         []PeerStatus
	Valve         ValveStatus
	LastCommand   string
	Sync          SyncStats
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Network       *NetworkInfo
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetFlow records the last local reading and the lifetime pulse count.
func (t *Tracker) SetFlow(local logic.Reading, pulseTotal uint64) {
	t.mu.Lock()
	t.snap.LocalFlow = local.Value
	t.snap.LocalAt = local.ObservedAt
	t.snap.PulseTotal = pulseTotal
	t.mu.Unlock()
}

// SetPeers records the effective remote readings.
func (t *Tracker) SetPeers(readings []logic.Reading) {
	peers := make([]PeerStatus, len(readings))
	for i, r := range readings {
		peers[i] = PeerStatus{
			Name:     r.Source.Name,
			Value:    r.Value,
			Stale:    r.Stale,
			LastSeen: r.ObservedAt,
		}
	}
	t.mu.Lock()
	t.snap.Peers = peers
	t.mu.Unlock()
}

// SetValve records the actuator state.
func (t *Tracker) SetValve(v ValveStatus) {
	t.mu.Lock()
	t.snap.Valve = v
	t.mu.Unlock()
}

// SetCommand records the last applied command.
func (t *Tracker) SetCommand(cmd string) {
	t.mu.Lock()
	t.snap.LastCommand = cmd
	t.mu.Unlock()
}

// SetSync records remote store counters.
func (t *Tracker) SetSync(s SyncStats) {
	t.mu.Lock()
	t.snap.Sync = s
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Peers = append([]PeerStatus(nil), t.snap.Peers...)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
