package status

import (
	"encoding/json"
	"math"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	LocalFlow     float64      `json:"local_lpm"`
	PulseTotal    uint64       `json:"pulse_total"`
	Peers         []PeerJSON   `json:"peers"`
	Valve         ValveJSON    `json:"valve"`
	LastCommand   string       `json:"last_command"`
	Sync          SyncJSON     `json:"sync"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// PeerJSON is the JSON representation of a remote reading. AgeSeconds is
// -1 for a peer that never reported.
type PeerJSON struct {
	Name       string  `json:"name"`
	LPM        float64 `json:"lpm"`
	Stale      bool    `json:"stale"`
	AgeSeconds float64 `json:"age_seconds"`
}

// ValveJSON is the JSON representation of the valve.
type ValveJSON struct {
	State         string  `json:"state"`
	Channel       string  `json:"channel,omitempty"`
	PulseSeconds  float64 `json:"pulse_seconds,omitempty"`
	Opens         int     `json:"opens"`
	Closes        int     `json:"closes"`
	RejectedCount int     `json:"rejected"`
}

// SyncJSON is the JSON representation of remote store counters.
type SyncJSON struct {
	PushOK      int64 `json:"push_ok"`
	PushFailed  int64 `json:"push_failed"`
	PushSkipped int64 `json:"push_skipped"`
	PullOK      int64 `json:"pull_ok"`
	PullFailed  int64 `json:"pull_failed"`
	PullSkipped int64 `json:"pull_skipped"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	SensorMode          string `json:"sensor_mode"`
	SampleMs            int64  `json:"sample_ms"`
	CalculateMs         int64  `json:"calculate_ms"`
	PushMs              int64  `json:"push_ms"`
	PullMs              int64  `json:"pull_ms"`
	PulseMs             int64  `json:"pulse_ms"`
	StalenessMs         int64  `json:"staleness_ms"`
	HeartbeatMs         int64  `json:"heartbeat_ms"`
	SuspendWhilePulsing bool   `json:"suspend_while_pulsing"`
	Broker              string `json:"broker"`
	HTTPAddr            string `json:"http_addr"`
	StoreURL            string `json:"store_url,omitempty"`
}

// round2 keeps two decimals, as the store does.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func buildInner(snap Snapshot) StatusInner {
	peers := make([]PeerJSON, len(snap.Peers))
	for i, p := range snap.Peers {
		age := -1.0
		if !p.LastSeen.IsZero() {
			age = snap.Now.Sub(p.LastSeen).Truncate(time.Second).Seconds()
		}
		peers[i] = PeerJSON{Name: p.Name, LPM: round2(p.Value), Stale: p.Stale, AgeSeconds: age}
	}

	valve := ValveJSON{
		State:         "IDLE",
		Opens:         snap.Valve.Opens,
		Closes:        snap.Valve.Closes,
		RejectedCount: snap.Valve.Rejected,
	}
	if snap.Valve.Pulsing {
		valve.State = "PULSING"
		valve.Channel = string(snap.Valve.Channel)
		valve.PulseSeconds = snap.Now.Sub(snap.Valve.StartedAt).Seconds()
	}

	c := snap.Config
	return StatusInner{
		LocalFlow:   round2(snap.LocalFlow),
		PulseTotal:  snap.PulseTotal,
		Peers:       peers,
		Valve:       valve,
		LastCommand: snap.LastCommand,
		Sync: SyncJSON{
			PushOK:      snap.Sync.PushOK,
			PushFailed:  snap.Sync.PushFailed,
			PushSkipped: snap.Sync.PushSkipped,
			PullOK:      snap.Sync.PullOK,
			PullFailed:  snap.Sync.PullFailed,
			PullSkipped: snap.Sync.PullSkipped,
		},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: c.Broker},
		Config: ConfigJSON{
			SensorMode:          c.SensorMode,
			SampleMs:            c.SampleMs,
			CalculateMs:         c.CalculateMs,
			PushMs:              c.PushMs,
			PullMs:              c.PullMs,
			PulseMs:             c.PulseMs,
			StalenessMs:         c.StalenessMs,
			HeartbeatMs:         c.HeartbeatMs,
			SuspendWhilePulsing: c.SuspendWhilePulsing,
			Broker:              c.Broker,
			HTTPAddr:            c.HTTPAddr,
			StoreURL:            c.StoreURL,
		},
	}
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
