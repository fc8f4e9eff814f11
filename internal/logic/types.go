// Package logic contains the pure control logic of the leak gateway.
// This package has NO external dependencies (no GPIO, MQTT, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// Channel identifies one of the two valve outputs.
type Channel string

const (
	ChannelOpen  Channel = "OPEN"
	ChannelClose Channel = "CLOSE"
)

// PeerID identifies a configured remote sensor node.
type PeerID int

// Source tells where a flow reading came from.
type Source struct {
	// Local is true for the gateway's own sensor.
	Local bool
	// Peer is the remote node; zero for local readings.
	Peer PeerID
	// Name is the peer's configured name ("local_sensor" for the gateway).
	Name string
}

// LocalSource is the source of readings from the gateway's own sensor.
var LocalSource = Source{Local: true, Name: "local_sensor"}

// Reading is a flow rate in L/min observed at a monotonic instant.
type Reading struct {
	Value      float64
	Source     Source
	ObservedAt time.Time
	// Stale is set on remote readings older than the staleness window.
	// Value is 0 when Stale is true.
	Stale bool
}

// Report is the state pushed to the remote store and published as telemetry.
type Report struct {
	Local  Reading
	Remote []Reading
	Valve  ActuatorState
	At     time.Time
}

// ActuatorState is Idle when Pulsing is false.
type ActuatorState struct {
	Pulsing   bool
	Channel   Channel
	StartedAt time.Time
}

// ActuatorRequest asks the valve to pulse one channel.
type ActuatorRequest struct {
	Channel Channel
}

// Output drives the physical valve lines.
type Output interface {
	// Set asserts (active=true) or deasserts the line for ch.
	Set(ch Channel, active bool) error
}
