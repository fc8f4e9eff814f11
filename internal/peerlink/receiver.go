package peerlink

import (
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/logic"
	"github.com/sweeney/leak-gateway/internal/metrics"
)

// Peer binds a hardware address to a configured peer.
type Peer struct {
	logic.Peer
	Address string
}

// Receiver routes peer messages into a RemoteReadingCache. Handle is safe to
// call from MQTT callback goroutines.
type Receiver struct {
	format  string
	cache   *logic.RemoteReadingCache
	byAddr  map[string]logic.Peer
	log     zerolog.Logger
	metrics *metrics.Metrics
}

// NewReceiver creates a Receiver for the given peers. Addresses are matched
// case-insensitively.
func NewReceiver(format string, peers []Peer, cache *logic.RemoteReadingCache, log zerolog.Logger, m *metrics.Metrics) *Receiver {
	byAddr := make(map[string]logic.Peer, len(peers))
	for _, p := range peers {
		byAddr[strings.ToLower(p.Address)] = p.Peer
	}
	return &Receiver{
		format:  format,
		cache:   cache,
		byAddr:  byAddr,
		log:     log,
		metrics: m,
	}
}

// Handle processes one message from address. It reports whether the
// reading was stored.
func (r *Receiver) Handle(address string, payload []byte, now time.Time) bool {
	peer, ok := r.byAddr[strings.ToLower(address)]
	if !ok {
		r.metrics.PeerMessage(metrics.PeerUnknown)
		r.log.Debug().Str("address", address).Msg("message from unknown peer dropped")
		return false
	}

	rec, err := Decode(r.format, payload)
	if err != nil {
		r.metrics.PeerMessage(metrics.PeerBadRecord)
		r.log.Warn().Err(err).Str("peer", peer.Name).Msg("bad peer record")
		return false
	}
	if rec.HasID && logic.PeerID(rec.ID) != peer.ID {
		r.metrics.PeerMessage(metrics.PeerIDMismatch)
		r.log.Warn().
			Str("peer", peer.Name).
			Int32("id", rec.ID).
			Int("want", int(peer.ID)).
			Msg("peer id does not match address")
		return false
	}

	v := float64(rec.Flow)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		r.metrics.PeerMessage(metrics.PeerInvalidValue)
		r.log.Warn().Str("peer", peer.Name).Msg("non-finite flow value dropped")
		return false
	}

	if !r.cache.OnReceive(peer.ID, v, now) {
		r.metrics.PeerMessage(metrics.PeerUnknown)
		return false
	}
	r.metrics.PeerMessage(metrics.PeerAccepted)
	r.metrics.ObserveRemote(peer.Name, v)
	r.log.Debug().Str("peer", peer.Name).Float64("lpm", v).Msg("peer reading")
	return true
}

// Address extracts the hardware address from a topic of the form
// "<prefix>/<address>". It returns false for any other topic.
func Address(prefix, topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, strings.TrimSuffix(prefix, "/")+"/")
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	return rest, true
}
