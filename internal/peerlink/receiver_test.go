package peerlink

import (
	"fmt"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/logic"
	"github.com/sweeney/leak-gateway/internal/metrics"
)

var testNow = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

var testPeers = []Peer{
	{Peer: logic.Peer{ID: 1, Name: "remote_sensor_1"}, Address: "A4:CF:12:00:00:01"},
	{Peer: logic.Peer{ID: 2, Name: "remote_sensor_2"}, Address: "a4:cf:12:00:00:02"},
}

func newTestReceiver(t *testing.T, format string) (*Receiver, *logic.RemoteReadingCache, *metrics.Metrics) {
	t.Helper()
	peers := make([]logic.Peer, len(testPeers))
	for i, p := range testPeers {
		peers[i] = p.Peer
	}
	cache := logic.NewRemoteReadingCache(peers, logic.DefaultStaleness)
	m := metrics.New()
	return NewReceiver(format, testPeers, cache, zerolog.Nop(), m), cache, m
}

func assertPeerMessages(t *testing.T, m *metrics.Metrics, result string) {
	t.Helper()
	want := fmt.Sprintf(`
# HELP leak_gateway_peer_messages_total Peer link messages by handling result.
# TYPE leak_gateway_peer_messages_total counter
leak_gateway_peer_messages_total{result=%q} 1
`, result)
	if err := testutil.GatherAndCompare(m.Registry, strings.NewReader(want), "leak_gateway_peer_messages_total"); err != nil {
		t.Error(err)
	}
}

func mustEncode(t *testing.T, format string, id int32, flow float32) []byte {
	t.Helper()
	b, err := Encode(format, Record{ID: id, HasID: format == FormatIDFlow, Flow: flow})
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestReceiverStoresReading(t *testing.T) {
	r, cache, m := newTestReceiver(t, FormatIDFlow)

	if !r.Handle("a4:cf:12:00:00:01", mustEncode(t, FormatIDFlow, 1, 3.5), testNow) {
		t.Fatal("expected reading to be stored")
	}
	if got := cache.Read(1, testNow); got != 3.5 {
		t.Errorf("cache: got %v, want 3.5", got)
	}
	assertPeerMessages(t, m, metrics.PeerAccepted)
}

func TestReceiverFlowFormat(t *testing.T) {
	r, cache, _ := newTestReceiver(t, FormatFlow)

	if !r.Handle("A4:CF:12:00:00:02", mustEncode(t, FormatFlow, 0, 0.75), testNow) {
		t.Fatal("expected reading to be stored")
	}
	if got := cache.Read(2, testNow); got != 0.75 {
		t.Errorf("cache: got %v, want 0.75", got)
	}
}

func TestReceiverDrops(t *testing.T) {
	tests := []struct {
		name    string
		address string
		payload []byte
		result  string
	}{
		{"unknown address", "ff:ff:ff:ff:ff:ff", nil, metrics.PeerUnknown},
		{"short record", "a4:cf:12:00:00:01", []byte{1, 2, 3}, metrics.PeerBadRecord},
		{"id mismatch", "a4:cf:12:00:00:01", nil, metrics.PeerIDMismatch},
		{"nan", "a4:cf:12:00:00:01", nil, metrics.PeerInvalidValue},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, cache, m := newTestReceiver(t, FormatIDFlow)
			payload := tt.payload
			switch tt.name {
			case "unknown address":
				payload = mustEncode(t, FormatIDFlow, 1, 1)
			case "id mismatch":
				payload = mustEncode(t, FormatIDFlow, 2, 1)
			case "nan":
				payload = mustEncode(t, FormatIDFlow, 1, float32(math.NaN()))
			}

			if r.Handle(tt.address, payload, testNow) {
				t.Fatal("expected message to be dropped")
			}
			for _, s := range cache.Snapshot(testNow) {
				if !s.Stale {
					t.Errorf("peer %d should not have a reading", s.Source.Peer)
				}
			}
			assertPeerMessages(t, m, tt.result)
		})
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		prefix, topic string
		want          string
		ok            bool
	}{
		{"leak/peer", "leak/peer/a4:cf:12:00:00:01", "a4:cf:12:00:00:01", true},
		{"leak/peer/", "leak/peer/node-1", "node-1", true},
		{"leak/peer", "leak/peer/", "", false},
		{"leak/peer", "leak/peer/a/b", "", false},
		{"leak/peer", "leak/gateway/readings", "", false},
	}
	for _, tt := range tests {
		got, ok := Address(tt.prefix, tt.topic)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Address(%q, %q): got %q %v, want %q %v", tt.prefix, tt.topic, got, ok, tt.want, tt.ok)
		}
	}
}
