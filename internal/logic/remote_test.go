package logic

import (
	"sync"
	"testing"
	"time"
)

var testPeers = []Peer{
	{ID: 1, Name: "remote_sensor_1"},
	{ID: 2, Name: "remote_sensor_2"},
}

func TestRemoteCacheNeverReported(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewRemoteReadingCache(testPeers, 15*time.Second)

	if got := c.Read(1, now); got != 0 {
		t.Errorf("never reported: got %v, want 0", got)
	}
	snap := c.Snapshot(now)
	if len(snap) != 2 {
		t.Fatalf("expected 2 readings, got %d", len(snap))
	}
	for _, r := range snap {
		if !r.Stale {
			t.Errorf("peer %d: expected stale before first report", r.Source.Peer)
		}
	}
}

func TestRemoteCacheStalenessBoundary(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Second
	c := NewRemoteReadingCache(testPeers, window)

	if !c.OnReceive(1, 3.4, t0) {
		t.Fatal("OnReceive for configured peer returned false")
	}

	if got := c.Read(1, t0.Add(window-time.Millisecond)); got != 3.4 {
		t.Errorf("just inside window: got %v, want 3.4", got)
	}
	if got := c.Read(1, t0.Add(window)); got != 3.4 {
		t.Errorf("exactly at window: got %v, want 3.4", got)
	}
	if got := c.Read(1, t0.Add(window+time.Millisecond)); got != 0 {
		t.Errorf("just past window: got %v, want 0", got)
	}
}

// Peer id=1 reports 3.4 at t=1000ms; window 15000ms; read at t=16001ms is 0.
func TestRemoteCacheScenario(t *testing.T) {
	boot := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewRemoteReadingCache(testPeers, 15000*time.Millisecond)

	c.OnReceive(1, 3.4, boot.Add(1000*time.Millisecond))
	if got := c.Read(1, boot.Add(16001*time.Millisecond)); got != 0 {
		t.Errorf("got %v, want 0", got)
	}
}

func TestRemoteCacheUnknownPeerIgnored(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewRemoteReadingCache(testPeers, 15*time.Second)

	if c.OnReceive(7, 9.9, now) {
		t.Error("unknown peer should be rejected")
	}
	if got := c.Read(7, now); got != 0 {
		t.Errorf("unknown peer read: got %v, want 0", got)
	}
	if n := len(c.Snapshot(now)); n != 2 {
		t.Errorf("unknown peer must not be inserted: got %d slots", n)
	}
}

func TestRemoteCacheOverwriteRefreshes(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewRemoteReadingCache(testPeers, 15*time.Second)

	c.OnReceive(2, 1.0, t0)
	c.OnReceive(2, 2.5, t0.Add(10*time.Second))

	if got := c.Read(2, t0.Add(20*time.Second)); got != 2.5 {
		t.Errorf("got %v, want 2.5", got)
	}

	snap := c.Snapshot(t0.Add(20 * time.Second))
	if snap[1].Source.Name != "remote_sensor_2" {
		t.Errorf("snapshot order: got %q at index 1", snap[1].Source.Name)
	}
	if snap[1].Stale || snap[1].Value != 2.5 {
		t.Errorf("peer 2: got %+v", snap[1])
	}
	if !snap[0].Stale {
		t.Error("peer 1 never reported; expected stale")
	}
}

func TestRemoteCacheConcurrentReceive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewRemoteReadingCache(testPeers, 15*time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				c.OnReceive(PeerID(1+i%2), float64(j), now)
				c.Read(PeerID(1+i%2), now)
			}
		}(i)
	}
	wg.Wait()

	for _, r := range c.Snapshot(now) {
		if r.Stale || r.Value < 0 || r.Value > 999 {
			t.Errorf("peer %d: unexpected reading %+v", r.Source.Peer, r)
		}
	}
}
