package cloud

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/leak-gateway/internal/logic"
)

var testPaths = Paths{Reading: "leak_reading", Command: "cmd.main_valve"}

var testWall = FixedClock{T: time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)}

func testReport(local float64) logic.Report {
	return logic.Report{
		Local: logic.Reading{Value: local, Source: logic.LocalSource},
		Remote: []logic.Reading{
			{Value: 1.25, Source: logic.Source{Peer: 1, Name: "remote_sensor_1"}},
		},
	}
}

func newTestGateway(store Store, wall WallClock, online bool) *Gateway {
	net := OnlineFunc(func() bool { return online })
	return NewGateway(store, wall, net, testPaths, zerolog.Nop(), nil)
}

func TestPushWritesReport(t *testing.T) {
	store := NewFakeStore()
	g := newTestGateway(store, testWall, true)

	require.NoError(t, g.Push(context.Background(), testReport(1.52)))

	put, ok := store.LastPut()
	require.True(t, ok)
	assert.Equal(t, "leak_reading", put.Path)
	assert.Contains(t, string(put.Body), `"time":"2026-10-18 09:00:00"`)
	assert.Equal(t, int64(1), g.Stats().PushOK)
}

func TestPushSkippedOffline(t *testing.T) {
	store := NewFakeStore()
	g := newTestGateway(store, testWall, false)

	err := g.Push(context.Background(), testReport(1))
	assert.ErrorIs(t, err, ErrOffline)
	assert.Zero(t, store.PutCount())
	assert.Equal(t, int64(1), g.Stats().PushSkipped)
}

// Without a wall clock the numeric fields are not pushed either.
func TestPushSkippedWithoutWallClock(t *testing.T) {
	store := NewFakeStore()
	g := newTestGateway(store, FixedClock{Unset: true}, true)

	err := g.Push(context.Background(), testReport(1))
	assert.ErrorIs(t, err, ErrNoWallClock)
	assert.Zero(t, store.PutCount())
}

func TestPushStoreError(t *testing.T) {
	store := NewFakeStore()
	store.PutError = &StatusError{Method: "PUT", Path: "leak_reading", Code: 500}
	g := newTestGateway(store, testWall, true)

	err := g.Push(context.Background(), testReport(1))
	var se *StatusError
	assert.True(t, errors.As(err, &se))
	assert.Equal(t, int64(1), g.Stats().PushFailed)
}

func TestPullReturnsRawValue(t *testing.T) {
	store := NewFakeStore()
	store.Set("cmd.main_valve", `"OPEN"`)
	g := newTestGateway(store, testWall, true)

	cmd, err := g.Pull(context.Background())
	require.NoError(t, err)
	assert.Equal(t, `"OPEN"`, cmd)

	g = newTestGateway(store, testWall, false)
	_, err = g.Pull(context.Background())
	assert.ErrorIs(t, err, ErrOffline)
}

func TestTryPushReplacesPending(t *testing.T) {
	g := newTestGateway(NewFakeStore(), testWall, true)

	assert.True(t, g.TryPush(testReport(1)))
	assert.True(t, g.TryPush(testReport(2)))
	assert.True(t, g.TryPush(testReport(3)))

	require.Len(t, g.push, 1)
	r := <-g.push
	assert.Equal(t, 3.0, r.Local.Value)
}

func TestTryPullCoalescesRequests(t *testing.T) {
	g := newTestGateway(NewFakeStore(), testWall, true)

	for i := 0; i < 5; i++ {
		_, ok := g.TryPull()
		assert.False(t, ok, "no fetch has completed yet")
	}
	assert.Len(t, g.pull, 1)
}

func TestDeliverKeepsNewest(t *testing.T) {
	g := newTestGateway(NewFakeStore(), testWall, true)

	g.deliver(`"OPEN"`)
	g.deliver(`"CLOSE"`)

	cmd, ok := g.TryPull()
	require.True(t, ok)
	assert.Equal(t, `"CLOSE"`, cmd)
}

func TestRunServesPushAndPull(t *testing.T) {
	store := NewFakeStore()
	store.Set("cmd.main_valve", `"CLOSE"`)
	g := newTestGateway(store, testWall, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		g.Run(ctx)
		close(done)
	}()

	g.TryPush(testReport(0.5))
	require.Eventually(t, func() bool { return store.PutCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	_, ok := g.TryPull()
	assert.False(t, ok)

	var cmd string
	require.Eventually(t, func() bool {
		var got bool
		cmd, got = g.TryPull()
		return got
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, `"CLOSE"`, cmd)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// A slow store must never block the caller of TryPush/TryPull.
func TestTryCallsDoNotBlockOnSlowStore(t *testing.T) {
	store := NewFakeStore()
	store.Delay = time.Second
	g := newTestGateway(store, testWall, true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go g.Run(ctx)

	start := time.Now()
	for i := 0; i < 100; i++ {
		g.TryPush(testReport(float64(i)))
		g.TryPull()
	}
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}
