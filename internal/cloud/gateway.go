package cloud

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/logic"
	"github.com/sweeney/leak-gateway/internal/metrics"
)

var (
	// ErrOffline means the network was down; the operation was skipped.
	ErrOffline = errors.New("cloud: network offline")

	// ErrNoWallClock means the wall clock is not synchronized; the push was skipped.
	ErrNoWallClock = errors.New("cloud: wall clock unavailable")
)

// Paths are the store locations the gateway reads and writes.
type Paths struct {
	Reading string
	Command string
}

// Stats counts sync outcomes since startup.
type Stats struct {
	PushOK      int64
	PushFailed  int64
	PushSkipped int64
	PullOK      int64
	PullFailed  int64
	PullSkipped int64
}

// Gateway pushes reports to and pulls commands from a Store on its own
// goroutine. Failed operations are not retried; the next scheduled one
// simply runs again.
type Gateway struct {
	store   Store
	wall    WallClock
	net     Connectivity
	paths   Paths
	log     zerolog.Logger
	metrics *metrics.Metrics

	push     chan logic.Report
	pull     chan struct{}
	commands chan string

	pushOK, pushFailed, pushSkipped atomic.Int64
	pullOK, pullFailed, pullSkipped atomic.Int64
}

// NewGateway creates a Gateway. Call Run to start its worker.
func NewGateway(store Store, wall WallClock, net Connectivity, paths Paths, log zerolog.Logger, m *metrics.Metrics) *Gateway {
	return &Gateway{
		store:    store,
		wall:     wall,
		net:      net,
		paths:    paths,
		log:      log,
		metrics:  m,
		push:     make(chan logic.Report, 1),
		pull:     make(chan struct{}, 1),
		commands: make(chan string, 1),
	}
}

// TryPush queues r for pushing without blocking. A report still waiting
// from an earlier call is replaced. Only the scheduler may call TryPush.
func (g *Gateway) TryPush(r logic.Report) bool {
	select {
	case g.push <- r:
		return true
	default:
	}
	select {
	case <-g.push:
	default:
	}
	select {
	case g.push <- r:
		return true
	default:
		return false
	}
}

// TryPull requests a command fetch without blocking and returns the result
// of the latest completed fetch, if one is waiting.
func (g *Gateway) TryPull() (string, bool) {
	select {
	case g.pull <- struct{}{}:
	default:
	}
	select {
	case cmd := <-g.commands:
		return cmd, true
	default:
		return "", false
	}
}

// Run performs queued pushes and pulls until ctx is done.
func (g *Gateway) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case r := <-g.push:
			g.Push(ctx, r)
		case <-g.pull:
			cmd, err := g.Pull(ctx)
			if err != nil {
				continue
			}
			g.deliver(cmd)
		}
	}
}

// deliver hands cmd to the scheduler, replacing an unread older result.
func (g *Gateway) deliver(cmd string) {
	select {
	case g.commands <- cmd:
		return
	default:
	}
	select {
	case <-g.commands:
	default:
	}
	select {
	case g.commands <- cmd:
	default:
	}
}

// Push writes r to the store synchronously. The whole push is skipped when
// the network is down or the wall clock is not synchronized.
func (g *Gateway) Push(ctx context.Context, r logic.Report) error {
	if !g.net.Online() {
		g.pushSkipped.Add(1)
		g.metrics.Sync(metrics.SyncOpPush, metrics.SyncOffline)
		g.log.Debug().Msg("push skipped: offline")
		return ErrOffline
	}

	wall, ok := g.wall.Now()
	if !ok {
		g.pushSkipped.Add(1)
		g.metrics.Sync(metrics.SyncOpPush, metrics.SyncNoClock)
		g.log.Warn().Msg("push skipped: wall clock not synchronized")
		return ErrNoWallClock
	}

	body, err := FormatReport(r, wall)
	if err != nil {
		g.pushFailed.Add(1)
		g.metrics.Sync(metrics.SyncOpPush, metrics.SyncError)
		return fmt.Errorf("format report: %w", err)
	}

	if err := g.store.Put(ctx, g.paths.Reading, body); err != nil {
		g.pushFailed.Add(1)
		g.metrics.Sync(metrics.SyncOpPush, metrics.SyncError)
		g.log.Warn().Err(err).Str("path", g.paths.Reading).Msg("push failed")
		return err
	}

	g.pushOK.Add(1)
	g.metrics.Sync(metrics.SyncOpPush, metrics.SyncOK)
	g.log.Debug().RawJSON("body", body).Msg("pushed reading")
	return nil
}

// Pull fetches the raw command value synchronously.
func (g *Gateway) Pull(ctx context.Context) (string, error) {
	if !g.net.Online() {
		g.pullSkipped.Add(1)
		g.metrics.Sync(metrics.SyncOpPull, metrics.SyncOffline)
		return "", ErrOffline
	}

	body, err := g.store.Get(ctx, g.paths.Command)
	if err != nil {
		g.pullFailed.Add(1)
		g.metrics.Sync(metrics.SyncOpPull, metrics.SyncError)
		g.log.Warn().Err(err).Str("path", g.paths.Command).Msg("pull failed")
		return "", err
	}

	g.pullOK.Add(1)
	g.metrics.Sync(metrics.SyncOpPull, metrics.SyncOK)
	return string(body), nil
}

// Stats returns sync counters.
func (g *Gateway) Stats() Stats {
	return Stats{
		PushOK:      g.pushOK.Load(),
		PushFailed:  g.pushFailed.Load(),
		PushSkipped: g.pushSkipped.Load(),
		PullOK:      g.pullOK.Load(),
		PullFailed:  g.pullFailed.Load(),
		PullSkipped: g.pullSkipped.Load(),
	}
}
