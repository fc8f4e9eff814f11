package mqtt

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/logic"
)

var (
	// ErrQueueFull means a system event was dropped because the hand-off
	// queue was full.
	ErrQueueFull = errors.New("mqtt: system event queue full")

	// ErrClosed means the publisher was already closed.
	ErrClosed = errors.New("mqtt: publisher closed")
)

// AsyncPublisher hands system events to its own goroutine so the caller
// never waits for a broker acknowledgement. Reports pass straight through:
// RealClient.Publish does not wait.
type AsyncPublisher struct {
	inner Publisher
	log   zerolog.Logger
	drain time.Duration

	mu     sync.Mutex
	closed bool
	events chan SystemEvent
	done   chan struct{}
}

// NewAsyncPublisher starts the worker. depth bounds the queued events; drain
// bounds how long Close waits for queued events to go out.
func NewAsyncPublisher(inner Publisher, depth int, drain time.Duration, log zerolog.Logger) *AsyncPublisher {
	if depth < 1 {
		depth = 1
	}
	a := &AsyncPublisher{
		inner:  inner,
		log:    log,
		drain:  drain,
		events: make(chan SystemEvent, depth),
		done:   make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *AsyncPublisher) run() {
	defer close(a.done)
	for event := range a.events {
		if err := a.inner.PublishSystem(event); err != nil {
			a.log.Warn().Err(err).Str("event", event.Event).Msg("system event publish failed")
		}
	}
}

// Publish forwards the report.
func (a *AsyncPublisher) Publish(r logic.Report) error {
	return a.inner.Publish(r)
}

// PublishSystem queues the event and returns at once.
func (a *AsyncPublisher) PublishSystem(event SystemEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return ErrClosed
	}
	select {
	case a.events <- event:
		return nil
	default:
		return ErrQueueFull
	}
}

// IsConnected reports the wrapped publisher's connection state, or false
// when it cannot tell.
func (a *AsyncPublisher) IsConnected() bool {
	if cs, ok := a.inner.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close stops accepting events, waits up to the drain time for queued ones
// to go out, then closes the wrapped publisher.
func (a *AsyncPublisher) Close() error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.events)
	}
	a.mu.Unlock()

	select {
	case <-a.done:
	case <-time.After(a.drain):
		a.log.Warn().Int("pending", len(a.events)).Msg("system events not sent before close")
	}
	return a.inner.Close()
}
