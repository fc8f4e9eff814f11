package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/logic"
)

// bufferCapacity bounds the system events kept while disconnected.
const bufferCapacity = 64

// Options configures a RealClient.
type Options struct {
	Broker   string
	ClientID string

	// Subscribe is a topic filter subscribed on every (re)connect. Messages
	// are passed to OnMessage on paho's goroutines.
	Subscribe string
	OnMessage func(topic string, payload []byte)

	Log zerolog.Logger
}

// RealClient publishes to an actual MQTT broker and receives peer messages.
type RealClient struct {
	client paho.Client
	opts   Options

	mu  sync.Mutex
	buf *ringBuffer
}

// NewRealClient creates a client and starts connecting to the broker. An
// unreachable broker is not an error: the client keeps retrying in the
// background and system events are buffered until it connects.
func NewRealClient(o Options) (*RealClient, error) {
	c := &RealClient{
		opts: o,
		buf:  newRingBuffer(bufferCapacity),
	}

	will, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetBinaryWill(TopicSystem, will, 1, true).
		SetOnConnectHandler(func(paho.Client) { c.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			o.Log.Warn().Err(err).Msg("mqtt connection lost")
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		o.Log.Warn().Str("broker", o.Broker).Msg("mqtt broker not reachable yet, retrying in background")
		return c, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

// onConnect subscribes to the peer topic and replays buffered events.
func (c *RealClient) onConnect() {
	c.opts.Log.Info().Str("broker", c.opts.Broker).Msg("mqtt connected")

	if c.opts.Subscribe != "" && c.opts.OnMessage != nil {
		token := c.client.Subscribe(c.opts.Subscribe, 0, c.handleMessage)
		if token.WaitTimeout(5*time.Second) && token.Error() != nil {
			c.opts.Log.Error().Err(token.Error()).Str("topic", c.opts.Subscribe).Msg("mqtt subscribe failed")
		}
	}

	c.mu.Lock()
	pending := c.buf.drainAll()
	c.mu.Unlock()
	for _, m := range pending {
		c.client.Publish(m.topic, m.qos, m.retained, m.payload)
	}
	if len(pending) > 0 {
		c.opts.Log.Info().Int("count", len(pending)).Msg("replayed buffered system events")
	}
}

func (c *RealClient) handleMessage(_ paho.Client, msg paho.Message) {
	c.opts.OnMessage(msg.Topic(), msg.Payload())
}

// Publish sends a reading report. QoS 0, not retained, and not waited on.
// Reports are dropped while disconnected.
func (c *RealClient) Publish(r logic.Report) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	payload, err := FormatPayload(r)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	c.client.Publish(TopicReadings, 0, false, payload)
	return nil
}

// PublishSystem sends a system lifecycle event. While disconnected the
// event is buffered and replayed on reconnect; only the latest buffered
// heartbeat is kept.
func (c *RealClient) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	if !c.client.IsConnectionOpen() {
		msg := bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained}
		if event.Event == "HEARTBEAT" {
			msg.key = event.Event
		}
		c.mu.Lock()
		dropped := c.buf.push(msg)
		c.mu.Unlock()
		if dropped {
			c.opts.Log.Warn().Int("capacity", bufferCapacity).Msg("mqtt buffer full, dropping oldest")
		}
		return nil
	}

	// QoS 1 (at-least-once) for system events - we want to ensure delivery
	token := c.client.Publish(TopicSystem, 1, event.Retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish system timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish system: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is open.
func (c *RealClient) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

// Buffered returns the number of system events waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}

// Close disconnects from the broker.
func (c *RealClient) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
