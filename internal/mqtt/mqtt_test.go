package mqtt

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/leak-gateway/internal/logic"
)

func testReport() logic.Report {
	return logic.Report{
		At:    time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Local: logic.Reading{Value: 1.52, Source: logic.LocalSource},
		Remote: []logic.Reading{
			{Value: 3.4, Source: logic.Source{Peer: 1, Name: "remote_sensor_1"}},
			{Value: 0, Stale: true, Source: logic.Source{Peer: 2, Name: "remote_sensor_2"}},
		},
		Valve: logic.ActuatorState{Pulsing: true, Channel: logic.ChannelOpen},
	}
}

func TestFormatPayloadExactJSON(t *testing.T) {
	payload, err := FormatPayload(testReport())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"reading":{"timestamp":"2026-02-03T10:30:45Z","local_lpm":1.52,"remote":[` +
		`{"peer":"remote_sensor_1","lpm":3.4,"stale":false},` +
		`{"peer":"remote_sensor_2","lpm":0,"stale":true}],` +
		`"valve":{"pulsing":true,"channel":"OPEN"}}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatPayloadIdleValveOmitsChannel(t *testing.T) {
	r := testReport()
	r.Valve = logic.ActuatorState{}
	r.Remote = nil

	payload, err := FormatPayload(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed Payload
	if err := json.Unmarshal(payload, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Reading.Valve.Pulsing || parsed.Reading.Valve.Channel != "" {
		t.Errorf("unexpected valve: %+v", parsed.Reading.Valve)
	}
	if parsed.Reading.Remote == nil || len(parsed.Reading.Remote) != 0 {
		t.Errorf("remote should be an empty list, got %v", parsed.Reading.Remote)
	}
}

func TestFormatSystemPayloadExactJSON(t *testing.T) {
	event := SystemEvent{
		Timestamp: time.Date(2026, 2, 3, 10, 30, 45, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"timestamp":"2026-02-03T10:30:45Z","event":"SHUTDOWN","reason":"SIGTERM"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadWill(t *testing.T) {
	payload, err := FormatSystemPayload(SystemEvent{Event: "OFFLINE"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expected := `{"system":{"event":"OFFLINE"}}`
	if string(payload) != expected {
		t.Errorf("unexpected payload:\ngot:  %s\nwant: %s", string(payload), expected)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{}}`)
	payload, err := FormatSystemPayload(SystemEvent{Event: "HEARTBEAT", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(payload) != string(raw) {
		t.Errorf("raw payload should be passed through, got %s", payload)
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()

	if err := f.Publish(testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.Reports) != 1 || len(f.Payloads) != 1 {
		t.Fatalf("expected 1 report, got %d", len(f.Reports))
	}
	if got := f.Events(); len(got) != 1 || got[0] != "STARTUP" {
		t.Errorf("unexpected events: %v", got)
	}
}

func TestFakePublisherError(t *testing.T) {
	f := NewFakePublisher()
	f.PublishError = errors.New("simulated error")

	if err := f.Publish(testReport()); err == nil {
		t.Error("expected error")
	}
	if len(f.Reports) != 0 {
		t.Errorf("expected no reports recorded on error, got %d", len(f.Reports))
	}
}

func TestFakePublisherReset(t *testing.T) {
	f := NewFakePublisher()
	f.Publish(testReport())
	f.Close()
	f.PublishError = errors.New("error")

	f.Reset()

	if len(f.Reports) != 0 || len(f.Payloads) != 0 {
		t.Error("reports should be cleared")
	}
	if f.Closed {
		t.Error("closed should be reset")
	}
	if f.PublishError != nil {
		t.Error("error should be cleared")
	}
}

// doneToken is a completed paho token.
type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

// fakeClient implements the parts of paho.Client used by RealClient.
type fakeClient struct {
	paho.Client

	mu         sync.Mutex
	connected  bool
	published  []bufferedMsg
	subscribed []string
	handler    paho.MessageHandler
}

func (c *fakeClient) IsConnectionOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published = append(c.published, bufferedMsg{topic: topic, payload: payload.([]byte), qos: qos, retained: retained})
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h paho.MessageHandler) paho.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribed = append(c.subscribed, topic)
	c.handler = h
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {}

// fakeMessage implements paho.Message.
type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m fakeMessage) Topic() string   { return m.topic }
func (m fakeMessage) Payload() []byte { return m.payload }

func newTestClient(fc *fakeClient, onMessage func(string, []byte)) *RealClient {
	return &RealClient{
		client: fc,
		opts: Options{
			Broker:    "tcp://test:1883",
			Subscribe: "leak/peer/+",
			OnMessage: onMessage,
			Log:       zerolog.Nop(),
		},
		buf: newRingBuffer(bufferCapacity),
	}
}

func TestRealClientBuffersSystemEventsWhileDisconnected(t *testing.T) {
	fc := &fakeClient{}
	c := newTestClient(fc, nil)

	if err := c.PublishSystem(SystemEvent{Event: "STARTUP", Retained: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Buffered() != 1 {
		t.Fatalf("expected 1 buffered event, got %d", c.Buffered())
	}
	if len(fc.published) != 0 {
		t.Fatal("nothing should be published while disconnected")
	}

	fc.connected = true
	c.onConnect()

	if c.Buffered() != 0 {
		t.Errorf("buffer should be drained on connect, got %d", c.Buffered())
	}
	if len(fc.published) != 1 {
		t.Fatalf("expected 1 replayed event, got %d", len(fc.published))
	}
	m := fc.published[0]
	if m.topic != TopicSystem || m.qos != 1 || !m.retained {
		t.Errorf("unexpected replayed message: %+v", m)
	}
}

func TestRealClientDropsReportsWhileDisconnected(t *testing.T) {
	fc := &fakeClient{}
	c := newTestClient(fc, nil)

	if err := c.Publish(testReport()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}

	fc.connected = true
	if err := c.Publish(testReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fc.published) != 1 || fc.published[0].topic != TopicReadings || fc.published[0].qos != 0 {
		t.Errorf("unexpected publish: %+v", fc.published)
	}
}

func TestRealClientSubscribesOnConnect(t *testing.T) {
	fc := &fakeClient{connected: true}
	var gotTopic string
	var gotPayload []byte
	c := newTestClient(fc, func(topic string, payload []byte) {
		gotTopic, gotPayload = topic, payload
	})

	c.onConnect()
	// A reconnect subscribes again.
	c.onConnect()

	if len(fc.subscribed) != 2 || fc.subscribed[0] != "leak/peer/+" {
		t.Fatalf("unexpected subscriptions: %v", fc.subscribed)
	}

	fc.handler(fc, fakeMessage{topic: "leak/peer/node-1", payload: []byte{1, 2, 3, 4}})
	if gotTopic != "leak/peer/node-1" || len(gotPayload) != 4 {
		t.Errorf("message not delivered: %q %v", gotTopic, gotPayload)
	}
}

func TestRealClientKeepsLatestHeartbeatWhileDisconnected(t *testing.T) {
	fc := &fakeClient{}
	c := newTestClient(fc, nil)

	events := []SystemEvent{
		{Event: "STARTUP", Retained: true, RawPayload: []byte(`startup`)},
		{Event: "HEARTBEAT", RawPayload: []byte(`hb-1`)},
		{Event: "HEARTBEAT", RawPayload: []byte(`hb-2`)},
		{Event: "HEARTBEAT", RawPayload: []byte(`hb-3`)},
	}
	for _, e := range events {
		if err := c.PublishSystem(e); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if c.Buffered() != 2 {
		t.Fatalf("expected 2 buffered events, got %d", c.Buffered())
	}

	fc.connected = true
	c.onConnect()

	if len(fc.published) != 2 {
		t.Fatalf("expected 2 replayed events, got %d", len(fc.published))
	}
	if string(fc.published[0].payload) != "startup" || string(fc.published[1].payload) != "hb-3" {
		t.Errorf("unexpected replay: %s, %s", fc.published[0].payload, fc.published[1].payload)
	}
	if fc.published[1].retained {
		t.Error("heartbeat should not be retained")
	}
}
