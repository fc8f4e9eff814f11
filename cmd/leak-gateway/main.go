// Command leak-gateway counts local flow sensor pulses, collects remote flow
// readings over MQTT, drives the main valve on remote commands and keeps a
// remote key-value store in sync.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/zoobzio/clockz"

	"github.com/sweeney/leak-gateway/internal/cloud"
	"github.com/sweeney/leak-gateway/internal/config"
	"github.com/sweeney/leak-gateway/internal/gpio"
	"github.com/sweeney/leak-gateway/internal/history"
	"github.com/sweeney/leak-gateway/internal/logger"
	"github.com/sweeney/leak-gateway/internal/logic"
	"github.com/sweeney/leak-gateway/internal/metrics"
	"github.com/sweeney/leak-gateway/internal/mqtt"
	"github.com/sweeney/leak-gateway/internal/peerlink"
	"github.com/sweeney/leak-gateway/internal/sampler"
	"github.com/sweeney/leak-gateway/internal/scheduler"
	"github.com/sweeney/leak-gateway/internal/status"
	"github.com/sweeney/leak-gateway/internal/web"
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "leak-gateway: %v\n", err)
		os.Exit(2)
	}

	log := logger.New(os.Stderr, cfg.Log.Level, logger.IsService())
	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	// Print state mode
	if cfg.PrintState {
		return printState(cfg)
	}

	clock := clockz.RealClock
	m := metrics.New()
	ctx, cancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup
	stopWorkers := func() {
		cancel()
		workers.Wait()
	}
	defer stopWorkers()

	// Valve lines
	valveLines, err := gpio.NewRealValve(cfg.Sensor.Chip, cfg.Valve.OpenPin, cfg.Valve.ClosePin)
	if err != nil {
		return fmt.Errorf("init valve gpio: %w", err)
	}
	defer valveLines.Close()

	// Local sensor
	pulses := &logic.PulseAccumulator{}
	switch cfg.Sensor.Mode {
	case "edge":
		counter, err := gpio.NewEdgeCounter(cfg.Sensor.Chip, cfg.Sensor.Pin, pulses.Increment)
		if err != nil {
			return fmt.Errorf("init sensor gpio: %w", err)
		}
		defer counter.Close()
	default:
		reader, err := gpio.NewRealReader(cfg.Sensor.Chip, cfg.Sensor.Pin)
		if err != nil {
			return fmt.Errorf("init sensor gpio: %w", err)
		}
		defer reader.Close()

		smp := sampler.New(reader, cfg.Sensor.Threshold, pulses, log.With().Str("component", "sampler").Logger())
		sampleTicker := clock.NewTicker(cfg.Sensor.Period)
		defer sampleTicker.Stop()
		workers.Add(1)
		go func() {
			defer workers.Done()
			smp.Run(ctx, sampleTicker.C())
		}()
	}

	// Remote readings
	logicPeers, linkPeers := peersFromConfig(cfg.Peers)
	remote := logic.NewRemoteReadingCache(logicPeers, cfg.PeerLink.Staleness)
	receiver := peerlink.NewReceiver(cfg.PeerLink.Format, linkPeers, remote,
		log.With().Str("component", "peerlink").Logger(), m)

	// MQTT
	var broker mqtt.Publisher = nopPublisher{}
	if cfg.MQTT.Broker != "" {
		prefix := cfg.PeerLink.Prefix
		client, err := mqtt.NewRealClient(mqtt.Options{
			Broker:    cfg.MQTT.Broker,
			ClientID:  cfg.MQTT.ClientID,
			Subscribe: strings.TrimSuffix(prefix, "/") + "/+",
			OnMessage: func(topic string, payload []byte) {
				if addr, ok := peerlink.Address(prefix, topic); ok {
					receiver.Handle(addr, payload, clock.Now())
				}
			},
			Log: log.With().Str("component", "mqtt").Logger(),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		broker = client
	} else {
		log.Warn().Msg("no mqtt broker configured; peer link disabled")
	}
	// System events wait for broker acks on their own goroutine, never on
	// the scheduler loop.
	publisher := mqtt.NewAsyncPublisher(broker, systemEventQueue, systemEventDrain,
		log.With().Str("component", "mqtt").Logger())
	defer publisher.Close()

	// Remote store
	loc, err := time.LoadLocation(cfg.Store.Location)
	if err != nil {
		return fmt.Errorf("load location: %w", err)
	}
	var (
		syncer  scheduler.Syncer
		gateway *cloud.Gateway
	)
	if cfg.Store.URL != "" {
		store, err := cloud.NewFirebaseStore(cfg.Store.URL, cfg.Store.Auth, cfg.Store.Timeout)
		if err != nil {
			return fmt.Errorf("init store: %w", err)
		}
		gateway = cloud.NewGateway(store, cloud.NewSystemClock(loc), cloud.OnlineFunc(networkOnline),
			cloud.Paths{Reading: cfg.Store.ReadingPath, Command: cfg.Store.CommandPath},
			log.With().Str("component", "cloud").Logger(), m)
		syncer = gateway
		workers.Add(1)
		go func() {
			defer workers.Done()
			gateway.Run(ctx)
		}()
	} else {
		log.Warn().Msg("no store url configured; push and pull disabled")
	}
	// Workers stop before the lines and client they use are closed.
	defer stopWorkers()

	// History
	var recorder readingRecorder
	if cfg.History.Path != "" {
		repo, err := history.New(history.Config{
			Path:      cfg.History.Path,
			BatchSize: cfg.History.BatchSize,
			Flush:     cfg.History.Flush,
		}, clock, log.With().Str("component", "history").Logger())
		if err != nil {
			return fmt.Errorf("init history: %w", err)
		}
		defer repo.Close()
		recorder = repo
	}

	// Initialize status tracker (before STARTUP so snapshot is available)
	tracker := status.NewTracker(clock.Now(), statusConfig(cfg))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		log.Error().Err(err).Msg("failed to queue startup event")
	} else {
		log.Info().Msg("queued startup event")
	}

	// Start HTTP status server
	if cfg.HTTP != "" {
		srv := web.New(cfg.HTTP, tracker, m.Registry)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Info().Str("addr", cfg.HTTP).Msg("http status server listening")
	}

	actuator := logic.NewValveActuator(valveLines, cfg.Valve.Pulse)
	sched := scheduler.New(scheduler.Config{
		Calculate:           cfg.Schedule.Calculate,
		Push:                cfg.Schedule.Push,
		Pull:                cfg.Schedule.Pull,
		Timeout:             cfg.Schedule.Timeout,
		Calibration:         cfg.Sensor.Calibration,
		SuspendWhilePulsing: cfg.Valve.SuspendWhilePulsing,
	}, clock.Now(), pulses, remote, actuator, syncer, log.With().Str("component", "scheduler").Logger(), m)

	log.Info().
		Str("sensor", cfg.Sensor.Mode).
		Dur("calculate", cfg.Schedule.Calculate).
		Dur("push", cfg.Schedule.Push).
		Dur("pull", cfg.Schedule.Pull).
		Dur("pulse", cfg.Valve.Pulse).
		Int("peers", len(cfg.Peers)).
		Str("broker", cfg.MQTT.Broker).
		Dur("heartbeat", cfg.Heartbeat).
		Msg("started")

	ticker := clock.NewTicker(cfg.Schedule.Tick)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	l := &loop{
		sched:      sched,
		pulses:     pulses,
		publisher:  publisher,
		mqttStatus: publisher,
		tracker:    tracker,
		recorder:   recorder,
		heartbeat:  cfg.Heartbeat,
		log:        log,
	}
	if gateway != nil {
		l.syncStats = gateway
	}
	return l.run(clock.Now, ticker.C(), sigCh)
}

const (
	systemEventQueue = 16
	systemEventDrain = 5 * time.Second
)

// readingRecorder stores calculated readings. Record must not block on I/O.
type readingRecorder interface {
	Record(at time.Time, readings ...logic.Reading) error
}

// statsSource reports remote store counters.
type statsSource interface {
	Stats() cloud.Stats
}

// loop is the scheduler goroutine: it ticks the scheduler and fans results
// out to MQTT, history and the status tracker.
type loop struct {
	sched      *scheduler.Scheduler
	pulses     *logic.PulseAccumulator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	recorder   readingRecorder // optional
	syncStats  statsSource     // optional
	heartbeat  time.Duration
	log        zerolog.Logger
}

func (l *loop) run(now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	hb := scheduler.NewTimer(now(), l.heartbeat)

	for {
		select {
		case s := <-sig:
			l.log.Info().Str("signal", s.String()).Msg("shutting down")
			signalName := "UNKNOWN"
			if s == syscall.SIGINT {
				signalName = "SIGINT"
			} else if s == syscall.SIGTERM {
				signalName = "SIGTERM"
			}
			event := mqtt.SystemEvent{
				Timestamp: now(),
				Event:     "SHUTDOWN",
				Reason:    signalName,
				Retained:  true,
			}
			l.updateTracker(now())
			snap := l.tracker.Snapshot()
			event.RawPayload = status.FormatStatusEvent(snap, "SHUTDOWN", signalName)
			if err := l.publisher.PublishSystem(event); err != nil {
				l.log.Error().Err(err).Msg("failed to queue shutdown event")
			} else {
				l.log.Info().Msg("queued shutdown event")
			}
			return nil

		case <-tick:
			t := now()
			res := l.sched.Tick(t)

			if res.Reading != nil {
				report := l.sched.Report(t)
				if err := l.publisher.Publish(report); err != nil && !errors.Is(err, mqtt.ErrNotConnected) {
					l.log.Warn().Err(err).Msg("publish reading failed")
					// Don't crash on publish failure
				}
				if l.recorder != nil {
					readings := append([]logic.Reading{report.Local}, report.Remote...)
					if err := l.recorder.Record(t, readings...); err != nil {
						l.log.Error().Err(err).Msg("history write failed")
					}
				}
			}

			l.updateTracker(t)

			// Check for heartbeat
			if l.heartbeat > 0 && hb.Poll(t) {
				if net := readNetworkInfo(); net != nil {
					l.tracker.SetNetwork(net)
				}
				snap := l.tracker.Snapshot()
				l.log.Info().
					Dur("uptime", snap.Uptime()).
					Float64("local_lpm", snap.LocalFlow).
					Uint64("pulses", snap.PulseTotal).
					Msg("heartbeat")
				hbEvent := mqtt.SystemEvent{
					Timestamp:  snap.Now,
					Event:      "HEARTBEAT",
					RawPayload: status.FormatStatusEvent(snap, "HEARTBEAT", ""),
				}
				if err := l.publisher.PublishSystem(hbEvent); err != nil {
					l.log.Warn().Err(err).Msg("heartbeat publish error")
				}
			}
		}
	}
}

// updateTracker refreshes the status tracker for HTTP and heartbeat consumers.
func (l *loop) updateTracker(t time.Time) {
	report := l.sched.Report(t)
	opens, closes, rejected := l.sched.ValveCounts()

	l.tracker.SetFlow(l.sched.Local(), l.pulses.Total())
	l.tracker.SetPeers(report.Remote)
	l.tracker.SetValve(status.ValveStatus{
		Pulsing:   report.Valve.Pulsing,
		Channel:   report.Valve.Channel,
		StartedAt: report.Valve.StartedAt,
		Opens:     opens,
		Closes:    closes,
		Rejected:  rejected,
	})
	l.tracker.SetCommand(l.sched.LastCommand())
	if l.syncStats != nil {
		s := l.syncStats.Stats()
		l.tracker.SetSync(status.SyncStats{
			PushOK:      s.PushOK,
			PushFailed:  s.PushFailed,
			PushSkipped: s.PushSkipped,
			PullOK:      s.PullOK,
			PullFailed:  s.PullFailed,
			PullSkipped: s.PullSkipped,
		})
	}
	if l.mqttStatus != nil {
		l.tracker.SetMQTTConnected(l.mqttStatus.IsConnected())
	}
}

func printState(cfg *config.Config) error {
	reader, err := gpio.NewRealReader(cfg.Sensor.Chip, cfg.Sensor.Pin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer reader.Close()

	level, err := reader.Read()
	if err != nil {
		return fmt.Errorf("read gpio: %w", err)
	}
	fmt.Printf("sensor: %s (level %d, threshold %d)\n", levelString(level, cfg.Sensor.Threshold), level, cfg.Sensor.Threshold)
	return nil
}

func levelString(level, threshold int) string {
	if level > threshold {
		return "HIGH"
	}
	return "LOW"
}

func peersFromConfig(pcs []config.PeerConfig) ([]logic.Peer, []peerlink.Peer) {
	lp := make([]logic.Peer, len(pcs))
	pp := make([]peerlink.Peer, len(pcs))
	for i, pc := range pcs {
		lp[i] = logic.Peer{ID: logic.PeerID(pc.ID), Name: pc.Name}
		pp[i] = peerlink.Peer{Peer: lp[i], Address: pc.Address}
	}
	return lp, pp
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		SensorMode:          cfg.Sensor.Mode,
		SampleMs:            cfg.Sensor.Period.Milliseconds(),
		CalculateMs:         cfg.Schedule.Calculate.Milliseconds(),
		PushMs:              cfg.Schedule.Push.Milliseconds(),
		PullMs:              cfg.Schedule.Pull.Milliseconds(),
		PulseMs:             cfg.Valve.Pulse.Milliseconds(),
		StalenessMs:         cfg.PeerLink.Staleness.Milliseconds(),
		HeartbeatMs:         cfg.Heartbeat.Milliseconds(),
		SuspendWhilePulsing: cfg.Valve.SuspendWhilePulsing,
		Broker:              cfg.MQTT.Broker,
		HTTPAddr:            cfg.HTTP,
		StoreURL:            redactURL(cfg.Store.URL),
	}
}

// redactURL drops credentials and query parameters for display.
func redactURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	u.User = nil
	u.RawQuery = ""
	return u.String()
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// networkOnline reports whether pi-helper considers the network up. Without
// pi-helper the network is assumed to be up.
func networkOnline() bool {
	info := readNetworkInfo()
	if info == nil {
		return true
	}
	switch strings.ToLower(info.Status) {
	case "disconnected", "down", "offline":
		return false
	}
	return true
}

// nopPublisher stands in for MQTT when no broker is configured.
type nopPublisher struct{}

func (nopPublisher) Publish(logic.Report) error           { return nil }
func (nopPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (nopPublisher) Close() error                         { return nil }
func (nopPublisher) IsConnected() bool                    { return false }
