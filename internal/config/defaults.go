package config

import (
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Defaults suit a YF-S201 style sensor and a two-coil latching valve.
const (
	DefaultChip        = "gpiochip0"
	DefaultSensorPin   = 17
	DefaultOpenPin     = 21
	DefaultClosePin    = 5
	DefaultThreshold   = 110
	DefaultCalibration = 6.6
	DefaultLogLevel    = "info"
	DefaultLocation    = "America/Chicago"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("sensor.chip", DefaultChip)
	v.SetDefault("sensor.pin", DefaultSensorPin)
	v.SetDefault("sensor.mode", "poll")
	v.SetDefault("sensor.period", time.Millisecond)
	v.SetDefault("sensor.threshold", DefaultThreshold)
	v.SetDefault("sensor.calibration", DefaultCalibration)

	v.SetDefault("valve.open_pin", DefaultOpenPin)
	v.SetDefault("valve.close_pin", DefaultClosePin)
	v.SetDefault("valve.pulse", 2*time.Second)
	v.SetDefault("valve.suspend_while_pulsing", true)

	v.SetDefault("schedule.tick", 10*time.Millisecond)
	v.SetDefault("schedule.calculate", 3*time.Second)
	v.SetDefault("schedule.push", 3*time.Second)
	v.SetDefault("schedule.pull", time.Second)
	v.SetDefault("schedule.timeout", time.Duration(0))

	v.SetDefault("peerlink.prefix", "leak/peer")
	v.SetDefault("peerlink.format", "id-flow")
	v.SetDefault("peerlink.staleness", 15*time.Second)
	v.SetDefault("peers", []map[string]interface{}{
		{"id": 1, "name": "remote_sensor_1", "address": "node-1"},
		{"id": 2, "name": "remote_sensor_2", "address": "node-2"},
	})

	v.SetDefault("store.url", "")
	v.SetDefault("store.auth", "")
	v.SetDefault("store.reading_path", "leak_reading")
	v.SetDefault("store.command_path", "cmd.main_valve")
	v.SetDefault("store.timeout", 5*time.Second)
	v.SetDefault("store.location", DefaultLocation)

	v.SetDefault("mqtt.broker", "tcp://127.0.0.1:1883")
	v.SetDefault("mqtt.client_id", "leak-gateway")

	v.SetDefault("http", ":80")
	v.SetDefault("heartbeat", 15*time.Minute)

	v.SetDefault("history.path", "")
	v.SetDefault("history.batch_size", 20)
	v.SetDefault("history.flush", 30*time.Second)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("print-state", false)
}

func registerFlags(fs *pflag.FlagSet) {
	fs.Int("sensor.pin", DefaultSensorPin, "BCM pin number of the flow sensor")
	fs.String("sensor.mode", "poll", `Pulse counting mode ("poll" or "edge")`)
	fs.Duration("sensor.period", time.Millisecond, "Sensor sampling period in poll mode")
	fs.Int("sensor.threshold", DefaultThreshold, "Sensor level (ADC units) above which the input counts as high")
	fs.Float64("sensor.calibration", DefaultCalibration, "Pulse frequency (Hz) per L/min")

	fs.Int("valve.open_pin", DefaultOpenPin, "BCM pin number of the valve OPEN line")
	fs.Int("valve.close_pin", DefaultClosePin, "BCM pin number of the valve CLOSE line")
	fs.Duration("valve.pulse", 2*time.Second, "Valve pulse duration")
	fs.Bool("valve.suspend_while_pulsing", true, "Suspend calculate/push/pull jobs while the valve is pulsing")

	fs.Duration("schedule.calculate", 3*time.Second, "Flow calculation window")
	fs.Duration("schedule.push", 3*time.Second, "Remote store push interval")
	fs.Duration("schedule.pull", time.Second, "Remote command poll interval")

	fs.String("store.url", "", "Remote store base URL (empty to disable sync)")
	fs.String("mqtt.broker", "tcp://127.0.0.1:1883", "MQTT broker address (empty to disable)")
	fs.String("http", ":80", "HTTP status address (empty to disable)")
	fs.Duration("heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	fs.String("history.path", "", "SQLite reading history path (empty to disable)")
	fs.String("log.level", DefaultLogLevel, "Log level (debug, info, warn, error)")
	fs.Bool("print-state", false, "Print current sensor level and exit")
}
