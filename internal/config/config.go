// Package config loads daemon configuration from defaults, an optional
// config file, LEAKGW_* environment variables and command-line flags,
// in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/leak-gateway/internal/cloud"
)

// EnvPrefix is the prefix of environment variable overrides.
const EnvPrefix = "LEAKGW"

// Config is the complete daemon configuration.
type Config struct {
	Sensor     SensorConfig   `mapstructure:"sensor"`
	Valve      ValveConfig    `mapstructure:"valve"`
	Schedule   ScheduleConfig `mapstructure:"schedule"`
	PeerLink   PeerLinkConfig `mapstructure:"peerlink"`
	Peers      []PeerConfig   `mapstructure:"peers" validate:"dive"`
	Store      StoreConfig    `mapstructure:"store"`
	MQTT       MQTTConfig     `mapstructure:"mqtt"`
	HTTP       string         `mapstructure:"http"`
	Heartbeat  time.Duration  `mapstructure:"heartbeat" validate:"gte=0"`
	History    HistoryConfig  `mapstructure:"history"`
	Log        LogConfig      `mapstructure:"log"`
	PrintState bool           `mapstructure:"print-state"`
}

// SensorConfig describes the local flow sensor input.
type SensorConfig struct {
	Chip string `mapstructure:"chip" validate:"required"`
	Pin  int    `mapstructure:"pin" validate:"gte=0"`
	// Mode is "poll" (sampling goroutine) or "edge" (kernel edge events).
	Mode        string        `mapstructure:"mode" validate:"oneof=poll edge"`
	Period      time.Duration `mapstructure:"period" validate:"gt=0"`
	Threshold   int           `mapstructure:"threshold" validate:"gte=0"`
	Calibration float64       `mapstructure:"calibration" validate:"gt=0"`
}

// ValveConfig describes the valve outputs.
type ValveConfig struct {
	OpenPin             int           `mapstructure:"open_pin" validate:"gte=0"`
	ClosePin            int           `mapstructure:"close_pin" validate:"gte=0"`
	Pulse               time.Duration `mapstructure:"pulse" validate:"gt=0"`
	SuspendWhilePulsing bool          `mapstructure:"suspend_while_pulsing"`
}

// ScheduleConfig holds the scheduler's tick period and job intervals.
// A zero Timeout interval checks the active pulse on every tick.
type ScheduleConfig struct {
	Tick      time.Duration `mapstructure:"tick" validate:"gt=0"`
	Calculate time.Duration `mapstructure:"calculate" validate:"gt=0"`
	Push      time.Duration `mapstructure:"push" validate:"gt=0"`
	Pull      time.Duration `mapstructure:"pull" validate:"gt=0"`
	Timeout   time.Duration `mapstructure:"timeout" validate:"gte=0"`
}

// PeerLinkConfig describes how remote readings arrive.
type PeerLinkConfig struct {
	Prefix    string        `mapstructure:"prefix" validate:"required"`
	Format    string        `mapstructure:"format" validate:"oneof=flow id-flow"`
	Staleness time.Duration `mapstructure:"staleness" validate:"gt=0"`
}

// PeerConfig maps a remote node's hardware address to a reading slot.
type PeerConfig struct {
	ID      int    `mapstructure:"id" validate:"gt=0"`
	Name    string `mapstructure:"name" validate:"required"`
	Address string `mapstructure:"address" validate:"required"`
}

// StoreConfig describes the remote key-value store. An empty URL disables sync.
type StoreConfig struct {
	URL         string        `mapstructure:"url" validate:"omitempty,url"`
	Auth        string        `mapstructure:"auth"`
	ReadingPath string        `mapstructure:"reading_path" validate:"required"`
	CommandPath string        `mapstructure:"command_path" validate:"required"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	Location    string        `mapstructure:"location" validate:"required"`
}

// MQTTConfig describes the broker. An empty broker disables MQTT.
type MQTTConfig struct {
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id" validate:"required"`
}

// HistoryConfig describes the local reading history. An empty path disables it.
type HistoryConfig struct {
	Path      string        `mapstructure:"path"`
	BatchSize int           `mapstructure:"batch_size" validate:"gt=0"`
	Flush     time.Duration `mapstructure:"flush" validate:"gt=0"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

var validate = validator.New()

// Load parses args (without the program name) and returns the merged,
// validated configuration.
func Load(args []string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	fs := pflag.NewFlagSet("leak-gateway", pflag.ContinueOnError)
	configFile := fs.String("config", "", "Config file (TOML, YAML or JSON)")
	registerFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("parse flags: %w", err)
	}
	if err := v.BindPFlags(fs); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("leak-gateway")
		v.AddConfigPath("/etc/leak-gateway")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and cross-field rules.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Valve.OpenPin == c.Valve.ClosePin {
		return fmt.Errorf("invalid config: valve open_pin and close_pin are both %d", c.Valve.OpenPin)
	}
	if c.Sensor.Pin == c.Valve.OpenPin || c.Sensor.Pin == c.Valve.ClosePin {
		return fmt.Errorf("invalid config: sensor pin %d is also a valve pin", c.Sensor.Pin)
	}

	ids := make(map[int]bool, len(c.Peers))
	names := make(map[string]bool, len(c.Peers))
	addrs := make(map[string]bool, len(c.Peers))
	for _, p := range c.Peers {
		if cloud.ReservedKey(p.Name) {
			return fmt.Errorf("invalid config: peer name %q is reserved", p.Name)
		}
		addr := strings.ToLower(p.Address)
		if ids[p.ID] || names[p.Name] || addrs[addr] {
			return fmt.Errorf("invalid config: duplicate peer %d (%s, %s)", p.ID, p.Name, p.Address)
		}
		ids[p.ID], names[p.Name], addrs[addr] = true, true, true
	}

	if _, err := time.LoadLocation(c.Store.Location); err != nil {
		return fmt.Errorf("invalid config: store.location: %w", err)
	}
	return nil
}
