// Package config handles loading, defaulting, and validation of the pulsed
// TOML configuration file. Every section maps to a typed struct so the rest
// of the codebase gets strong typing without manual key lookups.
package config

import (
	"errors"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration, mirroring the TOML sections.
type Config struct {
	Data      DataConfig      `toml:"data"      json:"data"`
	Logging   LoggingConfig   `toml:"logging"   json:"logging"`
	Server    ServerConfig    `toml:"server"    json:"server"`
	Control   ControlConfig   `toml:"control"   json:"control"`
	MQTT      MQTTConfig      `toml:"mqtt"      json:"mqtt"`
	Recording RecordingConfig `toml:"recording" json:"recording"`
	Demo      DemoConfig      `toml:"demo"      json:"demo"`
}

type DataConfig struct {
	Root string `toml:"root" json:"root"`
}

type LoggingConfig struct {
	Level string `toml:"level" json:"level"`
}

// ServerConfig covers the read-only recordings API that analysis clients
// poll over the local network.
type ServerConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

// ControlConfig covers the control/live endpoint used by pulsectl and
// dashboards (lifecycle commands plus the WebSocket feed).
type ControlConfig struct {
	Bind string `toml:"bind" json:"bind"`
}

// MQTTConfig describes the broker sensor bridges publish to. An empty
// broker URL disables the MQTT transport entirely.
type MQTTConfig struct {
	Broker      string `toml:"broker"       json:"broker"`
	TopicPrefix string `toml:"topic_prefix" json:"topic_prefix"`
	ClientID    string `toml:"client_id"    json:"client_id"`
	Username    string `toml:"username"     json:"username"`
	Password    string `toml:"password"     json:"password"`
	QoS         int    `toml:"qos"          json:"qos"`
}

type RecordingConfig struct {
	HRVWindowSeconds  int `toml:"hrv_window_seconds"  json:"hrv_window_seconds"`
	ErrorResetSeconds int `toml:"error_reset_seconds" json:"error_reset_seconds"`
}

// HRVWindow returns the trailing window used for SDNN/RMSSD.
func (r RecordingConfig) HRVWindow() time.Duration {
	return time.Duration(r.HRVWindowSeconds) * time.Second
}

// ErrorReset returns how long the recorder lingers in the Error state
// before resetting to Idle.
func (r RecordingConfig) ErrorReset() time.Duration {
	return time.Duration(r.ErrorResetSeconds) * time.Second
}

type DemoConfig struct {
	Enabled    bool `toml:"enabled"     json:"enabled"`
	Sensors    int  `toml:"sensors"     json:"sensors"`
	IntervalMS int  `toml:"interval_ms" json:"interval_ms"`
}

// Default returns a Config populated with sane defaults. Values here are
// used whenever the TOML file omits a field.
func Default() Config {
	return Config{
		Data: DataConfig{
			Root: "/var/lib/pulse-engine",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Server: ServerConfig{
			Bind: "0.0.0.0:8080",
		},
		Control: ControlConfig{
			Bind: "0.0.0.0:8081",
		},
		MQTT: MQTTConfig{
			Broker:      "",
			TopicPrefix: "polar/sensors",
			ClientID:    "pulsed",
			QoS:         1,
		},
		Recording: RecordingConfig{
			HRVWindowSeconds:  300,
			ErrorResetSeconds: 2,
		},
		Demo: DemoConfig{
			Enabled:    false,
			Sensors:    2,
			IntervalMS: 1000,
		},
	}
}

// Load reads the TOML file at path, layers it on top of the defaults, and
// validates the result. An error is returned if the file can't be read,
// parsed, or if any constraint is violated.
func Load(path string) (Config, error) {
	cfg := Default()

	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := toml.Unmarshal(b, &cfg); err != nil {
		return cfg, err
	}

	if err := validate(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

func validate(cfg Config) error {
	if cfg.Data.Root == "" {
		return errors.New("data.root must not be empty")
	}
	if cfg.Server.Bind == "" {
		return errors.New("server.bind must not be empty")
	}
	if cfg.Control.Bind == "" {
		return errors.New("control.bind must not be empty")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return errors.New("mqtt.qos must be 0, 1, or 2")
	}
	if cfg.MQTT.Broker != "" && cfg.MQTT.TopicPrefix == "" {
		return errors.New("mqtt.topic_prefix must not be empty when a broker is set")
	}
	if cfg.Recording.HRVWindowSeconds < 1 {
		return errors.New("recording.hrv_window_seconds must be >= 1")
	}
	if cfg.Recording.ErrorResetSeconds < 1 {
		return errors.New("recording.error_reset_seconds must be >= 1")
	}
	if cfg.Demo.Sensors < 1 {
		return errors.New("demo.sensors must be >= 1")
	}
	if cfg.Demo.IntervalMS < 10 {
		return errors.New("demo.interval_ms must be >= 10")
	}
	return nil
}
