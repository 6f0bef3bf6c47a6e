package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pulsed.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadLayersOverDefaults(t *testing.T) {
	path := writeConfig(t, `
[data]
root = "/tmp/pulse-test"

[mqtt]
broker = "tcp://broker.lab:1883"

[recording]
hrv_window_seconds = 120
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/pulse-test", cfg.Data.Root)
	assert.Equal(t, "tcp://broker.lab:1883", cfg.MQTT.Broker)
	assert.Equal(t, 120, cfg.Recording.HRVWindowSeconds)

	// Untouched sections keep their defaults.
	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Bind)
	assert.Equal(t, "0.0.0.0:8081", cfg.Control.Bind)
	assert.Equal(t, "polar/sensors", cfg.MQTT.TopicPrefix)
	assert.Equal(t, 2, cfg.Recording.ErrorResetSeconds)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.True(t, os.IsNotExist(err))
}

func TestLoadRejectsBadTOML(t *testing.T) {
	path := writeConfig(t, "not = [valid")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"empty data root", "[data]\nroot = \"\""},
		{"bad qos", "[mqtt]\nqos = 3"},
		{"broker without prefix", "[mqtt]\nbroker = \"tcp://b:1883\"\ntopic_prefix = \"\""},
		{"zero hrv window", "[recording]\nhrv_window_seconds = 0"},
		{"zero error reset", "[recording]\nerror_reset_seconds = 0"},
		{"zero demo sensors", "[demo]\nsensors = 0"},
		{"tiny demo interval", "[demo]\ninterval_ms = 1"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 300*time.Second, cfg.Recording.HRVWindow())
	assert.Equal(t, 2*time.Second, cfg.Recording.ErrorReset())
}
