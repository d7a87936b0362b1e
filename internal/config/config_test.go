package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, 5, cfg.Behavior.Window)
	assert.Equal(t, 500*time.Millisecond, cfg.Behavior.Decay.D())
	assert.Equal(t, 10*time.Millisecond, cfg.Pipeline.PollInterval.D())
	assert.Equal(t, 5*time.Second, cfg.Incident.DedupWindow.D())
	assert.Equal(t, "subprocess", cfg.Detector.Kind)
	require.NoError(t, cfg.Validate())
}

func TestLoad_File(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "panoptes.json")

	body := `{
  "camera": {"device": 2, "fps": 60, "retry_delay": "2s"},
  "behavior": {"window": 3, "decay": "750ms"},
  "detector": {"kind": "mock"},
  "store": {"path": "` + filepath.ToSlash(filepath.Join(tmpDir, "x.db")) + `"}
}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 2, cfg.Camera.Device)
	assert.Equal(t, 60, cfg.Camera.FPS)
	assert.Equal(t, 2*time.Second, cfg.Camera.RetryDelay.D())
	assert.Equal(t, 3, cfg.Behavior.Window)
	assert.Equal(t, 750*time.Millisecond, cfg.Behavior.Decay.D())
	assert.Equal(t, "mock", cfg.Detector.Kind)
	// untouched sections keep their defaults
	assert.Equal(t, 5*time.Second, cfg.Behavior.StaleAfter.D())
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoad_BadJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"behavior": {"decay": "soon"}}`), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"PANOPTES_CAMERA_DEVICE": "3",
		"PANOPTES_SERVER_ADDR":   "127.0.0.1:9000",
		"PANOPTES_LOG_LEVEL":     "debug",
		"PANOPTES_TRAY":          "true",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}

	cfg := Default()
	require.NoError(t, cfg.applyEnv(lookup))

	assert.Equal(t, 3, cfg.Camera.Device)
	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.True(t, cfg.Tray.Enabled)
}

func TestApplyEnv_BadNumber(t *testing.T) {
	lookup := func(k string) (string, bool) {
		if k == "PANOPTES_CAMERA_DEVICE" {
			return "front", true
		}
		return "", false
	}

	cfg := Default()
	assert.Error(t, cfg.applyEnv(lookup))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"negative device", func(c *Config) { c.Camera.Device = -1 }},
		{"zero fps", func(c *Config) { c.Camera.FPS = 0 }},
		{"unknown detector", func(c *Config) { c.Detector.Kind = "onnx" }},
		{"zero window", func(c *Config) { c.Behavior.Window = 0 }},
		{"negative decay", func(c *Config) { c.Behavior.Decay = Duration(-time.Second) }},
		{"zero stale", func(c *Config) { c.Behavior.StaleAfter = 0 }},
		{"zero poll", func(c *Config) { c.Pipeline.PollInterval = 0 }},
		{"zero queue", func(c *Config) { c.Incident.QueueSize = 0 }},
		{"zero stream fps", func(c *Config) { c.Server.StreamFPS = 0 }},
		{"empty store path", func(c *Config) { c.Store.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalid), "want ErrInvalid, got %v", err)
		})
	}
}

func TestDuration_JSON(t *testing.T) {
	d := Duration(1500 * time.Millisecond)
	b, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(b))

	var back Duration
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, d, back)

	require.NoError(t, json.Unmarshal([]byte(`1000`), &back))
	assert.Equal(t, Duration(1000), back)
}
