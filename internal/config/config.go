// Package config loads panoptes runtime configuration.
//
// Values come from three layers, later layers winning: built-in defaults,
// an optional JSON file, and PANOPTES_* environment variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// ErrInvalid is returned by Validate when a value is out of range.
var ErrInvalid = errors.New("invalid config")

// Duration is a time.Duration that reads and writes as a string like "500ms".
type Duration time.Duration

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}

	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("duration must be a string or integer: %s", string(b))
	}
	*d = Duration(n)
	return nil
}

// CameraConfig configures the capture device.
type CameraConfig struct {
	Device     int      `json:"device"`
	Width      int      `json:"width"`
	Height     int      `json:"height"`
	FPS        int      `json:"fps"`
	RetryDelay Duration `json:"retry_delay"`
}

// DetectorConfig selects and configures the pose model collaborator.
type DetectorConfig struct {
	Kind          string   `json:"kind"` // "subprocess" or "mock"
	Script        string   `json:"script"`
	Python        string   `json:"python"`
	MinConfidence float64  `json:"min_confidence"`
	IdleTimeout   Duration `json:"idle_timeout"`
}

// BehaviorConfig tunes the per-track smoothing and decay engine.
type BehaviorConfig struct {
	Window     int      `json:"window"`
	Decay      Duration `json:"decay"`
	StaleAfter Duration `json:"stale_after"`
}

// PipelineConfig tunes the inference consumer loop.
type PipelineConfig struct {
	PollInterval Duration `json:"poll_interval"`
}

// IncidentConfig tunes the incident recorder.
type IncidentConfig struct {
	DedupWindow Duration `json:"dedup_window"`
	QueueSize   int      `json:"queue_size"`
	Recent      int      `json:"recent"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr        string `json:"addr"`
	StaticDir   string `json:"static_dir"`
	StreamFPS   int    `json:"stream_fps"`
	TelemetryHz int    `json:"telemetry_hz"`
}

// StoreConfig configures the sqlite database.
type StoreConfig struct {
	Path string `json:"path"`
}

// PluginsConfig configures alert plugins.
type PluginsConfig struct {
	Dir     string   `json:"dir"`
	Timeout Duration `json:"timeout"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// TrayConfig toggles the system tray.
type TrayConfig struct {
	Enabled bool `json:"enabled"`
}

// Config is the root configuration.
type Config struct {
	Camera   CameraConfig   `json:"camera"`
	Detector DetectorConfig `json:"detector"`
	Behavior BehaviorConfig `json:"behavior"`
	Pipeline PipelineConfig `json:"pipeline"`
	Incident IncidentConfig `json:"incident"`
	Server   ServerConfig   `json:"server"`
	Store    StoreConfig    `json:"store"`
	Plugins  PluginsConfig  `json:"plugins"`
	Log      LogConfig      `json:"log"`
	Tray     TrayConfig     `json:"tray"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dataDir := DataDir()
	return &Config{
		Camera: CameraConfig{
			Device:     0,
			Width:      640,
			Height:     480,
			FPS:        30,
			RetryDelay: Duration(time.Second),
		},
		Detector: DetectorConfig{
			Kind:          "subprocess",
			MinConfidence: 0.4,
			IdleTimeout:   Duration(30 * time.Second),
		},
		Behavior: BehaviorConfig{
			Window:     5,
			Decay:      Duration(500 * time.Millisecond),
			StaleAfter: Duration(5 * time.Second),
		},
		Pipeline: PipelineConfig{
			PollInterval: Duration(10 * time.Millisecond),
		},
		Incident: IncidentConfig{
			DedupWindow: Duration(5 * time.Second),
			QueueSize:   64,
			Recent:      15,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			StreamFPS:   30,
			TelemetryHz: 30,
		},
		Store: StoreConfig{
			Path: filepath.Join(dataDir, "panoptes.db"),
		},
		Plugins: PluginsConfig{
			Dir:     filepath.Join(dataDir, "plugins"),
			Timeout: Duration(5 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DataDir returns ~/.panoptes, or ./.panoptes when the home directory is unknown.
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".panoptes"
	}
	return filepath.Join(home, ".panoptes")
}

// Load reads defaults, overlays the JSON file at path (if non-empty),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	if err := num("PANOPTES_CAMERA_DEVICE", &c.Camera.Device); err != nil {
		return err
	}
	str("PANOPTES_DETECTOR_KIND", &c.Detector.Kind)
	str("PANOPTES_DETECTOR_SCRIPT", &c.Detector.Script)
	str("PANOPTES_DETECTOR_PYTHON", &c.Detector.Python)
	str("PANOPTES_SERVER_ADDR", &c.Server.Addr)
	str("PANOPTES_STATIC_DIR", &c.Server.StaticDir)
	str("PANOPTES_STORE_PATH", &c.Store.Path)
	str("PANOPTES_PLUGINS_DIR", &c.Plugins.Dir)
	str("PANOPTES_LOG_LEVEL", &c.Log.Level)
	str("PANOPTES_LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("PANOPTES_TRAY"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("PANOPTES_TRAY: %w", err)
		}
		c.Tray.Enabled = b
	}
	return nil
}

// Validate checks that every value is usable.
func (c *Config) Validate() error {
	switch {
	case c.Camera.Device < 0:
		return fmt.Errorf("%w: camera.device must be >= 0", ErrInvalid)
	case c.Camera.FPS <= 0:
		return fmt.Errorf("%w: camera.fps must be > 0", ErrInvalid)
	case c.Detector.Kind != "subprocess" && c.Detector.Kind != "mock":
		return fmt.Errorf("%w: detector.kind %q (want subprocess or mock)", ErrInvalid, c.Detector.Kind)
	case c.Behavior.Window < 1:
		return fmt.Errorf("%w: behavior.window must be >= 1", ErrInvalid)
	case c.Behavior.Decay < 0:
		return fmt.Errorf("%w: behavior.decay must be >= 0", ErrInvalid)
	case c.Behavior.StaleAfter <= 0:
		return fmt.Errorf("%w: behavior.stale_after must be > 0", ErrInvalid)
	case c.Pipeline.PollInterval <= 0:
		return fmt.Errorf("%w: pipeline.poll_interval must be > 0", ErrInvalid)
	case c.Incident.QueueSize < 1:
		return fmt.Errorf("%w: incident.queue_size must be >= 1", ErrInvalid)
	case c.Server.StreamFPS <= 0 || c.Server.TelemetryHz <= 0:
		return fmt.Errorf("%w: server rates must be > 0", ErrInvalid)
	case c.Store.Path == "":
		return fmt.Errorf("%w: store.path is required", ErrInvalid)
	}
	return nil
}
