// Package app wires the capture producer, the inference consumer and the
// incident recorder into one supervised pipeline.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/panoptes/internal/behavior"
	"github.com/ayusman/panoptes/internal/capture"
	"github.com/ayusman/panoptes/internal/config"
	"github.com/ayusman/panoptes/internal/detector"
	"github.com/ayusman/panoptes/internal/exchange"
	"github.com/ayusman/panoptes/internal/incident"
	"github.com/ayusman/panoptes/internal/log"
	"github.com/ayusman/panoptes/internal/plugin"
	"github.com/ayusman/panoptes/internal/store"
)

// SettingDetectionEnabled is the settings key holding the detection toggle.
const SettingDetectionEnabled = "detection.enabled"

// Options holds the collaborators of an App. Camera and Config fall back to
// the device camera and the built-in defaults; Store and Plugins are optional.
type Options struct {
	Config   *config.Config
	Camera   capture.Camera
	Detector detector.Detector
	Store    *store.Store
	Plugins  *plugin.Manager
	Logger   *slog.Logger
}

// Telemetry is the read-only view served to dashboards and the tray.
type Telemetry struct {
	Detections    []behavior.Detection `json:"detections"`
	Timestamp     time.Time            `json:"timestamp"`
	FPS           float64              `json:"fps"`
	Tracks        int                  `json:"tracks"`
	Camera        string               `json:"camera_status"`
	Enabled       bool                 `json:"enabled"`
	Incidents     []incident.Incident  `json:"incidents"`
	Frames        exchange.FrameStats  `json:"frames"`
	Results       uint64               `json:"results_published"`
	DetectFailed  uint64               `json:"detector_failures"`
	IncidentStats incident.Stats       `json:"incident_stats"`
}

// App is the running surveillance pipeline.
type App struct {
	config   *config.Config
	camera   capture.Camera
	detector detector.Detector
	store    *store.Store
	logger   *slog.Logger

	frames   *exchange.Frames
	results  *exchange.Results
	producer *capture.Producer
	consumer *Consumer
	recorder *incident.Recorder

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// New builds the pipeline. Nothing runs until Start.
func New(opts Options) (*App, error) {
	if opts.Detector == nil {
		return nil, errors.New("app: detector is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Component("app")
	}
	cam := opts.Camera
	if cam == nil {
		cam = capture.NewCamera(capture.Options{
			DeviceID: cfg.Camera.Device,
			Width:    cfg.Camera.Width,
			Height:   cfg.Camera.Height,
			FPS:      cfg.Camera.FPS,
		})
	}

	a := &App{
		config:   cfg,
		camera:   cam,
		detector: opts.Detector,
		store:    opts.Store,
		logger:   logger,
		frames:   exchange.NewFrames(),
		results:  exchange.NewResults(),
	}

	recOpts := []incident.Option{
		incident.WithDedupWindow(cfg.Incident.DedupWindow.D()),
		incident.WithQueueSize(cfg.Incident.QueueSize),
		incident.WithRecent(cfg.Incident.Recent),
	}
	if opts.Plugins != nil {
		exec := plugin.NewExecutor(cfg.Plugins.Timeout.D())
		recOpts = append(recOpts, incident.WithAlerter(incident.NewPluginAlerter(opts.Plugins, exec)))
	}
	var sink incident.Sink
	if opts.Store != nil {
		sink = opts.Store.Incidents()
	}
	a.recorder = incident.NewRecorder(sink, recOpts...)

	a.producer = capture.NewProducer(cam, a.frames,
		capture.WithRetryDelay(cfg.Camera.RetryDelay.D()))

	registry := behavior.NewRegistry(behavior.Config{
		Window:     cfg.Behavior.Window,
		Decay:      cfg.Behavior.Decay.D(),
		StaleAfter: cfg.Behavior.StaleAfter.D(),
	})
	a.consumer = NewConsumer(a.frames, a.results, opts.Detector, registry,
		WithPollInterval(cfg.Pipeline.PollInterval.D()),
		WithObserver(a.recorder))

	a.producer.SetEnabled(a.loadEnabled())
	return a, nil
}

func (a *App) loadEnabled() bool {
	if a.store == nil {
		return true
	}
	v, err := a.store.Settings().Get(SettingDetectionEnabled)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			a.logger.Warn("reading detection setting failed", "error", err)
		}
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		a.logger.Warn("invalid detection setting", "value", v)
		return true
	}
	return enabled
}

// Start opens the camera and launches the producer, consumer and recorder.
// It returns an error if the camera cannot be opened while detection is
// enabled. Calling Start on a running App is a no-op.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cancel != nil {
		return nil
	}

	if a.producer.Enabled() && !a.camera.IsOpen() {
		if err := a.camera.Open(); err != nil {
			return fmt.Errorf("open camera: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.producer.Run(gctx) })
	g.Go(func() error { return a.consumer.Run(gctx) })
	g.Go(func() error { return a.recorder.Run(gctx) })

	a.cancel = cancel
	a.group = g
	a.logger.Info("pipeline started", "detection", a.producer.Enabled())
	return nil
}

// Stop cancels the loops, waits for them to exit and closes the detector.
func (a *App) Stop() error {
	a.mu.Lock()
	cancel, g := a.cancel, a.group
	a.cancel, a.group = nil, nil
	a.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	err := g.Wait()

	if cerr := a.detector.Close(); cerr != nil {
		a.logger.Warn("closing detector failed", "error", cerr)
	}
	a.logger.Info("pipeline stopped")
	return err
}

// Running reports whether Start has been called without a matching Stop.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cancel != nil
}

// SetEnabled turns detection on or off and remembers the choice.
func (a *App) SetEnabled(enabled bool) {
	a.producer.SetEnabled(enabled)
	if a.store == nil {
		return
	}
	if err := a.store.Settings().Set(SettingDetectionEnabled, strconv.FormatBool(enabled)); err != nil {
		a.logger.Warn("saving detection setting failed", "error", err)
	}
}

// IsEnabled reports whether detection is on.
func (a *App) IsEnabled() bool {
	return a.producer.Enabled()
}

// Telemetry returns the latest view. ok is false until the first batch
// has been published.
func (a *App) Telemetry() (Telemetry, bool) {
	snap, ok := a.results.Snapshot()
	t := Telemetry{
		Detections:    snap.Detections,
		Timestamp:     snap.Timestamp,
		FPS:           snap.Throughput,
		Tracks:        a.consumer.Tracks(),
		Camera:        a.producer.Status(),
		Enabled:       a.producer.Enabled(),
		Incidents:     a.recorder.Recent(),
		Frames:        a.frames.Stats(),
		Results:       a.results.Published(),
		DetectFailed:  a.consumer.Failures(),
		IncidentStats: a.recorder.Stats(),
	}
	if t.Detections == nil {
		t.Detections = []behavior.Detection{}
	}
	return t, ok
}

// LastIncident returns the most recent incident, if any.
func (a *App) LastIncident() (incident.Incident, bool) {
	return a.recorder.Last()
}

// Frames returns the frame exchange.
func (a *App) Frames() *exchange.Frames {
	return a.frames
}

// Results returns the result exchange.
func (a *App) Results() *exchange.Results {
	return a.results
}

// Recorder returns the incident recorder.
func (a *App) Recorder() *incident.Recorder {
	return a.recorder
}

// Producer returns the capture producer.
func (a *App) Producer() *capture.Producer {
	return a.producer
}

// Consumer returns the inference consumer.
func (a *App) Consumer() *Consumer {
	return a.consumer
}

// Store returns the store, or nil.
func (a *App) Store() *store.Store {
	return a.store
}
