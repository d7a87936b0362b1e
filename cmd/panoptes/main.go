package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ayusman/panoptes/internal/app"
	"github.com/ayusman/panoptes/internal/capture"
	"github.com/ayusman/panoptes/internal/config"
	"github.com/ayusman/panoptes/internal/detector"
	"github.com/ayusman/panoptes/internal/log"
	"github.com/ayusman/panoptes/internal/plugin"
	"github.com/ayusman/panoptes/internal/server"
	"github.com/ayusman/panoptes/internal/store"
	"github.com/ayusman/panoptes/internal/tray"
)

const shutdownTimeout = 5 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a JSON config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Error("panoptes failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log.Init(cfg.Log.Level, cfg.Log.Format)
	logger := log.Component("main")

	st, err := store.New(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	plugins := plugin.NewManager(cfg.Plugins.Dir)
	if err := plugins.Discover(); err != nil {
		logger.Warn("plugin discovery failed", "dir", cfg.Plugins.Dir, "error", err)
	}
	logger.Info("plugins loaded", "count", len(plugins.List()))

	a, err := app.New(app.Options{
		Config:   cfg,
		Detector: newDetector(cfg),
		Store:    st,
		Plugins:  plugins,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.Start(ctx); err != nil {
		return err
	}
	defer a.Stop()

	staticDir := cfg.Server.StaticDir
	if staticDir == "" {
		staticDir = findWebDir()
	}
	if staticDir != "" {
		logger.Info("serving static files", "dir", staticDir)
	}

	srv := server.New(server.Config{
		StaticDir:   staticDir,
		Store:       st,
		Pipeline:    a,
		StreamFPS:   cfg.Server.StreamFPS,
		TelemetryHz: cfg.Server.TelemetryHz,
	})
	httpSrv := srv.HTTPServer(cfg.Server.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	if cfg.Tray.Enabled {
		runTray(gctx, stop, a, dashboardURL(cfg.Server.Addr))
	}

	err = g.Wait()
	logger.Info("shutting down")
	return err
}

// newDetector returns the configured pose model, falling back to the mock
// detector when the subprocess backend is unavailable.
func newDetector(cfg *config.Config) detector.Detector {
	if cfg.Detector.Kind == "mock" {
		log.Warn("using mock detector")
		return detector.NewMockDetector()
	}

	d, err := detector.NewSubprocessDetector(detector.Config{
		Script:        cfg.Detector.Script,
		Python:        cfg.Detector.Python,
		MinConfidence: cfg.Detector.MinConfidence,
		IdleTimeout:   cfg.Detector.IdleTimeout.D(),
		Encode:        capture.EncodeJPEG,
	})
	if err != nil {
		log.Warn("pose model not available, using mock detector", "error", err)
		return detector.NewMockDetector()
	}
	log.Info("using subprocess pose model")
	return d
}

// runTray blocks on the tray menu until quit or ctx is done.
func runTray(ctx context.Context, stop context.CancelFunc, a *app.App, url string) {
	t := tray.New(a.IsEnabled())
	t.OnToggle(a.SetEnabled)
	t.OnDashboard(func() { openBrowser(url) })
	t.OnQuit(stop)

	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				t.Quit()
				return
			case <-ticker.C:
				tel, _ := a.Telemetry()
				t.SetCameraStatus(tel.Camera)
				t.SetEnabled(tel.Enabled)
				if inc, ok := a.LastIncident(); ok {
					t.SetLastIncident(inc.Message)
				}
			}
		}
	}()

	t.Run()
}

func dashboardURL(addr string) string {
	if len(addr) > 0 && addr[0] == ':' {
		addr = "localhost" + addr
	}
	return "http://" + addr
}

func openBrowser(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		cmd = exec.Command("xdg-open", url)
	}
	if err := cmd.Start(); err != nil {
		log.Warn("opening browser failed", "url", url, "error", err)
	}
}

// findWebDir searches for the web directory in common locations.
// It checks: "web", "../web", "../../web", and ~/.panoptes/web.
// Returns the first existing directory or empty string if none found.
func findWebDir() string {
	relativePaths := []string{"web", "../web", "../../web"}
	for _, p := range relativePaths {
		if info, err := os.Stat(p); err == nil && info.IsDir() {
			absPath, err := filepath.Abs(p)
			if err == nil {
				return absPath
			}
			return p
		}
	}

	homeWebDir := filepath.Join(config.DataDir(), "web")
	if info, err := os.Stat(homeWebDir); err == nil && info.IsDir() {
		return homeWebDir
	}

	return ""
}
