// Package server provides the HTTP surface: health, telemetry, the MJPEG
// preview stream, the telemetry websocket and the store-backed API.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/ayusman/panoptes/internal/app"
	"github.com/ayusman/panoptes/internal/exchange"
	"github.com/ayusman/panoptes/internal/log"
	"github.com/ayusman/panoptes/internal/server/api"
	"github.com/ayusman/panoptes/internal/store"
)

// Default reader rates.
const (
	DefaultStreamFPS   = 15
	DefaultTelemetryHz = 10
)

// Pipeline is the part of the running app the server reads and toggles.
// *app.App satisfies it.
type Pipeline interface {
	Telemetry() (app.Telemetry, bool)
	Frames() *exchange.Frames
	SetEnabled(enabled bool)
	IsEnabled() bool
}

// Config holds the server configuration.
type Config struct {
	StaticDir   string
	Store       *store.Store
	Pipeline    Pipeline
	StreamFPS   int
	TelemetryHz int
	Logger      *slog.Logger
}

// Server represents the HTTP server.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
	logger *slog.Logger
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	if config.StreamFPS <= 0 {
		config.StreamFPS = DefaultStreamFPS
	}
	if config.TelemetryHz <= 0 {
		config.TelemetryHz = DefaultTelemetryHz
	}
	logger := config.Logger
	if logger == nil {
		logger = log.Component("server")
	}

	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)

	if p := s.config.Pipeline; p != nil {
		s.mux.HandleFunc("/api/telemetry", s.handleTelemetry)
		s.mux.HandleFunc("/api/camera/toggle", s.handleToggle)
		s.mux.Handle("/api/stream", NewStreamHandler(p.Frames(), s.config.StreamFPS))
		s.mux.Handle("/api/ws/telemetry", NewTelemetryHandler(p, s.config.TelemetryHz, s.logger))
	}

	if s.config.Store != nil {
		incidents := api.NewIncidentHandler(s.config.Store)
		settings := api.NewSettingsHandler(s.config.Store)
		s.mux.Handle("/api/incidents", incidents)
		s.mux.Handle("/api/incidents/", incidents)
		s.mux.Handle("/api/settings", settings)
		s.mux.Handle("/api/settings/", settings)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		fs := http.FileServer(http.Dir(s.config.StaticDir))
		s.mux.Handle("/", fs)
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

// handleTelemetry handles GET /api/telemetry. It answers 503 until the
// pipeline has published its first batch.
func (s *Server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	t, ok := s.config.Pipeline.Telemetry()
	if !ok {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"error":         "no results yet",
			"camera_status": t.Camera,
			"enabled":       t.Enabled,
		})
		return
	}
	writeJSON(w, http.StatusOK, t)
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type toggleResponse struct {
	Enabled bool `json:"enabled"`
}

// handleToggle reports (GET) or sets (POST {"enabled":bool}) the detection toggle.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
	case http.MethodPost:
		var req toggleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Enabled == nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": `body must be {"enabled": bool}`})
			return
		}
		s.config.Pipeline.SetEnabled(*req.Enabled)
		s.logger.Info("detection toggled", "enabled", *req.Enabled)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, toggleResponse{Enabled: s.config.Pipeline.IsEnabled()})
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s)
}

// HTTPServer returns an *http.Server serving s on addr, for callers that
// need graceful shutdown.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
