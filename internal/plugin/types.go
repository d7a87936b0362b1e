// Package plugin discovers and runs external alert plugins.
//
// A plugin is a directory holding a plugin.json manifest and an executable.
// The executable receives one JSON Request on stdin and writes one JSON
// Response to stdout.
package plugin

import (
	"encoding/json"
	"slices"
	"time"
)

// Manifest describes a plugin's metadata and the labels it handles.
type Manifest struct {
	Name        string          `json:"name"`
	Version     string          `json:"version"`
	Description string          `json:"description"`
	Executable  string          `json:"executable"`
	Labels      []string        `json:"labels"` // empty means every label
	Config      json.RawMessage `json:"config,omitempty"`
}

// Request represents an incident sent to a plugin.
type Request struct {
	Event    string          `json:"event"`
	ID       string          `json:"id"`
	TrackID  int             `json:"track_id"`
	Label    string          `json:"label"`
	Message  string          `json:"message"`
	Severity string          `json:"severity"`
	Time     time.Time       `json:"time"`
	Config   json.RawMessage `json:"config,omitempty"`
}

// EventIncident is the Request.Event value for incident alerts.
const EventIncident = "incident"

// Response represents the response from a plugin execution.
type Response struct {
	Success bool            `json:"success"`
	Error   string          `json:"error,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Plugin represents a discovered plugin with its manifest and location.
type Plugin struct {
	Manifest   Manifest
	Path       string
	Executable string
}

// Accepts reports whether the plugin wants incidents with label.
func (p *Plugin) Accepts(label string) bool {
	return len(p.Manifest.Labels) == 0 || slices.Contains(p.Manifest.Labels, label)
}
