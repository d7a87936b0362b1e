package detector

import (
	"errors"
	"time"

	"github.com/ayusman/panoptes/internal/frame"
)

// ErrNotStarted is returned when the model backend is not running.
var ErrNotStarted = errors.New("detector not started")

// Detector defines the interface for pose model implementations.
type Detector interface {
	// Detect analyzes a frame and returns one observation per tracked subject.
	// Returns an empty slice if nobody is in view.
	Detect(f *frame.Frame) ([]Observation, error)

	// Close releases any resources held by the detector.
	Close() error
}

// Config holds configuration options for pose detection.
type Config struct {
	// Script is the path to the model service script. Empty means search
	// the usual locations.
	Script string

	// Python is the interpreter used to run Script. Empty means search
	// for a virtualenv, then fall back to python3.
	Python string

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// IdleTimeout shuts the backend down after this long without a request.
	IdleTimeout time.Duration

	// Encode turns a frame into the JPEG bytes sent to the service.
	Encode func(*frame.Frame) ([]byte, error)
}

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 0.4,
		IdleTimeout:   30 * time.Second,
	}
}
