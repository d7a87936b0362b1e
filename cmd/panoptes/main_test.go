package main

import (
	"testing"

	"github.com/ayusman/panoptes/internal/config"
	"github.com/ayusman/panoptes/internal/detector"
)

func TestDashboardURL(t *testing.T) {
	tests := []struct {
		addr string
		want string
	}{
		{":8080", "http://localhost:8080"},
		{"127.0.0.1:9000", "http://127.0.0.1:9000"},
	}
	for _, tt := range tests {
		if got := dashboardURL(tt.addr); got != tt.want {
			t.Errorf("dashboardURL(%q) = %q, want %q", tt.addr, got, tt.want)
		}
	}
}

func TestNewDetector_Fallback(t *testing.T) {
	t.Run("mock kind", func(t *testing.T) {
		cfg := config.Default()
		cfg.Detector.Kind = "mock"
		if _, ok := newDetector(cfg).(*detector.MockDetector); !ok {
			t.Error("expected mock detector")
		}
	})

	t.Run("missing script falls back to mock", func(t *testing.T) {
		cfg := config.Default()
		cfg.Detector.Script = "/nonexistent/pose_service.py"
		if _, ok := newDetector(cfg).(*detector.MockDetector); !ok {
			t.Error("expected mock detector fallback")
		}
	})
}
