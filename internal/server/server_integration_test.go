package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/ayusman/panoptes/internal/app"
	"github.com/ayusman/panoptes/internal/capture"
	"github.com/ayusman/panoptes/internal/config"
	"github.com/ayusman/panoptes/internal/detector"
	"github.com/ayusman/panoptes/internal/frame"
	"github.com/ayusman/panoptes/internal/log"
	"github.com/ayusman/panoptes/internal/store"
)

func TestAPI_PipelineWorkflow(t *testing.T) {
	s, err := store.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	defer s.Close()

	cfg := config.Default()
	cfg.Pipeline.PollInterval = config.Duration(time.Millisecond)

	det := detector.NewMockDetector()
	det.SetObservations([]detector.Observation{{TrackID: 4, Keypoints: detector.GuardPose()}})
	cam := capture.NewMockCamera([]*frame.Frame{capture.SolidFrame(8, 8, 1)}, true)

	a, err := app.New(app.Options{Config: cfg, Camera: cam, Detector: det, Store: s, Logger: log.Discard()})
	if err != nil {
		t.Fatalf("app.New() error = %v", err)
	}
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer a.Stop()

	srv := New(Config{Store: s, Pipeline: a, Logger: log.Discard()})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	client := ts.Client()

	// 1. Telemetry becomes available
	var tel app.Telemetry
	waitStatus(t, client, ts.URL+"/api/telemetry", http.StatusOK, &tel)
	if len(tel.Detections) != 1 || tel.Detections[0].TrackID != 4 {
		t.Fatalf("unexpected detections %+v", tel.Detections)
	}

	// 2. The aggression incident is persisted
	deadline := time.Now().Add(2 * time.Second)
	for {
		var listed struct {
			Incidents []store.Incident `json:"incidents"`
		}
		resp, err := client.Get(ts.URL + "/api/incidents")
		if err != nil {
			t.Fatalf("GET /api/incidents error = %v", err)
		}
		json.NewDecoder(resp.Body).Decode(&listed)
		resp.Body.Close()
		if len(listed.Incidents) == 1 {
			if listed.Incidents[0].Label != "AGRESION" {
				t.Errorf("label = %s, want AGRESION", listed.Incidents[0].Label)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("incident not listed, got %d", len(listed.Incidents))
		}
		time.Sleep(10 * time.Millisecond)
	}

	// 3. Toggle detection off; the setting is stored
	resp, err := client.Post(ts.URL+"/api/camera/toggle", "application/json", bytes.NewBufferString(`{"enabled":false}`))
	if err != nil {
		t.Fatalf("POST toggle error = %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("toggle status = %d", resp.StatusCode)
	}

	resp, _ = client.Get(ts.URL + "/api/settings/" + app.SettingDetectionEnabled)
	var setting map[string]string
	json.NewDecoder(resp.Body).Decode(&setting)
	resp.Body.Close()
	if setting[app.SettingDetectionEnabled] != "false" {
		t.Errorf("stored toggle = %v", setting)
	}
}

func waitStatus(t *testing.T, client *http.Client, url string, status int, out any) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := client.Get(url)
		if err != nil {
			t.Fatalf("GET %s error = %v", url, err)
		}
		if resp.StatusCode == status {
			err := json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			if err != nil {
				t.Fatalf("decode %s: %v", url, err)
			}
			return
		}
		resp.Body.Close()
		if time.Now().After(deadline) {
			t.Fatalf("GET %s status = %d, want %d", url, resp.StatusCode, status)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
