package plugin

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// builtAlertLog returns the alert-log plugin dir, skipping when it is not built.
func builtAlertLog(t *testing.T) string {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test")
	}

	pluginDir := findPluginDir("alert-log")
	if pluginDir == "" {
		t.Skip("alert-log plugin not found")
	}
	if _, err := os.Stat(filepath.Join(pluginDir, "alert-log")); err != nil {
		t.Skip("alert-log plugin not built")
	}
	return pluginDir
}

func TestPlugin_AlertLog_Integration(t *testing.T) {
	pluginDir := builtAlertLog(t)

	mgr := NewManager(filepath.Dir(pluginDir))
	if err := mgr.Discover(); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}

	plug, err := mgr.Get("alert-log")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}

	logPath := filepath.Join(t.TempDir(), "alerts.jsonl")
	req := testRequest()
	req.Config = json.RawMessage(`{"path":"` + logPath + `"}`)

	executor := NewExecutor(5 * time.Second)
	resp, err := executor.Execute(context.Background(), plug, req)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !resp.Success {
		t.Fatalf("expected success, got error %q", resp.Error)
	}

	f, err := os.Open(logPath)
	if err != nil {
		t.Fatalf("alert log not written: %v", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		t.Fatal("alert log is empty")
	}
	var got Request
	if err := json.Unmarshal(sc.Bytes(), &got); err != nil {
		t.Fatalf("invalid log line: %v", err)
	}
	if got.ID != req.ID || got.Label != req.Label {
		t.Errorf("unexpected logged incident %+v", got)
	}
}

func TestPlugin_AlertLog_RejectsUnknownEvent(t *testing.T) {
	pluginDir := builtAlertLog(t)

	plug := &Plugin{
		Manifest:   Manifest{Name: "alert-log"},
		Path:       pluginDir,
		Executable: filepath.Join(pluginDir, "alert-log"),
	}

	executor := NewExecutor(5 * time.Second)
	resp, err := executor.Execute(context.Background(), plug, &Request{Event: "unknown"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if resp.Success {
		t.Error("expected failure for unknown event")
	}
}

func findPluginDir(name string) string {
	candidates := []string{
		filepath.Join("../../plugins", name),
		filepath.Join("../../../plugins", name),
	}

	for _, dir := range candidates {
		manifest := filepath.Join(dir, "plugin.json")
		if _, err := os.Stat(manifest); err == nil {
			return dir
		}
	}
	return ""
}
