package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSettingsHandler(t *testing.T) {
	s := newTestStore(t)
	handler := NewSettingsHandler(s)

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("empty list", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/settings", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		if body := strings.TrimSpace(rec.Body.String()); body != "{}" {
			t.Errorf("expected {}, got %s", body)
		}
	})

	t.Run("put merges values", func(t *testing.T) {
		if rec := do(http.MethodPut, "/api/settings", `{"detection.enabled":"true","theme":"dark"}`); rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}

		rec := do(http.MethodPut, "/api/settings", `{"theme":"light"}`)
		var got map[string]string
		json.NewDecoder(rec.Body).Decode(&got)

		if got["theme"] != "light" || got["detection.enabled"] != "true" {
			t.Errorf("unexpected settings %v", got)
		}
	})

	t.Run("put rejects invalid body", func(t *testing.T) {
		if rec := do(http.MethodPut, "/api/settings", `["x"]`); rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
		if rec := do(http.MethodPut, "/api/settings", `{"":"x"}`); rec.Code != http.StatusBadRequest {
			t.Errorf("expected status %d, got %d", http.StatusBadRequest, rec.Code)
		}
	})

	t.Run("get one", func(t *testing.T) {
		rec := do(http.MethodGet, "/api/settings/theme", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
		}
		var got map[string]string
		json.NewDecoder(rec.Body).Decode(&got)
		if got["theme"] != "light" {
			t.Errorf("theme = %q, want light", got["theme"])
		}

		if rec := do(http.MethodGet, "/api/settings/missing", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if rec := do(http.MethodDelete, "/api/settings/theme", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
		}
		if rec := do(http.MethodDelete, "/api/settings/theme", ""); rec.Code != http.StatusNotFound {
			t.Errorf("expected status %d, got %d", http.StatusNotFound, rec.Code)
		}
	})

	t.Run("method not allowed", func(t *testing.T) {
		if rec := do(http.MethodPost, "/api/settings", `{}`); rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
		}
	})
}
