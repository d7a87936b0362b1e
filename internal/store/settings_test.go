package store

import (
	"errors"
	"testing"
)

func TestSettingsRepository(t *testing.T) {
	s := newTestStore(t)
	repo := s.Settings()

	t.Run("missing key", func(t *testing.T) {
		if _, err := repo.Get("nope"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("set and overwrite", func(t *testing.T) {
		if err := repo.Set("detection.enabled", "true"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		if err := repo.Set("detection.enabled", "false"); err != nil {
			t.Fatalf("failed to overwrite: %v", err)
		}
		v, err := repo.Get("detection.enabled")
		if err != nil {
			t.Fatalf("failed to get: %v", err)
		}
		if v != "false" {
			t.Errorf("expected false, got %q", v)
		}
	})

	t.Run("all", func(t *testing.T) {
		if err := repo.Set("behavior.decay", "500ms"); err != nil {
			t.Fatalf("failed to set: %v", err)
		}
		all, err := repo.All()
		if err != nil {
			t.Fatalf("failed to list: %v", err)
		}
		if len(all) != 2 || all["behavior.decay"] != "500ms" {
			t.Errorf("unexpected settings %v", all)
		}
	})

	t.Run("delete", func(t *testing.T) {
		if err := repo.Delete("behavior.decay"); err != nil {
			t.Fatalf("failed to delete: %v", err)
		}
		if err := repo.Delete("behavior.decay"); !errors.Is(err, ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})
}
