package bodymodel

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestModels(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"SMPL_NEUTRAL.pkl", "SMPLX_MALE.npz", "README.md"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "extra.pkl"), 0755); err != nil {
		t.Fatal(err)
	}

	models, err := Models(dir)
	if err != nil {
		t.Fatalf("Models failed: %v", err)
	}
	if len(models) != 2 {
		t.Fatalf("Expected 2 models, got %d: %v", len(models), models)
	}
	ref, ok := models[Neutral]
	if !ok {
		t.Fatalf("Expected %s in %v", Neutral, models)
	}
	if ref.Path != filepath.Join(dir, Neutral) {
		t.Errorf("Unexpected path %q", ref.Path)
	}
}

func TestModels_MissingDir(t *testing.T) {
	models, err := Models(filepath.Join(t.TempDir(), "nope"))
	if err != nil {
		t.Fatalf("Expected no error for missing dir, got %v", err)
	}
	if len(models) != 0 {
		t.Errorf("Expected empty map, got %v", models)
	}
}

func TestLookup(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, Neutral), nil, 0644); err != nil {
		t.Fatal(err)
	}

	ref, err := Lookup(dir, Neutral)
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}
	if ref.Name != Neutral {
		t.Errorf("Expected name %s, got %s", Neutral, ref.Name)
	}

	_, err = Lookup(dir, "SMPL_FEMALE.pkl")
	if !errors.Is(err, ErrModelNotFound) {
		t.Errorf("Expected ErrModelNotFound, got %v", err)
	}
	if err != nil && !strings.Contains(err.Error(), "available: "+Neutral) {
		t.Errorf("Expected available models in error, got %v", err)
	}

	_, err = Lookup(filepath.Join(dir, "nope"), Neutral)
	if !errors.Is(err, ErrModelNotFound) || !strings.Contains(err.Error(), "available: none") {
		t.Errorf("Expected ErrModelNotFound listing no models, got %v", err)
	}
}
