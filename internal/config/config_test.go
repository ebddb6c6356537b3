package config

import (
	"context"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/types"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default config should validate: %v", err)
	}

	p, err := cfg.BorderParameters()
	if err != nil {
		t.Fatalf("BorderParameters failed: %v", err)
	}
	if p != types.DefaultBorderParameters() {
		t.Errorf("Expected default border, got %+v", p)
	}

	bg, err := cfg.BackgroundColor()
	if err != nil || bg != nil {
		t.Errorf("Expected transparent background, got %v, %v", bg, err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"size":         func(c *Config) { c.Render.Size = 0 },
		"thickness":    func(c *Config) { c.Render.ThicknessPct = 30 },
		"presentation": func(c *Config) { c.Render.Presentation = "spiral" },
		"background":   func(c *Config) { c.Render.Background = "#zzz" },
		"diameter":     func(c *Config) { c.Capture.Diameter = -1 },
		"retries":      func(c *Config) { c.Catalog.Retries = 0 },
		"format":       func(c *Config) { c.Output.DefaultFormat = "bmp" },
		"quality":      func(c *Config) { c.Output.Quality = 101 },
		"upload":       func(c *Config) { c.Server.MaxUploadMB = 0 },
	}
	for name, mutate := range cases {
		cfg := Default()
		mutate(cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestBackgroundColor(t *testing.T) {
	cfg := Default()
	cfg.Render.Background = "#ffffff"
	bg, err := cfg.BackgroundColor()
	if err != nil {
		t.Fatalf("BackgroundColor failed: %v", err)
	}
	if bg == nil || *bg != (color.NRGBA{255, 255, 255, 255}) {
		t.Errorf("Expected white, got %v", bg)
	}

	cfg.Render.Background = "transparent"
	if bg, _ := cfg.BackgroundColor(); bg != nil {
		t.Errorf("Expected nil for transparent, got %v", bg)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.json")

	cfg := Default()
	cfg.Render.Presentation = "segment"
	cfg.Render.SegmentRotationDeg = 45
	cfg.Server.Addr = "127.0.0.1:9000"
	if err := cfg.SaveToFile(path); err != nil {
		t.Fatalf("SaveToFile failed: %v", err)
	}

	loaded, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if loaded.Render != cfg.Render || loaded.Server != cfg.Server {
		t.Errorf("Round trip mismatch: %+v vs %+v", loaded, cfg)
	}
}

func TestLoadKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{"render": {"size": 256}}`), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Render.Size != 256 {
		t.Errorf("Expected size 256, got %d", cfg.Render.Size)
	}
	if cfg.Output.Quality != Default().Output.Quality {
		t.Errorf("Expected default quality to survive, got %d", cfg.Output.Quality)
	}

	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Expected error for missing file")
	}
	if err := os.WriteFile(path, []byte(`{`), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFromFile(path); err == nil {
		t.Error("Expected error for broken JSON")
	}
}

func TestLoader(t *testing.T) {
	cfg := Default()
	loader, err := cfg.Loader(nil)
	if err != nil {
		t.Fatalf("Loader failed: %v", err)
	}
	if _, err := flags.LoadCatalog(context.Background(), loader, cfg.Catalog.Manifest); err != nil {
		t.Errorf("Embedded catalog through loader failed: %v", err)
	}

	dir := t.TempDir()
	manifest := `{"flags": [{"id": "mono", "colors": ["#123456"]}]}`
	if err := os.WriteFile(filepath.Join(dir, "flags.json"), []byte(manifest), 0644); err != nil {
		t.Fatal(err)
	}
	cfg.Catalog.Source = dir
	loader, err = cfg.Loader(nil)
	if err != nil {
		t.Fatalf("Loader failed: %v", err)
	}
	catalog, err := flags.LoadCatalog(context.Background(), loader, "")
	if err != nil {
		t.Fatalf("Directory catalog failed: %v", err)
	}
	if _, err := catalog.Lookup("mono"); err != nil {
		t.Errorf("Expected mono flag: %v", err)
	}

	cfg.Catalog.Source = filepath.Join(dir, "flags.json")
	if _, err := cfg.Loader(nil); err == nil {
		t.Error("Expected error for a file source")
	}
}

func TestGetConfigPath(t *testing.T) {
	if filepath.Base(GetConfigPath()) != "config.json" {
		t.Errorf("Unexpected config path %s", GetConfigPath())
	}
}
