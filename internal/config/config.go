package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// Config holds the application configuration
type Config struct {
	Render  RenderConfig  `json:"render"`
	Capture CaptureConfig `json:"capture"`
	Catalog CatalogConfig `json:"catalog"`
	Output  OutputConfig  `json:"output"`
	Server  ServerConfig  `json:"server"`
}

// RenderConfig holds the default border and output size
type RenderConfig struct {
	Size               int     `json:"size"`
	ThicknessPct       float64 `json:"thickness_pct"`
	Presentation       string  `json:"presentation"`
	FlagOffsetPct      float64 `json:"flag_offset_pct"`
	SegmentRotationDeg float64 `json:"segment_rotation_deg"`
	Background         string  `json:"background"`
}

// CaptureConfig holds configuration for photo capture
type CaptureConfig struct {
	// Diameter of the editing circle positions are expressed against; 0 means the output size
	Diameter float64 `json:"diameter"`
}

// CatalogConfig says where flags come from
type CatalogConfig struct {
	// Source is a directory or an http(s) base URL; empty means the built-in catalog
	Source    string `json:"source"`
	Manifest  string `json:"manifest"`
	Retries   int    `json:"retries"`
	BackoffMS int    `json:"backoff_ms"`
	Preload   bool   `json:"preload"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
}

// ServerConfig holds configuration for the preview server
type ServerConfig struct {
	Addr        string `json:"addr"`
	MaxUploadMB int    `json:"max_upload_mb"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Render: RenderConfig{
			Size:         1024,
			ThicknessPct: 10,
			Presentation: string(types.Ring),
		},
		Catalog: CatalogConfig{
			Manifest:  flags.DefaultManifest,
			Retries:   3,
			BackoffMS: 200,
		},
		Output: OutputConfig{
			DefaultFormat: "png",
			OutputDir:     "./output",
			Prefix:        "",
			Suffix:        "_avatar",
			Quality:       92,
		},
		Server: ServerConfig{
			Addr:        ":8080",
			MaxUploadMB: 16,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Fields missing from
// the file keep their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Render.Size < 1 {
		return fmt.Errorf("render.size must be positive")
	}

	if _, err := c.BorderParameters(); err != nil {
		return fmt.Errorf("render: %w", err)
	}

	if _, err := c.BackgroundColor(); err != nil {
		return fmt.Errorf("render.background: %w", err)
	}

	if c.Capture.Diameter < 0 {
		return fmt.Errorf("capture.diameter cannot be negative")
	}

	if c.Catalog.Retries < 1 {
		return fmt.Errorf("catalog.retries must be at least 1")
	}

	if c.Catalog.BackoffMS < 0 {
		return fmt.Errorf("catalog.backoff_ms cannot be negative")
	}

	switch strings.ToLower(c.Output.DefaultFormat) {
	case "png", "jpg", "jpeg", "webp":
	default:
		return fmt.Errorf("output.default_format must be png, jpg or webp")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Server.MaxUploadMB < 1 {
		return fmt.Errorf("server.max_upload_mb must be positive")
	}

	return nil
}

// BorderParameters returns the default border described by the render section
func (c *Config) BorderParameters() (types.BorderParameters, error) {
	mode, err := types.ParsePresentationMode(c.Render.Presentation)
	if err != nil {
		return types.BorderParameters{}, err
	}
	p := types.BorderParameters{
		ThicknessPct:       c.Render.ThicknessPct,
		Presentation:       mode,
		FlagOffsetPct:      c.Render.FlagOffsetPct,
		SegmentRotationDeg: c.Render.SegmentRotationDeg,
	}
	if err := p.Validate(); err != nil {
		return types.BorderParameters{}, err
	}
	return p, nil
}

// BackgroundColor parses render.background; nil means transparent
func (c *Config) BackgroundColor() (*color.NRGBA, error) {
	bg := strings.TrimSpace(c.Render.Background)
	if bg == "" || strings.EqualFold(bg, "transparent") {
		return nil, nil
	}
	col, err := flags.ParseColor(bg)
	if err != nil {
		return nil, err
	}
	return &col, nil
}

// Loader builds the flag asset loader for the catalog section, with retries
func (c *Config) Loader(logger *zap.Logger) (flags.Loader, error) {
	var base flags.Loader
	src := strings.TrimSpace(c.Catalog.Source)
	switch {
	case src == "":
		base = flags.Embedded()
	case strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://"):
		l, err := flags.NewHTTPLoader(src)
		if err != nil {
			return nil, err
		}
		base = l
	default:
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("catalog source: %w", err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("catalog source %s is not a directory", src)
		}
		base = flags.FSLoader{FS: os.DirFS(src)}
	}
	retry := flags.NewRetryLoader(base, c.Catalog.Retries, time.Duration(c.Catalog.BackoffMS)*time.Millisecond)
	if logger != nil {
		retry.Logger = logger
	}
	return retry, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "flag-avatar", "config.json")
}
