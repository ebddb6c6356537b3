// Package flags holds the static flag catalog, the loaders that fetch flag
// assets and the cache of decoded flag bitmaps.
package flags

import (
	"context"
	"encoding/json"
	"fmt"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/menta2k/flag-avatar/pkg/types"
)

// DefaultManifest is the manifest file name inside a catalog source
const DefaultManifest = "flags.json"

// FlagSpec describes one flag of the catalog
type FlagSpec struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Colors []string   `json:"colors"`
	Image  string     `json:"image,omitempty"`
	Modes  ModeConfig `json:"modes"`

	stripes []color.NRGBA
}

// ModeConfig holds per presentation mode settings
type ModeConfig struct {
	Ring   RingConfig   `json:"ring"`
	Cutout CutoutConfig `json:"cutout"`
}

// RingConfig configures ring and segment rendering
type RingConfig struct {
	// UseStripes renders stripe colors even when a bitmap is available
	UseStripes bool `json:"use_stripes"`
}

// CutoutConfig configures cutout rendering
type CutoutConfig struct {
	DefaultOffsetPct float64 `json:"default_offset_pct"`
	// AllowOffset is false for symmetric designs where shifting is meaningless
	AllowOffset bool `json:"allow_offset"`
}

// Stripes returns the parsed stripe colors in order
func (f FlagSpec) Stripes() []color.NRGBA {
	if f.stripes != nil {
		return f.stripes
	}
	out, _ := parseColors(f.Colors)
	return out
}

// DefaultOffset returns the cutout offset to use when the user picked none
func (f FlagSpec) DefaultOffset() float64 {
	if !f.Modes.Cutout.AllowOffset {
		return 0
	}
	return f.Modes.Cutout.DefaultOffsetPct
}

// NewFlagSpec builds a validated FlagSpec for callers that do not load a manifest
func NewFlagSpec(id, name string, colors []string, image string) (FlagSpec, error) {
	spec := FlagSpec{ID: id, Name: name, Colors: colors, Image: image}
	spec.Modes.Cutout.AllowOffset = true
	if err := spec.prepare(); err != nil {
		return FlagSpec{}, err
	}
	return spec, nil
}

func (f *FlagSpec) prepare() error {
	if strings.TrimSpace(f.ID) == "" {
		return fmt.Errorf("flag without id")
	}
	if len(f.Colors) == 0 && f.Image == "" {
		return fmt.Errorf("flag %q has neither colors nor image", f.ID)
	}
	if d := f.Modes.Cutout.DefaultOffsetPct; !(d >= types.MinOffsetPct && d <= types.MaxOffsetPct) {
		return fmt.Errorf("flag %q: default cutout offset %v out of range", f.ID, d)
	}
	stripes, err := parseColors(f.Colors)
	if err != nil {
		return fmt.Errorf("flag %q: %w", f.ID, err)
	}
	f.stripes = stripes
	return nil
}

// Manifest is the on-disk catalog format
type Manifest struct {
	Flags []FlagSpec `json:"flags"`
}

// Catalog is the read-only set of flags, addressable by id
type Catalog struct {
	byID  map[string]FlagSpec
	order []string
}

// NewCatalog builds a catalog from already loaded specs
func NewCatalog(specs []FlagSpec) (*Catalog, error) {
	c := &Catalog{byID: make(map[string]FlagSpec, len(specs))}
	for _, spec := range specs {
		if err := spec.prepare(); err != nil {
			return nil, &types.FlagDataError{Op: "load", Err: err}
		}
		if _, dup := c.byID[spec.ID]; dup {
			return nil, &types.FlagDataError{Op: "load", ID: spec.ID, Err: fmt.Errorf("duplicate flag id")}
		}
		c.byID[spec.ID] = spec
		c.order = append(c.order, spec.ID)
	}
	return c, nil
}

// LoadCatalog fetches and parses the manifest from loader
func LoadCatalog(ctx context.Context, loader Loader, manifest string) (*Catalog, error) {
	if manifest == "" {
		manifest = DefaultManifest
	}
	data, err := loader.Fetch(ctx, manifest)
	if err != nil {
		return nil, &types.FlagDataError{Op: "load", Err: fmt.Errorf("fetch %s: %w", manifest, err)}
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, &types.FlagDataError{Op: "load", Err: fmt.Errorf("parse %s: %w", manifest, err)}
	}
	if len(m.Flags) == 0 {
		return nil, &types.FlagDataError{Op: "load", Err: fmt.Errorf("%s lists no flags", manifest)}
	}
	return NewCatalog(m.Flags)
}

// Lookup returns the flag with the given id
func (c *Catalog) Lookup(id string) (FlagSpec, error) {
	spec, ok := c.byID[id]
	if !ok {
		return FlagSpec{}, &types.FlagDataError{ID: id}
	}
	return spec, nil
}

// List returns all flags in manifest order
func (c *Catalog) List() []FlagSpec {
	out := make([]FlagSpec, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.byID[id])
	}
	return out
}

// IDs returns the sorted flag ids
func (c *Catalog) IDs() []string {
	ids := append([]string(nil), c.order...)
	sort.Strings(ids)
	return ids
}

// Len returns the number of flags
func (c *Catalog) Len() int { return len(c.order) }

// Preload decodes every flag bitmap into cache concurrently
func (c *Catalog) Preload(ctx context.Context, cache *BitmapCache) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, spec := range c.List() {
		if spec.Image == "" {
			continue
		}
		name := spec.Image
		g.Go(func() error {
			_, err := cache.Bitmap(ctx, name)
			return err
		})
	}
	return g.Wait()
}

// ParseColor parses #RGB or #RRGGBB (leading # optional)
func ParseColor(s string) (color.NRGBA, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q", s)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func parseColors(in []string) ([]color.NRGBA, error) {
	out := make([]color.NRGBA, 0, len(in))
	for _, s := range in {
		c, err := ParseColor(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
