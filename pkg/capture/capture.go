// Package capture rasterizes the part of a photo that is visible inside the
// avatar circle into a fixed-size square bitmap.
package capture

import (
	"context"
	"fmt"
	"image"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/menta2k/flag-avatar/pkg/position"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// DefaultOutputSize is used when a request does not name one
const DefaultOutputSize = 1024

// Service captures the visible crop of a photo
type Service struct {
	filter imaging.ResampleFilter
	logger *zap.Logger
}

// Config holds configuration for capturing
type Config struct {
	Filter imaging.ResampleFilter
	Logger *zap.Logger
}

// New creates a Service with Lanczos resampling
func New() *Service {
	return NewWithConfig(Config{Filter: imaging.Lanczos})
}

// NewWithConfig creates a Service with custom configuration
func NewWithConfig(cfg Config) *Service {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Filter.Support == 0 && cfg.Filter.Kernel == nil {
		cfg.Filter = imaging.Lanczos
	}
	return &Service{filter: cfg.Filter, logger: cfg.Logger}
}

// Request describes what to capture
type Request struct {
	Position position.ImagePosition
	// Diameter of the on-screen circle the position was chosen against
	Diameter float64
	// Dimensions of the photo the position refers to; zero means the photo's bounds
	Dimensions position.ImageDimensions
	// OutputSize of the square result in pixels, independent of Diameter
	OutputSize int
}

// Result contains a captured bitmap
type Result struct {
	Image    image.Image
	Rect     position.Rect
	Position position.ImagePosition

	// Fallback is set when the crop could not be produced and Image is the
	// unmodified photo
	Fallback bool
}

// Capture crops the visible region of photo and resamples it to a square of
// OutputSize pixels. When the region cannot be materialized the original
// photo is returned with Fallback set.
func (s *Service) Capture(ctx context.Context, photo image.Image, req Request) (Result, error) {
	if photo == nil {
		return Result{}, &types.ImageDecodeError{Source: "photo", Err: fmt.Errorf("no photo")}
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	bounds := photo.Bounds()
	dims := req.Dimensions
	if dims.Empty() {
		dims = position.DimensionsOf(photo)
	}
	size := req.OutputSize
	if size <= 0 {
		size = DefaultOutputSize
	}

	limits := position.ComputeLimits(dims, req.Diameter, req.Position.Zoom)
	pos := position.Clamp(req.Position, limits)
	rect := position.ToCropRect(pos, limits, dims, req.Diameter)

	// the position may refer to the natural size of a photo decoded smaller
	scaled := rect.Scaled(
		float64(bounds.Dx())/float64(max(dims.Width, 1)),
		float64(bounds.Dy())/float64(max(dims.Height, 1)),
	)
	region := scaled.Image().Add(bounds.Min).Intersect(bounds)
	if region.Empty() {
		s.logger.Warn("crop region empty, using original photo",
			zap.Any("rect", rect), zap.Stringer("bounds", bounds))
		return Result{Image: photo, Rect: rect, Position: pos, Fallback: true}, nil
	}

	cropped := imaging.Crop(photo, region)
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	out := imaging.Resize(cropped, size, size, s.filter)
	if out.Bounds().Dx() != size || out.Bounds().Dy() != size {
		s.logger.Warn("resample failed, using original photo",
			zap.Stringer("region", region), zap.Int("size", size))
		return Result{Image: photo, Rect: rect, Position: pos, Fallback: true}, nil
	}

	s.logger.Debug("photo captured",
		zap.Stringer("region", region), zap.Int("size", size),
		zap.Float64("x", pos.X), zap.Float64("y", pos.Y), zap.Float64("zoom", pos.Zoom))

	return Result{Image: out, Rect: rect, Position: pos}, nil
}

// CaptureCached returns the cached capture when the request matches it and
// captures (and caches) otherwise.
func (s *Service) CaptureCached(ctx context.Context, cache *Cache, photo image.Image, req Request) (Result, error) {
	if res, ok := cache.Get(req); ok {
		return res, nil
	}
	res, err := s.Capture(ctx, photo, req)
	if err != nil {
		return Result{}, err
	}
	cache.Put(req, res)
	return res, nil
}

// Cache holds the most recent capture. It stays valid only while the
// position (X, Y, Zoom) and the output geometry are unchanged; replacing the
// photo requires Invalidate.
type Cache struct {
	mu    sync.Mutex
	req   Request
	res   Result
	valid bool
}

// Get returns the cached result for req
func (c *Cache) Get(req Request) (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid || c.req != req {
		return Result{}, false
	}
	return c.res, true
}

// Put stores res as the capture for req, replacing any previous one
func (c *Cache) Put(req Request, res Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req, c.res, c.valid = req, res, true
}

// Invalidate drops the cached capture
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.req, c.res, c.valid = Request{}, Result{}, false
}
