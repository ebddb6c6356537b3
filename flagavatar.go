// Package flagavatar renders circular profile pictures framed by a national
// flag.
//
// A render takes a photo, the pan/zoom position the user chose for it inside
// a circle, a flag from the catalog and the border parameters, and produces a
// square PNG:
//
//	engine, err := flagavatar.NewDefault(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	out, err := engine.Render(ctx, flagavatar.Request{
//		Photo:          photo,
//		FlagID:         "palestine",
//		Position:       position.ImagePosition{X: 0, Y: 0, Zoom: 25},
//		CircleDiameter: 300,
//		Border:         types.DefaultBorderParameters(),
//		Size:           512,
//	})
//
// The package wires together the components that do the work:
//
//  1. Position (pkg/position): pan/zoom math and crop rectangles
//  2. Capture (pkg/capture): crops the visible part of the photo
//  3. Flags (pkg/flags): flag catalog, asset loading and the bitmap cache
//  4. Border (pkg/border): ring, segment and cutout border patterns
//  5. Compositor (pkg/compositor): merges photo, border and background
//  6. Preview (pkg/preview): generation-tracked interactive previews
package flagavatar

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"go.uber.org/zap"

	"github.com/menta2k/flag-avatar/pkg/border"
	"github.com/menta2k/flag-avatar/pkg/capture"
	"github.com/menta2k/flag-avatar/pkg/compositor"
	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/position"
	"github.com/menta2k/flag-avatar/pkg/preview"
	"github.com/menta2k/flag-avatar/pkg/processing"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// Version of the flag avatar library
const Version = "1.0.0"

// DefaultSize is the output size used when a request does not set one
const DefaultSize = 1024

// Config holds engine configuration
type Config struct {
	// Loader supplies the manifest and flag assets; nil means the embedded catalog
	Loader   flags.Loader
	Manifest string
	Logger   *zap.Logger
}

// Engine renders flag avatars
type Engine struct {
	catalog    *flags.Catalog
	bitmaps    *flags.BitmapCache
	capture    *capture.Service
	generator  *border.Generator
	compositor *compositor.Compositor
	processor  *processing.Processor
	logger     *zap.Logger
}

// NewDefault creates an Engine backed by the embedded flag catalog
func NewDefault(ctx context.Context) (*Engine, error) {
	return Load(ctx, Config{})
}

// Load reads the flag catalog from cfg.Loader and creates an Engine
func Load(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Loader == nil {
		cfg.Loader = flags.Embedded()
	}
	catalog, err := flags.LoadCatalog(ctx, cfg.Loader, cfg.Manifest)
	if err != nil {
		return nil, fmt.Errorf("failed to load flag catalog: %w", err)
	}
	return New(catalog, cfg.Loader, cfg.Logger), nil
}

// New creates an Engine for an already loaded catalog. Flag assets are
// fetched through loader.
func New(catalog *flags.Catalog, loader flags.Loader, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	processor := processing.NewProcessor().WithLogger(logger)
	bitmaps := flags.NewBitmapCache(loader, logger.Named("bitmaps"))
	generator := border.New(bitmaps, logger.Named("border"))

	return &Engine{
		catalog:   catalog,
		bitmaps:   bitmaps,
		capture:   capture.NewWithConfig(capture.Config{Logger: logger.Named("capture")}),
		generator: generator,
		compositor: compositor.NewWithConfig(catalog, generator, compositor.Config{
			Processor: processor,
			Logger:    logger.Named("compositor"),
		}),
		processor: processor,
		logger:    logger,
	}
}

// Request describes one avatar render
type Request struct {
	Photo  image.Image
	FlagID string

	// Position is the pan/zoom the user chose in a circle of CircleDiameter
	// display pixels. A zero diameter means the output size.
	Position       position.ImagePosition
	CircleDiameter float64
	// Dimensions are the photo's natural size when it was decoded scaled down
	Dimensions position.ImageDimensions

	Border     types.BorderParameters
	Size       int
	Background *color.NRGBA
}

func (r Request) withDefaults() Request {
	if r.Size == 0 {
		r.Size = DefaultSize
	}
	if r.CircleDiameter <= 0 {
		r.CircleDiameter = float64(r.Size)
	}
	if r.Border.Presentation == "" {
		r.Border.Presentation = types.Ring
	}
	return r
}

func (r Request) options() compositor.Options {
	return compositor.Options{
		Size:               r.Size,
		ThicknessPct:       r.Border.ThicknessPct,
		FlagOffsetPct:      r.Border.FlagOffsetPct,
		Presentation:       r.Border.Presentation,
		SegmentRotationDeg: r.Border.SegmentRotationDeg,
		BackgroundColor:    r.Background,
	}
}

// captureRequest captures at the resolution the photo circle is drawn at
func (r Request) captureRequest() capture.Request {
	inner := 2 * compositor.PhotoRadius(r.Size, r.Border.ThicknessPct)
	return capture.Request{
		Position:   r.Position,
		Diameter:   r.CircleDiameter,
		Dimensions: r.Dimensions,
		OutputSize: max(1, int(math.Ceil(inner))),
	}
}

// Render produces the avatar for req
func (e *Engine) Render(ctx context.Context, req Request) (*types.RenderOutput, error) {
	return e.render(ctx, req, nil)
}

func (e *Engine) render(ctx context.Context, req Request, cache *capture.Cache) (*types.RenderOutput, error) {
	req = req.withDefaults()
	if req.Size <= 0 {
		return nil, &types.RenderError{Reason: fmt.Sprintf("invalid output size %d", req.Size)}
	}
	if err := req.Border.Validate(); err != nil {
		return nil, err
	}
	if _, err := e.catalog.Lookup(req.FlagID); err != nil {
		return nil, err
	}

	var (
		shot capture.Result
		err  error
	)
	if cache != nil {
		shot, err = e.capture.CaptureCached(ctx, cache, req.Photo, req.captureRequest())
	} else {
		shot, err = e.capture.Capture(ctx, req.Photo, req.captureRequest())
	}
	if err != nil {
		return nil, err
	}

	return e.compositor.Render(ctx, shot.Image, req.FlagID, req.options())
}

// CropRect returns the region of the photo that req shows inside the circle
func (e *Engine) CropRect(req Request) position.Rect {
	req = req.withDefaults()
	dims := req.Dimensions
	if dims.Empty() && req.Photo != nil {
		dims = position.DimensionsOf(req.Photo)
	}
	limits := position.ComputeLimits(dims, req.CircleDiameter, req.Position.Zoom)
	return position.ToCropRect(req.Position, limits, dims, req.CircleDiameter)
}

// Limits returns the legal pan range for a photo at the given zoom
func (e *Engine) Limits(dims position.ImageDimensions, diameter, zoom float64) position.PositionLimits {
	return position.ComputeLimits(dims, diameter, zoom)
}

// Flags lists the catalog in manifest order
func (e *Engine) Flags() []flags.FlagSpec {
	return e.catalog.List()
}

// Catalog returns the flag catalog
func (e *Engine) Catalog() *flags.Catalog {
	return e.catalog
}

// Processor returns the image processor used for decoding and encoding
func (e *Engine) Processor() *processing.Processor {
	return e.processor
}

// Preload decodes every flag bitmap up front
func (e *Engine) Preload(ctx context.Context) error {
	return e.catalog.Preload(ctx, e.bitmaps)
}

// Preview is an interactive editing session for one photo
type Preview struct {
	engine  *Engine
	session *preview.Session

	mu       sync.Mutex
	photo    image.Image
	captures *capture.Cache
}

// NewSession starts a preview session
func (e *Engine) NewSession() *Preview {
	return &Preview{
		engine:   e,
		session:  preview.NewSession(e.logger.Named("preview")),
		captures: &capture.Cache{},
	}
}

// SetPhoto replaces the photo being edited
func (p *Preview) SetPhoto(img image.Image) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.photo = img
	// jobs still running keep writing to the old cache
	p.captures = &capture.Cache{}
}

// Update schedules a render of the current photo with req's parameters and
// returns its generation. req.Photo, when set, replaces the session photo.
func (p *Preview) Update(ctx context.Context, req Request) uint64 {
	if req.Photo != nil {
		p.SetPhoto(req.Photo)
	}
	p.mu.Lock()
	req.Photo = p.photo
	cache := p.captures
	p.mu.Unlock()

	return p.session.Submit(ctx, func(ctx context.Context) (*types.RenderOutput, error) {
		return p.engine.render(ctx, req, cache)
	})
}

// OnApply registers a callback for every preview that becomes visible
func (p *Preview) OnApply(fn func(preview.State)) {
	p.session.OnApply(fn)
}

// State returns what the preview currently shows
func (p *Preview) State() preview.State {
	return p.session.State()
}

// Wait blocks until all scheduled renders have finished
func (p *Preview) Wait() {
	p.session.Wait()
}

// Close stops the session. Renders still running finish in the background;
// use Wait to block for them.
func (p *Preview) Close() {
	p.session.Close()
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
