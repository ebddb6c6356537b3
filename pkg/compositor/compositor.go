// Package compositor merges the captured photo, the flag border and an
// optional background into the final square avatar.
package compositor

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/menta2k/flag-avatar/pkg/border"
	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/processing"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// FlagLookup resolves flag ids
type FlagLookup interface {
	Lookup(id string) (flags.FlagSpec, error)
}

// Options describes one render
type Options struct {
	// Size is the width and height of the output in pixels
	Size               int
	ThicknessPct       float64
	FlagOffsetPct      float64
	Presentation       types.PresentationMode
	SegmentRotationDeg float64

	// BackgroundColor is painted under everything when set
	BackgroundColor *color.NRGBA
}

// BorderParameters returns the border part of the options
func (o Options) BorderParameters() types.BorderParameters {
	mode := o.Presentation
	if mode == "" {
		mode = types.Ring
	}
	return types.BorderParameters{
		ThicknessPct:       o.ThicknessPct,
		Presentation:       mode,
		FlagOffsetPct:      o.FlagOffsetPct,
		SegmentRotationDeg: o.SegmentRotationDeg,
	}
}

// Config holds the compositor collaborators
type Config struct {
	Processor *processing.Processor
	Logger    *zap.Logger
}

// Compositor renders avatars
type Compositor struct {
	lookup    FlagLookup
	generator *border.Generator
	processor *processing.Processor
	logger    *zap.Logger
}

// New creates a Compositor with default configuration
func New(lookup FlagLookup, generator *border.Generator) *Compositor {
	return NewWithConfig(lookup, generator, Config{})
}

// NewWithConfig creates a Compositor with custom configuration
func NewWithConfig(lookup FlagLookup, generator *border.Generator, cfg Config) *Compositor {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Processor == nil {
		cfg.Processor = processing.NewProcessor().WithLogger(cfg.Logger)
	}
	if generator == nil {
		generator = border.New(nil, cfg.Logger)
	}
	return &Compositor{
		lookup:    lookup,
		generator: generator,
		processor: cfg.Processor,
		logger:    cfg.Logger,
	}
}

// PhotoRadius returns the radius of the photo circle inside an avatar of
// the given size and border thickness.
func PhotoRadius(size int, thicknessPct float64) float64 {
	return float64(size) * (1 - 2*thicknessPct/100) / 2
}

// Render produces the avatar for photo framed by flagID.
func (c *Compositor) Render(ctx context.Context, photo image.Image, flagID string, opts Options) (*types.RenderOutput, error) {
	start := time.Now()

	if opts.Size <= 0 {
		return nil, &types.RenderError{Reason: fmt.Sprintf("invalid output size %d", opts.Size)}
	}
	params := opts.BorderParameters()
	if err := params.Validate(); err != nil {
		return nil, err
	}

	if c.lookup == nil {
		return nil, &types.FlagDataError{ID: flagID, Err: fmt.Errorf("no flag catalog")}
	}
	flag, err := c.lookup.Lookup(flagID)
	if err != nil {
		return nil, err
	}

	if photo == nil || photo.Bounds().Empty() {
		return nil, &types.ImageDecodeError{Source: "photo", Err: fmt.Errorf("no photo data")}
	}

	size := opts.Size
	innerR := PhotoRadius(size, params.ThicknessPct)
	innerSize := min(max(int(math.Round(2*innerR)), 0), size-1)

	pattern, err := c.generator.Generate(ctx, flag, params, size, innerSize)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	canvas := image.NewRGBA(image.Rect(0, 0, size, size))
	if opts.BackgroundColor != nil {
		draw.Draw(canvas, canvas.Bounds(), image.NewUniform(*opts.BackgroundColor), image.Point{}, draw.Src)
	}
	draw.Draw(canvas, canvas.Bounds(), pattern.Image, image.Point{}, draw.Over)
	placePhoto(canvas, photo, innerR)

	data, err := c.processor.EncodePNG(canvas)
	if err != nil {
		return nil, &types.RenderError{Reason: "encode", Err: err}
	}

	c.logger.Debug("avatar rendered",
		zap.String("flag", flag.ID),
		zap.String("mode", string(params.Presentation)),
		zap.Int("size", size),
		zap.Float64("thickness", params.ThicknessPct),
		zap.Bool("flag_bitmap", pattern.FromBitmap),
		zap.Duration("took", time.Since(start)))

	return &types.RenderOutput{PNG: data, Width: size, Height: size, Image: canvas}, nil
}

// placePhoto scales photo to cover the circle of radius r centred on the
// canvas and draws it clipped to that circle with an anti-aliased edge.
func placePhoto(canvas *image.RGBA, photo image.Image, r float64) {
	if r <= 0 {
		return
	}
	c := float64(canvas.Bounds().Dx()) / 2
	x0, x1 := int(math.Floor(c-r)), int(math.Ceil(c+r))
	side := x1 - x0
	if side <= 0 {
		return
	}

	filled := imaging.Fill(photo, side, side, imaging.Center, imaging.Lanczos)
	for y := 0; y < side; y++ {
		dy := float64(x0+y) + 0.5 - c
		for x := 0; x < side; x++ {
			dx := float64(x0+x) + 0.5 - c
			cov := math.Min(1, math.Max(0, r-math.Hypot(dx, dy)+0.5))
			if cov >= 1 {
				continue
			}
			i := filled.PixOffset(x, y) + 3
			filled.Pix[i] = uint8(math.Round(float64(filled.Pix[i]) * cov))
		}
	}

	dst := image.Rect(x0, x0, x1, x1)
	draw.Draw(canvas, dst, filled, image.Point{}, draw.Over)
}
