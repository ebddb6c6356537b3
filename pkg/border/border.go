// Package border generates the flag fill that surrounds the circular photo.
//
// Three presentation modes are supported: a full ring, a ring segment
// covering a fixed arc, and a cutout where the whole square canvas behind the
// photo is filled with the flag. Generation is deterministic: identical
// inputs always produce identical pixels.
package border

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	"golang.org/x/image/vector"

	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// SegmentArcDeg is the angular span of the border in segment mode
const SegmentArcDeg = 120.0

// seamOverlap extends the ring fill under the photo edge so the
// anti-aliased photo boundary never shows a transparent seam.
const seamOverlap = 2.0

// BitmapProvider supplies decoded flag bitmaps by file name
type BitmapProvider interface {
	Bitmap(ctx context.Context, name string) (image.Image, error)
}

// maxStrips bounds the number of resampled flag bitmaps a Generator keeps
const maxStrips = 32

// Generator builds border patterns
type Generator struct {
	bitmaps BitmapProvider
	logger  *zap.Logger

	mu     sync.Mutex
	strips map[stripKey]*image.NRGBA
}

// stripKey identifies a flag bitmap flattened onto bg and resampled to w x h
type stripKey struct {
	name string
	w, h int
	bg   color.NRGBA
}

// New creates a Generator. bitmaps may be nil, in which case every flag is
// rendered from its stripe colors.
func New(bitmaps BitmapProvider, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{bitmaps: bitmaps, logger: logger, strips: make(map[stripKey]*image.NRGBA)}
}

// Pattern is a generated border fill
type Pattern struct {
	Image        *image.NRGBA
	Presentation types.PresentationMode
	OuterRadius  float64
	InnerRadius  float64

	// FromBitmap is false when stripe colors were used
	FromBitmap bool

	// FlagWidth and FlagLeft describe the flag placement in cutout mode
	FlagWidth int
	FlagLeft  int
}

// Generate renders the border for flag on an outerSize square canvas around
// a photo hole of diameter innerSize.
func (g *Generator) Generate(ctx context.Context, flag flags.FlagSpec, params types.BorderParameters, outerSize, innerSize int) (*Pattern, error) {
	if outerSize <= 0 {
		return nil, &types.RenderError{Reason: fmt.Sprintf("invalid canvas size %d", outerSize)}
	}
	if innerSize < 0 || innerSize >= outerSize {
		return nil, &types.RenderError{Reason: fmt.Sprintf("photo size %d does not fit canvas %d", innerSize, outerSize)}
	}
	if !params.Presentation.Valid() {
		return nil, &types.RenderError{Reason: fmt.Sprintf("unknown presentation mode %q", params.Presentation)}
	}

	stripes := flag.Stripes()
	bitmap, err := g.bitmap(ctx, flag, params.Presentation)
	if err != nil {
		return nil, err
	}
	if bitmap == nil && len(stripes) == 0 {
		return nil, &types.FlagDataError{ID: flag.ID, Op: "render", Err: fmt.Errorf("no bitmap and no stripe colors")}
	}

	pattern := &Pattern{
		Presentation: params.Presentation,
		OuterRadius:  float64(outerSize) / 2,
		InnerRadius:  float64(innerSize) / 2,
		FromBitmap:   bitmap != nil,
	}

	prep := func(w, h int) *image.NRGBA {
		return g.prepared(flag.Image, bitmap, w, h, stripes)
	}

	switch params.Presentation {
	case types.Ring:
		pattern.Image = g.ring(outerSize, pattern.InnerRadius, ringPaint(bitmap, prep, stripes, outerSize, pattern.InnerRadius, 360), nil)
	case types.Segment:
		arc := &arcSpec{start: normalizeDeg(params.SegmentRotationDeg), span: SegmentArcDeg}
		pattern.Image = g.ring(outerSize, pattern.InnerRadius, ringPaint(bitmap, prep, stripes, outerSize, pattern.InnerRadius, arc.span), arc)
	case types.Cutout:
		offset := params.FlagOffsetPct
		if !flag.Modes.Cutout.AllowOffset {
			offset = 0
		}
		pattern.Image, pattern.FlagLeft, pattern.FlagWidth = cutout(outerSize, bitmap, prep, stripes, offset)
	}

	return pattern, nil
}

// bitmap fetches the flag bitmap if the mode uses one. Fetch and decode
// failures degrade to stripes; only cancellation is returned.
func (g *Generator) bitmap(ctx context.Context, flag flags.FlagSpec, mode types.PresentationMode) (image.Image, error) {
	if g.bitmaps == nil || flag.Image == "" {
		return nil, nil
	}
	if mode != types.Cutout && flag.Modes.Ring.UseStripes {
		return nil, nil
	}

	img, err := g.bitmaps.Bitmap(ctx, flag.Image)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if len(flag.Stripes()) == 0 {
			return nil, err
		}
		g.logger.Warn("flag bitmap unavailable, using stripe colors",
			zap.String("flag", flag.ID), zap.String("image", flag.Image), zap.Error(err))
		return nil, nil
	}
	if b := img.Bounds(); b.Dx() == 0 || b.Dy() == 0 {
		return nil, nil
	}
	return img, nil
}

// prepared returns the named bitmap flattened and resampled to w x h. Results
// are shared between renders and must not be modified.
func (g *Generator) prepared(name string, bitmap image.Image, w, h int, stripes []color.NRGBA) *image.NRGBA {
	w, h = max(w, 1), max(h, 1)
	key := stripKey{name: name, w: w, h: h, bg: flatBackground(stripes)}

	g.mu.Lock()
	strip, ok := g.strips[key]
	g.mu.Unlock()
	if ok {
		return strip
	}

	strip = prepareBitmap(bitmap, w, h, stripes)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.strips == nil || len(g.strips) >= maxStrips {
		g.strips = make(map[stripKey]*image.NRGBA)
	}
	g.strips[key] = strip
	return strip
}

// arcSpec is the angular extent of a segment, in degrees clockwise from 12 o'clock
type arcSpec struct {
	start float64
	span  float64
}

// position maps an angle to [0,1] along the arc. Angles outside the arc
// snap to the nearer end, which only matters on the anti-aliased edges.
func (a *arcSpec) position(angle float64) float64 {
	delta := normalizeDeg(angle - a.start)
	if delta <= a.span {
		return delta / a.span
	}
	if delta-a.span < 360-delta {
		return 1
	}
	return 0
}

// ring fills the annulus between innerR and the canvas edge, optionally
// restricted to an arc.
func (g *Generator) ring(size int, innerR float64, p paint, arc *arcSpec) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	c := float64(size) / 2
	outerR := c
	fillInner := math.Max(0, innerR-seamOverlap)
	band := outerR - innerR

	var mask *image.Alpha
	if arc != nil {
		mask = wedgeMask(size, arc.start, arc.span)
	}

	for y := 0; y < size; y++ {
		dy := float64(y) + 0.5 - c
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - c
			d := math.Hypot(dx, dy)

			cov := edgeCoverage(outerR - d)
			if fillInner > 0 {
				cov *= edgeCoverage(d - fillInner)
			}
			if mask != nil {
				cov *= float64(mask.AlphaAt(x, y).A) / 255
			}
			if cov <= 0 {
				continue
			}

			v := (outerR - clamp(d, innerR, outerR)) / band
			angle := angleDeg(dx, dy)
			u := angle / 360
			if arc != nil {
				u = arc.position(angle)
			}

			col := p.at(u, v)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = col.R
			img.Pix[i+1] = col.G
			img.Pix[i+2] = col.B
			img.Pix[i+3] = uint8(math.Round(float64(col.A) * cov))
		}
	}
	return img
}

// wedgeMask rasterizes the pie slice of the canvas covered by an arc
func wedgeMask(size int, startDeg, spanDeg float64) *image.Alpha {
	z := vector.NewRasterizer(size, size)
	c := float32(size) / 2
	r := float64(size) // reaches past the canvas corners

	steps := int(math.Ceil(spanDeg / 3))
	if steps < 1 {
		steps = 1
	}
	z.MoveTo(c, c)
	for i := 0; i <= steps; i++ {
		a := (startDeg + spanDeg*float64(i)/float64(steps)) * math.Pi / 180
		z.LineTo(c+float32(r*math.Sin(a)), c-float32(r*math.Cos(a)))
	}
	z.ClosePath()

	mask := image.NewAlpha(image.Rect(0, 0, size, size))
	z.Draw(mask, mask.Bounds(), image.Opaque, image.Point{})
	return mask
}

// cutout fills the whole canvas with the flag, centred and shifted by
// offsetPct of its rendered width. The flag repeats horizontally so a shift
// never uncovers the canvas.
func cutout(size int, bitmap image.Image, prep func(w, h int) *image.NRGBA, stripes []color.NRGBA, offsetPct float64) (*image.NRGBA, int, int) {
	img := image.NewNRGBA(image.Rect(0, 0, size, size))
	if bitmap == nil {
		fillStripes(img, stripes)
		return img, 0, size
	}

	b := bitmap.Bounds()
	fw, fh := float64(b.Dx()), float64(b.Dy())
	rw, rh := int(math.Round(float64(size)*fw/fh)), size
	if rw < size {
		rw, rh = size, int(math.Round(float64(size)*fh/fw))
	}
	scaled := prep(rw, rh)

	left := int(math.Round(float64(size-rw)/2 + offsetPct/100*float64(rw)))
	top := (size - rh) / 2

	start := left % rw
	if start > 0 {
		start -= rw
	}
	for x0 := start; x0 < size; x0 += rw {
		blit(img, scaled, x0, top)
	}
	return img, left, rw
}

func fillStripes(img *image.NRGBA, stripes []color.NRGBA) {
	size := img.Bounds().Dy()
	n := len(stripes)
	for y := 0; y < size; y++ {
		col := stripes[y*n/size]
		for x := 0; x < img.Bounds().Dx(); x++ {
			i := img.PixOffset(x, y)
			img.Pix[i+0] = col.R
			img.Pix[i+1] = col.G
			img.Pix[i+2] = col.B
			img.Pix[i+3] = col.A
		}
	}
}

// blit copies src into dst with its top-left corner at (x0, y0), clipped to dst
func blit(dst, src *image.NRGBA, x0, y0 int) {
	db := dst.Bounds()
	sw, sh := src.Bounds().Dx(), src.Bounds().Dy()

	xa, xb := max(db.Min.X, x0), min(db.Max.X, x0+sw)
	if xa >= xb {
		return
	}
	for y := max(db.Min.Y, y0); y < min(db.Max.Y, y0+sh); y++ {
		si := src.PixOffset(src.Rect.Min.X+xa-x0, src.Rect.Min.Y+y-y0)
		di := dst.PixOffset(xa, y)
		n := (xb - xa) * 4
		copy(dst.Pix[di:di+n], src.Pix[si:si+n])
	}
}

// prepareBitmap flattens the flag onto its first stripe color (flags are
// opaque) and resamples it to w x h.
func prepareBitmap(bitmap image.Image, w, h int, stripes []color.NRGBA) *image.NRGBA {
	b := bitmap.Bounds()
	flat := imaging.Overlay(imaging.New(b.Dx(), b.Dy(), flatBackground(stripes)), bitmap, image.Pt(0, 0), 1.0)
	return imaging.Resize(flat, max(w, 1), max(h, 1), imaging.Lanczos)
}

func flatBackground(stripes []color.NRGBA) color.NRGBA {
	if len(stripes) > 0 {
		return stripes[0]
	}
	return color.NRGBA{255, 255, 255, 255}
}

func edgeCoverage(t float64) float64 {
	return clamp(t+0.5, 0, 1)
}

// angleDeg returns the clockwise angle from 12 o'clock in [0, 360)
func angleDeg(dx, dy float64) float64 {
	return normalizeDeg(math.Atan2(dx, -dy) * 180 / math.Pi)
}

func normalizeDeg(d float64) float64 {
	r := math.Mod(d, 360)
	if r < 0 {
		r += 360
	}
	return r
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
