// Package position maps a pannable, zoomable photo onto a fixed circle.
//
// Pan offsets are percentages of the pan range the photo would have at
// ReferenceZoom, so a given percentage always means the same display offset
// whatever the current zoom is. Only the legal range (PositionLimits) grows
// and shrinks with zoom.
package position

import (
	"image"
	"math"
)

// Position ranges
const (
	MinPan  = -50.0
	MaxPan  = 50.0
	MinZoom = 0.0
	MaxZoom = 200.0

	// ReferenceZoom is the zoom level pan percentages are defined against
	ReferenceZoom = MaxZoom
)

// ImagePosition is the pan/zoom state of the photo inside the circle
type ImagePosition struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// ImageDimensions is the natural pixel size of the source photo
type ImageDimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DimensionsOf returns the dimensions of img
func DimensionsOf(img image.Image) ImageDimensions {
	b := img.Bounds()
	return ImageDimensions{Width: b.Dx(), Height: b.Dy()}
}

// Empty reports whether the dimensions have no area
func (d ImageDimensions) Empty() bool {
	return d.Width <= 0 || d.Height <= 0
}

// PositionLimits is the legal pan range in percent
type PositionLimits struct {
	MinX float64 `json:"min_x"`
	MaxX float64 `json:"max_x"`
	MinY float64 `json:"min_y"`
	MaxY float64 `json:"max_y"`
}

// Rect is a rectangle in source-photo pixel space
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the rectangle has no area
func (r Rect) Empty() bool {
	return !(r.Width > 0 && r.Height > 0)
}

// Image rounds the rectangle to integer pixel coordinates
func (r Rect) Image() image.Rectangle {
	if r.Empty() {
		return image.Rectangle{}
	}
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
}

// Scaled maps the rectangle from one pixel space into another
func (r Rect) Scaled(sx, sy float64) Rect {
	return Rect{X: r.X * sx, Y: r.Y * sy, Width: r.Width * sx, Height: r.Height * sy}
}

// Scale returns the display scale of the photo at the given zoom. At zoom 0
// the photo exactly covers the circle.
func Scale(dims ImageDimensions, diameter, zoom float64) float64 {
	if dims.Empty() || !(diameter > 0) {
		return 0
	}
	short := math.Min(float64(dims.Width), float64(dims.Height))
	return diameter / short * (1 + clampZoom(zoom)/100)
}

// slack returns how far, in display pixels, the photo centre may move away
// from the circle centre along each axis.
//
// Computed from the aspect ratios rather than the scale so the short axis
// comes out exactly zero at zoom 0.
func slack(dims ImageDimensions, diameter, zoom float64) (float64, float64) {
	if dims.Empty() || !(diameter > 0) {
		return 0, 0
	}
	short := math.Min(float64(dims.Width), float64(dims.Height))
	k := 1 + clampZoom(zoom)/100
	sx := math.Max(0, diameter*(float64(dims.Width)/short*k-1)/2)
	sy := math.Max(0, diameter*(float64(dims.Height)/short*k-1)/2)
	return sx, sy
}

// ComputeLimits returns the legal pan range for a photo of the given size in
// a circle of the given diameter at the given zoom.
func ComputeLimits(dims ImageDimensions, diameter, zoom float64) PositionLimits {
	sx, sy := slack(dims, diameter, zoom)
	rx, ry := slack(dims, diameter, ReferenceZoom)

	maxX := ratio(sx, rx) * MaxPan
	maxY := ratio(sy, ry) * MaxPan
	return PositionLimits{MinX: -maxX, MaxX: maxX, MinY: -maxY, MaxY: maxY}
}

// Clamp clips X and Y into limits and Zoom into [MinZoom, MaxZoom].
func Clamp(pos ImagePosition, limits PositionLimits) ImagePosition {
	return ImagePosition{
		X:    clampRange(pos.X, limits.MinX, limits.MaxX),
		Y:    clampRange(pos.Y, limits.MinY, limits.MaxY),
		Zoom: clampZoom(pos.Zoom),
	}
}

// Offset returns the displacement of the photo centre from the circle
// centre in display pixels.
func Offset(pos ImagePosition, dims ImageDimensions, diameter float64) (float64, float64) {
	rx, ry := slack(dims, diameter, ReferenceZoom)
	return pos.X / MaxPan * rx, pos.Y / MaxPan * ry
}

// ToCropRect returns the square region of the source photo that is visible
// inside the circle. The position is clamped into limits first.
func ToCropRect(pos ImagePosition, limits PositionLimits, dims ImageDimensions, diameter float64) Rect {
	p := Clamp(pos, limits)
	s := Scale(dims, diameter, p.Zoom)
	if s == 0 {
		return Rect{}
	}

	offX, offY := Offset(p, dims, diameter)
	side := diameter / s
	cx := float64(dims.Width)/2 - offX/s
	cy := float64(dims.Height)/2 - offY/s

	return Rect{X: cx - side/2, Y: cy - side/2, Width: side, Height: side}
}

// FromCropRect is the inverse of ToCropRect: it recovers the position that
// makes rect the visible region.
func FromCropRect(rect Rect, dims ImageDimensions, diameter float64) ImagePosition {
	base := Scale(dims, diameter, 0)
	if base == 0 || rect.Empty() {
		return ImagePosition{}
	}

	s := diameter / rect.Width
	zoom := (s/base - 1) * 100

	rx, ry := slack(dims, diameter, ReferenceZoom)
	offX := (float64(dims.Width)/2 - (rect.X + rect.Width/2)) * s
	offY := (float64(dims.Height)/2 - (rect.Y + rect.Height/2)) * s

	return ImagePosition{
		X:    ratio(offX, rx) * MaxPan,
		Y:    ratio(offY, ry) * MaxPan,
		Zoom: zoom,
	}
}

func ratio(num, den float64) float64 {
	if den == 0 || math.IsNaN(num) || math.IsNaN(den) {
		return 0
	}
	return num / den
}

func clampZoom(z float64) float64 {
	return clampRange(z, MinZoom, MaxZoom)
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		v = 0
	}
	if lo > hi {
		lo, hi = hi, lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
