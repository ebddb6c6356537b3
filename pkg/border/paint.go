package border

import (
	"image"
	"image/color"
	"math"
)

// paint maps normalized border coordinates to a color: u runs along the
// ring (clockwise), v runs across it from the outer edge (0) to the inner
// edge (1).
type paint interface {
	at(u, v float64) color.NRGBA
}

// radialStripes lays the stripes out as concentric bands, first stripe outermost
type radialStripes []color.NRGBA

func (s radialStripes) at(_, v float64) color.NRGBA {
	return s[index(v, len(s))]
}

// angularStripes lays the stripes out as consecutive sub-arcs
type angularStripes []color.NRGBA

func (s angularStripes) at(u, _ float64) color.NRGBA {
	return s[index(u, len(s))]
}

// polarWarp samples a flag bitmap so that its columns follow the ring and its
// rows run from the outer edge (top row) to the inner edge (bottom row).
type polarWarp struct {
	img *image.NRGBA
}

func (p polarWarp) at(u, v float64) color.NRGBA {
	b := p.img.Bounds()
	x := b.Min.X + index(u, b.Dx())
	y := b.Min.Y + index(v, b.Dy())
	i := p.img.PixOffset(x, y)
	s := p.img.Pix[i : i+4 : i+4]
	return color.NRGBA{R: s[0], G: s[1], B: s[2], A: s[3]}
}

// ringPaint picks the fill for ring and segment modes. The bitmap is
// resampled once to roughly one source pixel per output pixel along the arc.
func ringPaint(bitmap image.Image, prep func(w, h int) *image.NRGBA, stripes []color.NRGBA, outerSize int, innerR, spanDeg float64) paint {
	outerR := float64(outerSize) / 2
	if bitmap == nil {
		if spanDeg < 360 {
			return angularStripes(stripes)
		}
		return radialStripes(stripes)
	}

	w := int(math.Ceil(2 * math.Pi * outerR * spanDeg / 360))
	h := int(math.Ceil(outerR - innerR))
	return polarWarp{img: prep(w, h)}
}

// index maps t in [0,1] to a bucket in [0,n)
func index(t float64, n int) int {
	i := int(t * float64(n))
	if i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}
