package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math"
	"testing"

	"github.com/menta2k/flag-avatar/pkg/border"
	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/types"
)

func createSolidImage(width, height int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
	}
	return img
}

// stripeCompositor renders a single-color red flag without bitmaps
func stripeCompositor(t testing.TB) *Compositor {
	t.Helper()
	spec, err := flags.NewFlagSpec("red", "Red", []string{"#ff0000"}, "")
	if err != nil {
		t.Fatalf("NewFlagSpec failed: %v", err)
	}
	catalog, err := flags.NewCatalog([]flags.FlagSpec{spec})
	if err != nil {
		t.Fatalf("NewCatalog failed: %v", err)
	}
	return New(catalog, border.New(nil, nil))
}

func embeddedCompositor(t testing.TB) *Compositor {
	t.Helper()
	catalog, err := flags.LoadCatalog(context.Background(), flags.Embedded(), "")
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	cache := flags.NewBitmapCache(flags.Embedded(), nil)
	return New(catalog, border.New(cache, nil))
}

func TestRenderOutputSize(t *testing.T) {
	comp := stripeCompositor(t)
	photo := createSolidImage(300, 200, color.RGBA{0, 0, 255, 255})

	for _, mode := range types.PresentationModes() {
		for _, thickness := range []float64{5, 10, 20} {
			for _, size := range []int{64, 101} {
				out, err := comp.Render(context.Background(), photo, "red", Options{
					Size:         size,
					ThicknessPct: thickness,
					Presentation: mode,
				})
				if err != nil {
					t.Fatalf("%s/%v/%d: Render failed: %v", mode, thickness, size, err)
				}
				if out.Width != size || out.Height != size {
					t.Errorf("%s/%v/%d: got %dx%d", mode, thickness, size, out.Width, out.Height)
				}
				cfg, err := png.DecodeConfig(bytes.NewReader(out.PNG))
				if err != nil {
					t.Fatalf("%s/%v/%d: output is not a PNG: %v", mode, thickness, size, err)
				}
				if cfg.Width != size || cfg.Height != size {
					t.Errorf("%s/%v/%d: PNG is %dx%d", mode, thickness, size, cfg.Width, cfg.Height)
				}
			}
		}
	}
}

func TestRenderPalestineRing(t *testing.T) {
	comp := embeddedCompositor(t)
	gray := color.RGBA{128, 128, 128, 255}
	photo := createSolidImage(512, 512, gray)

	out, err := comp.Render(context.Background(), photo, "palestine", Options{
		Size:         512,
		ThicknessPct: 10,
		Presentation: types.Ring,
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out.PNG))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	b := img.Bounds()
	if b.Dx() != 512 || b.Dy() != 512 {
		t.Fatalf("Expected 512x512, got %v", b)
	}

	// no gaps between the photo and the ring
	for y := 0; y < 512; y++ {
		for x := 0; x < 512; x++ {
			d := math.Hypot(float64(x)+0.5-256, float64(y)+0.5-256)
			if d >= 205 {
				continue
			}
			if _, _, _, a := img.At(x, y).RGBA(); a != 0xffff {
				t.Fatalf("Pixel (%d,%d) at radius %.2f has alpha %d", x, y, d, a>>8)
			}
		}
	}

	for _, p := range []image.Point{{0, 0}, {511, 0}, {0, 511}, {511, 511}} {
		if _, _, _, a := img.At(p.X, p.Y).RGBA(); a != 0 {
			t.Errorf("Corner %v should be transparent, alpha %d", p, a>>8)
		}
	}

	if r, g, bl, _ := img.At(256, 256).RGBA(); r>>8 != 128 || g>>8 != 128 || bl>>8 != 128 {
		t.Errorf("Expected photo at center, got %d,%d,%d", r>>8, g>>8, bl>>8)
	}

	// 12 o'clock samples the hoist side of the flag, which is the red triangle
	r, g, bl, a := img.At(256, 10).RGBA()
	if a>>8 != 255 || r>>8 < 200 || g>>8 > 80 || bl>>8 > 80 {
		t.Errorf("Expected red ring at top, got %d,%d,%d,%d", r>>8, g>>8, bl>>8, a>>8)
	}
}

func TestRenderUnknownFlag(t *testing.T) {
	comp := stripeCompositor(t)
	photo := createSolidImage(10, 10, color.RGBA{0, 0, 0, 255})

	_, err := comp.Render(context.Background(), photo, "atlantis", Options{Size: 64, ThicknessPct: 10})
	var flagErr *types.FlagDataError
	if !errors.As(err, &flagErr) {
		t.Fatalf("Expected FlagDataError, got %v", err)
	}
	if flagErr.ID != "atlantis" {
		t.Errorf("Expected missing id atlantis, got %q", flagErr.ID)
	}
}

func TestRenderInvalidOptions(t *testing.T) {
	comp := stripeCompositor(t)
	photo := createSolidImage(10, 10, color.RGBA{0, 0, 0, 255})

	cases := map[string]Options{
		"thickness high": {Size: 64, ThicknessPct: 25},
		"thickness low":  {Size: 64, ThicknessPct: 4},
		"thickness nan":  {Size: 64, ThicknessPct: math.NaN()},
		"offset":         {Size: 64, ThicknessPct: 10, FlagOffsetPct: 60},
		"zero size":      {Size: 0, ThicknessPct: 10},
		"mode":           {Size: 64, ThicknessPct: 10, Presentation: "spiral"},
	}
	for name, opts := range cases {
		_, err := comp.Render(context.Background(), photo, "red", opts)
		var renderErr *types.RenderError
		if !errors.As(err, &renderErr) {
			t.Errorf("%s: expected RenderError, got %v", name, err)
		}
	}

	// options are checked before the flag
	_, err := comp.Render(context.Background(), photo, "atlantis", Options{Size: 64, ThicknessPct: 30})
	var renderErr *types.RenderError
	if !errors.As(err, &renderErr) {
		t.Errorf("Expected RenderError before flag lookup, got %v", err)
	}
}

func TestRenderNilPhoto(t *testing.T) {
	comp := stripeCompositor(t)
	_, err := comp.Render(context.Background(), nil, "red", Options{Size: 64, ThicknessPct: 10})
	var decodeErr *types.ImageDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("Expected ImageDecodeError, got %v", err)
	}
}

func TestThicknessShrinksPhoto(t *testing.T) {
	prev := math.Inf(1)
	for th := types.MinThicknessPct; th <= types.MaxThicknessPct; th += 0.5 {
		r := PhotoRadius(512, th)
		if r >= prev {
			t.Fatalf("PhotoRadius not strictly decreasing at %v: %v >= %v", th, r, prev)
		}
		prev = r
	}

	comp := stripeCompositor(t)
	photo := createSolidImage(100, 100, color.RGBA{0, 0, 255, 255})
	sample := func(th float64) color.Color {
		out, err := comp.Render(context.Background(), photo, "red", Options{Size: 200, ThicknessPct: th})
		if err != nil {
			t.Fatalf("Render failed: %v", err)
		}
		return out.Image.At(30, 100)
	}

	// radius 90 at 5%, radius 60 at 20%; x=30 sits 69.5 from the centre
	if r, _, b, _ := sample(5).RGBA(); b>>8 != 255 || r>>8 != 0 {
		t.Errorf("Expected photo at x=30 with thin border, got r=%d b=%d", r>>8, b>>8)
	}
	if r, _, b, _ := sample(20).RGBA(); r>>8 != 255 || b>>8 != 0 {
		t.Errorf("Expected border at x=30 with thick border, got r=%d b=%d", r>>8, b>>8)
	}
}

func TestRenderBackground(t *testing.T) {
	comp := stripeCompositor(t)
	photo := createSolidImage(50, 50, color.RGBA{0, 0, 255, 255})
	bg := color.NRGBA{255, 255, 255, 255}

	out, err := comp.Render(context.Background(), photo, "red", Options{Size: 100, ThicknessPct: 10, BackgroundColor: &bg})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if r, g, b, a := out.Image.At(0, 0).RGBA(); r>>8 != 255 || g>>8 != 255 || b>>8 != 255 || a>>8 != 255 {
		t.Errorf("Expected white corner, got %d,%d,%d,%d", r>>8, g>>8, b>>8, a>>8)
	}
}

func TestRenderCutoutFillsCanvas(t *testing.T) {
	comp := stripeCompositor(t)
	photo := createSolidImage(50, 50, color.RGBA{0, 0, 255, 255})

	out, err := comp.Render(context.Background(), photo, "red", Options{Size: 100, ThicknessPct: 10, Presentation: types.Cutout})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if r, _, _, a := out.Image.At(0, 0).RGBA(); r>>8 != 255 || a>>8 != 255 {
		t.Errorf("Expected flag in corner, got r=%d a=%d", r>>8, a>>8)
	}
	if r, _, b, _ := out.Image.At(50, 50).RGBA(); b>>8 != 255 || r>>8 != 0 {
		t.Errorf("Expected photo at center, got r=%d b=%d", r>>8, b>>8)
	}
}

func TestRenderDeterministic(t *testing.T) {
	comp := embeddedCompositor(t)
	photo := createSolidImage(80, 60, color.RGBA{30, 60, 90, 255})
	opts := Options{Size: 128, ThicknessPct: 12, Presentation: types.Segment, SegmentRotationDeg: 45}

	a, err := comp.Render(context.Background(), photo, "ukraine", opts)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	b, err := comp.Render(context.Background(), photo, "ukraine", opts)
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if !bytes.Equal(a.PNG, b.PNG) {
		t.Error("Expected identical output for identical input")
	}
}

func BenchmarkRender(b *testing.B) {
	comp := embeddedCompositor(b)
	photo := createSolidImage(512, 512, color.RGBA{128, 128, 128, 255})
	opts := Options{Size: 512, ThicknessPct: 10}
	for i := 0; i < b.N; i++ {
		if _, err := comp.Render(context.Background(), photo, "palestine", opts); err != nil {
			b.Fatal(err)
		}
	}
}
