package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/flag-avatar/pkg/position"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// MaxDownloadSize bounds photos fetched over HTTP
const MaxDownloadSize = 32 << 20

// Processor handles image decoding and encoding
type Processor struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{
		client:    &http.Client{Timeout: 30 * time.Second},
		userAgent: "Flag-Avatar/1.0",
		logger:    zap.NewNop(),
	}
}

// WithLogger returns a copy of the processor that logs to l
func (p *Processor) WithLogger(l *zap.Logger) *Processor {
	cp := *p
	if l == nil {
		l = zap.NewNop()
	}
	cp.logger = l
	return &cp
}

// LoadImageFromURL downloads and decodes an image
func (p *Processor) LoadImageFromURL(ctx context.Context, imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", p.userAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxDownloadSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	return p.DecodeBytes(data, imageURL)
}

// LoadImage loads an image from a file path, honouring EXIF orientation
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open image file: %w", err)
	}
	return p.DecodeBytes(data, path)
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(ctx context.Context, source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(ctx, source)
	}
	return p.LoadImage(source)
}

// DecodeBytes decodes jpg/png/gif/webp data. Failures are reported as
// *types.ImageDecodeError naming source.
func (p *Processor) DecodeBytes(data []byte, source string) (image.Image, error) {
	if len(data) == 0 {
		return nil, &types.ImageDecodeError{Source: source, Err: io.ErrUnexpectedEOF}
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err == nil {
		return img, nil
	}

	// registered decoders failed; try libwebp directly
	if wimg, werr := webp.Decode(bytes.NewReader(data)); werr == nil {
		return wimg, nil
	}

	p.logger.Debug("image decode failed", zap.String("source", source), zap.Int("bytes", len(data)), zap.Error(err))
	return nil, &types.ImageDecodeError{Source: source, Err: err}
}

// EncodePNG encodes img as PNG
func (p *Processor) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("PNG encoding failed: %w", err)
	}
	return buf.Bytes(), nil
}

// Encode writes img to w in the given format (png, jpg or webp)
func (p *Processor) Encode(w io.Writer, img image.Image, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(w, img, opts)
	case "jpg", "jpeg":
		// JPEG has no alpha; flatten onto white so transparent corners stay clean
		bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), color.White)
		flat := imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
		return jpeg.Encode(w, flat, &jpeg.Options{Quality: quality})
	case "png", "":
		return png.Encode(w, img)
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "png", "":
		return imaging.Save(img, path, imaging.PNGCompressionLevel(png.DefaultCompression))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer f.Close()

	if err := p.Encode(f, img, format, quality, lossless); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}

// CreateDebugOverlay draws the crop rectangle and the circle it maps to on
// top of the source photo.
func (p *Processor) CreateDebugOverlay(img image.Image, crop position.Rect) image.Image {
	dc := gg.NewContextForImage(img)
	w := float64(dc.Width())
	h := float64(dc.Height())

	gold := color.NRGBA{255, 204, 0, 255} // crop box
	green := color.NRGBA{0, 255, 0, 255}  // visible circle
	red := color.NRGBA{255, 0, 0, 255}    // crop center
	blue := color.NRGBA{0, 170, 255, 255} // image center
	stroke := math.Max(2, 0.004*math.Min(w, h))
	cross := math.Max(4, 0.01*math.Min(w, h))

	b := img.Bounds()
	x := crop.X + float64(b.Min.X)
	y := crop.Y + float64(b.Min.Y)

	dc.SetLineWidth(stroke)
	if !crop.Empty() {
		dc.SetColor(gold)
		dc.DrawRectangle(x, y, crop.Width, crop.Height)
		dc.Stroke()

		dc.SetColor(green)
		dc.DrawCircle(x+crop.Width/2, y+crop.Height/2, crop.Width/2)
		dc.Stroke()

		cx, cy := x+crop.Width/2, y+crop.Height/2
		dc.SetColor(red)
		dc.DrawLine(cx-cross, cy, cx+cross, cy)
		dc.DrawLine(cx, cy-cross, cx, cy+cross)
		dc.Stroke()
	}

	dc.SetColor(blue)
	dc.SetLineWidth(math.Max(1, stroke/2))
	dc.DrawLine(w/2-6, h/2, w/2+6, h/2)
	dc.DrawLine(w/2, h/2-6, w/2, h/2+6)
	dc.Stroke()

	return dc.Image()
}
