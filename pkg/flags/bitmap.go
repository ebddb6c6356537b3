package flags

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"math"
	"path"
	"strings"
	"sync"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/menta2k/flag-avatar/pkg/processing"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// SVGRasterWidth is the width vector flags are rasterized at
const SVGRasterWidth = 1200

// BitmapCache decodes flag assets once and keeps them for its own lifetime.
// The flag catalog is small, so nothing is ever evicted.
type BitmapCache struct {
	loader    Loader
	processor *processing.Processor
	logger    *zap.Logger

	mu      sync.RWMutex
	bitmaps map[string]image.Image
	group   singleflight.Group
}

// NewBitmapCache creates an empty cache that fetches through loader
func NewBitmapCache(loader Loader, logger *zap.Logger) *BitmapCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BitmapCache{
		loader:    loader,
		processor: processing.NewProcessor().WithLogger(logger),
		logger:    logger,
		bitmaps:   make(map[string]image.Image),
	}
}

// Bitmap returns the decoded bitmap for the named asset
func (c *BitmapCache) Bitmap(ctx context.Context, name string) (image.Image, error) {
	c.mu.RLock()
	img, ok := c.bitmaps[name]
	c.mu.RUnlock()
	if ok {
		return img, nil
	}

	// shared by every caller collapsed onto this fetch
	fetchCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(name, func() (interface{}, error) {
		c.mu.RLock()
		img, ok := c.bitmaps[name]
		c.mu.RUnlock()
		if ok {
			return img, nil
		}

		data, err := c.loader.Fetch(fetchCtx, name)
		if err != nil {
			return nil, &types.FlagDataError{Op: "fetch bitmap", ID: name, Err: err}
		}
		img, err = c.decode(name, data)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.bitmaps[name] = img
		c.mu.Unlock()

		b := img.Bounds()
		c.logger.Debug("flag bitmap decoded",
			zap.String("name", name), zap.Int("width", b.Dx()), zap.Int("height", b.Dy()))
		return img, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(image.Image), nil
	}
}

// Len returns the number of decoded bitmaps held
func (c *BitmapCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.bitmaps)
}

func (c *BitmapCache) decode(name string, data []byte) (image.Image, error) {
	if strings.EqualFold(path.Ext(name), ".svg") {
		return rasterizeSVG(name, data, SVGRasterWidth)
	}
	return c.processor.DecodeBytes(data, name)
}

// rasterizeSVG renders an SVG flag at the given width, keeping its aspect ratio
func rasterizeSVG(name string, data []byte, width int) (image.Image, error) {
	icon, err := oksvg.ReadIconStream(bytes.NewReader(data))
	if err != nil {
		return nil, &types.ImageDecodeError{Source: name, Err: err}
	}

	w, h := icon.ViewBox.W, icon.ViewBox.H
	if w <= 0 || h <= 0 {
		return nil, &types.ImageDecodeError{Source: name, Err: fmt.Errorf("svg has no viewBox")}
	}
	height := int(math.Round(float64(width) * h / w))
	if height < 1 {
		height = 1
	}

	icon.SetTarget(0, 0, float64(width), float64(height))
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	scanner := rasterx.NewScannerGV(width, height, img, img.Bounds())
	raster := rasterx.NewDasher(width, height, scanner)
	icon.Draw(raster, 1.0)

	return img, nil
}
