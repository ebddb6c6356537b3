package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"go.uber.org/zap"

	flagavatar "github.com/menta2k/flag-avatar"
	"github.com/menta2k/flag-avatar/internal/config"
	"github.com/menta2k/flag-avatar/internal/server"
	"github.com/menta2k/flag-avatar/internal/utils"
	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/position"
)

func main() {
	var in, flagID, mode, outDir, ext, bg, catalog, configPath, serve string
	var thickness, offset, rotation, x, y, zoom, diameter float64
	var size, quality int
	var lossless, list, debug, preload bool

	cfg := config.Default()

	flag.StringVar(&configPath, "config", "", "JSON config file (default "+config.GetConfigPath()+" if it exists)")
	flag.StringVar(&in, "in", "", "input photo path, URL or directory (jpg/png/webp)")
	flag.StringVar(&flagID, "flag", "", "flag id (see -list)")
	flag.StringVar(&mode, "mode", "", "border presentation: ring|segment|cutout")
	flag.Float64Var(&thickness, "thickness", 0, "border thickness in percent of the size (5-20)")
	flag.Float64Var(&offset, "offset", 0, "cutout flag offset in percent of its width (-50..50)")
	flag.Float64Var(&rotation, "rotation", 0, "segment start angle in degrees clockwise from 12 o'clock")
	flag.IntVar(&size, "size", 0, "output size in pixels")
	flag.Float64Var(&x, "x", 0, "horizontal pan in percent (-50..50)")
	flag.Float64Var(&y, "y", 0, "vertical pan in percent (-50..50)")
	flag.Float64Var(&zoom, "zoom", 0, "zoom in percent (0..200)")
	flag.Float64Var(&diameter, "diameter", 0, "diameter of the circle the position was chosen in (default: output size)")
	flag.StringVar(&bg, "bg", "", "background color #RRGGBB (default transparent)")
	flag.StringVar(&outDir, "out", "", "output directory")
	flag.StringVar(&ext, "ext", "", "output format: png|jpg|webp")
	flag.IntVar(&quality, "quality", 0, "JPEG/WebP output quality (1-100)")
	flag.BoolVar(&lossless, "lossless", false, "WebP output lossless mode")
	flag.StringVar(&catalog, "catalog", "", "flag catalog directory or URL (default: built-in flags)")
	flag.BoolVar(&list, "list", false, "list available flags and exit")
	flag.BoolVar(&preload, "preload", false, "decode every flag bitmap before rendering")
	flag.BoolVar(&debug, "debug", false, "verbose logging and crop debug overlays")
	flag.StringVar(&serve, "serve", "", "run the preview server on this address instead of rendering")
	flag.Parse()

	logger := newLogger(debug)
	defer logger.Sync()

	if configPath == "" && utils.FileExists(config.GetConfigPath()) {
		configPath = config.GetConfigPath()
	}
	if configPath != "" {
		loaded, err := config.LoadFromFile(configPath)
		if err != nil {
			logger.Fatal("config", zap.Error(err))
		}
		cfg = loaded
		logger.Debug("config loaded", zap.String("path", configPath))
	}

	// explicit flags override the config file
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "mode":
			cfg.Render.Presentation = mode
		case "thickness":
			cfg.Render.ThicknessPct = thickness
		case "offset":
			cfg.Render.FlagOffsetPct = offset
		case "rotation":
			cfg.Render.SegmentRotationDeg = rotation
		case "size":
			cfg.Render.Size = size
		case "bg":
			cfg.Render.Background = bg
		case "diameter":
			cfg.Capture.Diameter = diameter
		case "catalog":
			cfg.Catalog.Source = catalog
		case "out":
			cfg.Output.OutputDir = outDir
		case "ext":
			cfg.Output.DefaultFormat = ext
		case "quality":
			cfg.Output.Quality = quality
		case "lossless":
			cfg.Output.Lossless = lossless
		case "preload":
			cfg.Catalog.Preload = preload
		case "serve":
			cfg.Server.Addr = serve
		}
	})
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loader, err := cfg.Loader(logger.Named("catalog"))
	if err != nil {
		logger.Fatal("catalog", zap.Error(err))
	}
	engine, err := flagavatar.Load(ctx, flagavatar.Config{
		Loader:   loader,
		Manifest: cfg.Catalog.Manifest,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatal("engine", zap.Error(err))
	}

	if list {
		printFlags(engine.Flags())
		return
	}

	if cfg.Catalog.Preload {
		if err := engine.Preload(ctx); err != nil {
			logger.Fatal("preload", zap.Error(err))
		}
	}

	if serve != "" {
		if err := server.New(engine, cfg, logger.Named("server")).Run(ctx, cfg.Server.Addr); err != nil {
			logger.Fatal("server", zap.Error(err))
		}
		return
	}

	if in == "" || flagID == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in photo.jpg|URL|dir -flag id [-mode ring|segment|cutout] [-thickness 10] [-size 1024] [-x 0 -y 0 -zoom 0] [-out dir] [-ext png|jpg|webp]\n", filepath.Base(os.Args[0]))
		fmt.Fprintf(os.Stderr, "       %s -list | -serve :8080\n", filepath.Base(os.Args[0]))
		os.Exit(2)
	}

	border, _ := cfg.BorderParameters()
	if !isSet("offset") && cfg.Render.FlagOffsetPct == 0 {
		if spec, err := engine.Catalog().Lookup(flagID); err == nil {
			border.FlagOffsetPct = spec.DefaultOffset()
		}
	}
	background, _ := cfg.BackgroundColor()
	base := flagavatar.Request{
		FlagID:         flagID,
		Position:       position.ImagePosition{X: x, Y: y, Zoom: zoom},
		CircleDiameter: cfg.Capture.Diameter,
		Border:         border,
		Size:           cfg.Render.Size,
		Background:     background,
	}

	inputs := []string{in}
	if utils.DirExists(in) {
		inputs, err = utils.ListImageFiles(in)
		if err != nil {
			logger.Fatal("list inputs", zap.Error(err))
		}
		logger.Info("batch render", zap.String("dir", in), zap.Int("photos", len(inputs)))
	}
	if err := utils.EnsureDir(cfg.Output.OutputDir); err != nil {
		logger.Fatal("output directory", zap.Error(err))
	}

	failed := 0
	for _, src := range inputs {
		if err := renderOne(ctx, engine, cfg, base, src, debug, logger); err != nil {
			logger.Error("render failed", zap.String("in", src), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func renderOne(ctx context.Context, engine *flagavatar.Engine, cfg *config.Config, req flagavatar.Request, src string, debug bool, logger *zap.Logger) error {
	processor := engine.Processor()
	photo, err := processor.LoadImageSmart(ctx, src)
	if err != nil {
		return err
	}
	req.Photo = photo

	out, err := engine.Render(ctx, req)
	if err != nil {
		return err
	}

	format := cfg.Output.DefaultFormat
	path := utils.GenerateOutputFilename(src, cfg.Output.OutputDir, cfg.Output.Prefix, cfg.Output.Suffix, req.FlagID, format)
	if err := processor.SaveImage(out.Image, path, format, cfg.Output.Quality, cfg.Output.Lossless); err != nil {
		return err
	}
	if info, err := os.Stat(path); err == nil {
		logger.Info("wrote avatar", zap.String("path", path), zap.String("size", utils.FormatFileSize(info.Size())))
	}

	if debug {
		writeDebugOverlay(engine, cfg, req, photo, path, logger)
	}
	return nil
}

// writeDebugOverlay saves the photo with the captured region drawn on it
func writeDebugOverlay(engine *flagavatar.Engine, cfg *config.Config, req flagavatar.Request, photo image.Image, avatarPath string, logger *zap.Logger) {
	rect := engine.CropRect(req)
	overlay := engine.Processor().CreateDebugOverlay(photo, rect)
	dbgPath := strings.TrimSuffix(avatarPath, filepath.Ext(avatarPath)) + "_debug.png"
	if err := engine.Processor().SaveImage(overlay, dbgPath, "png", cfg.Output.Quality, false); err != nil {
		logger.Warn("debug overlay save failed", zap.Error(err))
		return
	}
	logger.Debug("wrote debug overlay",
		zap.String("path", dbgPath),
		zap.Float64("crop_x", rect.X), zap.Float64("crop_y", rect.Y), zap.Float64("crop_side", rect.Width))
}

func printFlags(list []flags.FlagSpec) {
	for _, f := range list {
		offset := "fixed"
		if f.Modes.Cutout.AllowOffset {
			offset = "adjustable"
		}
		source := "stripes"
		if f.Image != "" && !f.Modes.Ring.UseStripes {
			source = f.Image
		}
		fmt.Printf("%-12s %-20s colors=%s ring=%s cutout-offset=%s\n",
			f.ID, f.Name, strings.Join(f.Colors, ","), source, offset)
	}
}

func isSet(name string) bool {
	found := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

func newLogger(debug bool) *zap.Logger {
	var (
		logger *zap.Logger
		err    error
	)
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}
