package server

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	flagavatar "github.com/menta2k/flag-avatar"
	"github.com/menta2k/flag-avatar/pkg/flags"
	"github.com/menta2k/flag-avatar/pkg/position"
	"github.com/menta2k/flag-avatar/pkg/types"
)

// maxOutputSize bounds the avatar size a request may ask for
const maxOutputSize = 4096

type flagResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Colors      []string `json:"colors"`
	HasImage    bool     `json:"has_image"`
	AllowOffset bool     `json:"allow_offset"`
}

// Healthz reports liveness
func (s *Server) Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "version": flagavatar.Version})
}

// ListFlags returns the flag catalog
func (s *Server) ListFlags(c *gin.Context) {
	list := s.engine.Flags()
	out := make([]flagResponse, 0, len(list))
	for _, f := range list {
		out = append(out, flagResponse{
			ID:          f.ID,
			Name:        f.Name,
			Colors:      f.Colors,
			HasImage:    f.Image != "",
			AllowOffset: f.Modes.Cutout.AllowOffset,
		})
	}
	c.JSON(http.StatusOK, gin.H{"flags": out})
}

// Limits returns the legal pan range for a photo size, circle and zoom
func (s *Server) Limits(c *gin.Context) {
	w, errW := strconv.Atoi(c.Query("width"))
	h, errH := strconv.Atoi(c.Query("height"))
	if errW != nil || errH != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "width and height are required integers"})
		return
	}
	diameter, err := floatParam(c.DefaultQuery("diameter", ""), s.defaultDiameter())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "diameter: " + err.Error()})
		return
	}
	zoom, err := floatParam(c.DefaultQuery("zoom", ""), 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "zoom: " + err.Error()})
		return
	}

	limits := s.engine.Limits(position.ImageDimensions{Width: w, Height: h}, diameter, zoom)
	c.JSON(http.StatusOK, limits)
}

// Render renders an avatar from a multipart upload. The photo is sent in
// the "photo" field; every other parameter is an optional form field.
func (s *Server) Render(c *gin.Context) {
	req, format, err := s.parseRenderForm(c)
	if err != nil {
		s.writeError(c, err)
		return
	}

	out, err := s.engine.Render(c.Request.Context(), req)
	if err != nil {
		s.writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-store")
	c.Header("X-Avatar-Size", fmt.Sprintf("%dx%d", out.Width, out.Height))
	if format == "png" {
		c.Data(http.StatusOK, "image/png", out.PNG)
		return
	}

	var buf bytes.Buffer
	if err := s.engine.Processor().Encode(&buf, out.Image, format, s.cfg.Output.Quality, s.cfg.Output.Lossless); err != nil {
		s.writeError(c, err)
		return
	}
	contentType := "image/webp"
	if format == "jpg" {
		contentType = "image/jpeg"
	}
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// badRequest marks malformed request parameters
type badRequest struct{ msg string }

func (e *badRequest) Error() string { return e.msg }

func (s *Server) parseRenderForm(c *gin.Context) (flagavatar.Request, string, error) {
	var req flagavatar.Request

	fh, err := c.FormFile("photo")
	if err != nil {
		return req, "", &badRequest{"photo file is required"}
	}
	f, err := fh.Open()
	if err != nil {
		return req, "", &badRequest{"cannot read photo"}
	}
	defer f.Close()
	limit := int64(s.cfg.Server.MaxUploadMB) << 20
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return req, "", &badRequest{"cannot read photo"}
	}
	if int64(len(data)) > limit {
		return req, "", &badRequest{fmt.Sprintf("photo exceeds %d MB", s.cfg.Server.MaxUploadMB)}
	}
	photo, err := s.engine.Processor().DecodeBytes(data, fh.Filename)
	if err != nil {
		return req, "", err
	}

	border, err := s.cfg.BorderParameters()
	if err != nil {
		return req, "", err
	}
	if m := c.PostForm("mode"); m != "" {
		mode, err := types.ParsePresentationMode(m)
		if err != nil {
			return req, "", &badRequest{err.Error()}
		}
		border.Presentation = mode
	}

	bg, err := s.cfg.BackgroundColor()
	if err != nil {
		return req, "", err
	}
	if v := strings.TrimSpace(c.PostForm("bg")); v != "" {
		if strings.EqualFold(v, "transparent") {
			bg = nil
		} else {
			col, err := flags.ParseColor(v)
			if err != nil {
				return req, "", &badRequest{"bg: " + err.Error()}
			}
			bg = &col
		}
	}

	size := s.cfg.Render.Size
	if v := c.PostForm("size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxOutputSize {
			return req, "", &badRequest{fmt.Sprintf("size must be an integer in [1, %d]", maxOutputSize)}
		}
		size = n
	}

	req.FlagID = strings.TrimSpace(c.PostForm("flag"))
	if c.PostForm("offset") == "" {
		if spec, err := s.engine.Catalog().Lookup(req.FlagID); err == nil {
			border.FlagOffsetPct = spec.DefaultOffset()
		}
	}

	fields := []struct {
		name string
		dst  *float64
	}{
		{"thickness", &border.ThicknessPct},
		{"offset", &border.FlagOffsetPct},
		{"rotation", &border.SegmentRotationDeg},
		{"x", &req.Position.X},
		{"y", &req.Position.Y},
		{"zoom", &req.Position.Zoom},
	}
	for _, fld := range fields {
		v, err := floatParam(c.PostForm(fld.name), *fld.dst)
		if err != nil {
			return req, "", &badRequest{fld.name + ": " + err.Error()}
		}
		*fld.dst = v
	}
	diameter, err := floatParam(c.PostForm("diameter"), s.defaultDiameter())
	if err != nil {
		return req, "", &badRequest{"diameter: " + err.Error()}
	}

	format := strings.ToLower(c.DefaultPostForm("format", "png"))
	switch format {
	case "jpeg":
		format = "jpg"
	case "png", "jpg", "webp":
	default:
		return req, "", &badRequest{"format must be png, jpg or webp"}
	}

	req.Photo = photo
	req.CircleDiameter = diameter
	req.Border = border
	req.Size = size
	req.Background = bg
	return req, format, nil
}

func (s *Server) defaultDiameter() float64 {
	if s.cfg.Capture.Diameter > 0 {
		return s.cfg.Capture.Diameter
	}
	return float64(s.cfg.Render.Size)
}

func (s *Server) writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("render failed", zap.Error(err))
	} else {
		s.logger.Debug("request rejected", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func statusFor(err error) int {
	var (
		flagErr   *types.FlagDataError
		decodeErr *types.ImageDecodeError
		renderErr *types.RenderError
		bad       *badRequest
	)
	switch {
	case errors.As(err, &bad):
		return http.StatusBadRequest
	case errors.As(err, &flagErr):
		return http.StatusNotFound
	case errors.As(err, &decodeErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &renderErr):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func floatParam(v string, def float64) (float64, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", v)
	}
	return f, nil
}
