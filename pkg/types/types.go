package types

import (
	"fmt"
	"image"
	"math"
	"strings"
)

// PresentationMode selects how the flag integrates with the circular border
type PresentationMode string

// Supported presentation modes
const (
	Ring    PresentationMode = "ring"
	Segment PresentationMode = "segment"
	Cutout  PresentationMode = "cutout"
)

// Border parameter ranges
const (
	MinThicknessPct = 5.0
	MaxThicknessPct = 20.0
	MinOffsetPct    = -50.0
	MaxOffsetPct    = 50.0
	MinRotationDeg  = -180.0
	MaxRotationDeg  = 180.0
)

// PresentationModes returns all supported presentation modes
func PresentationModes() []PresentationMode {
	return []PresentationMode{Ring, Segment, Cutout}
}

// ParsePresentationMode converts a user supplied name into a PresentationMode
func ParsePresentationMode(s string) (PresentationMode, error) {
	mode := PresentationMode(strings.ToLower(strings.TrimSpace(s)))
	if mode == "" {
		return Ring, nil
	}
	if !mode.Valid() {
		return "", fmt.Errorf("unknown presentation mode: %q", s)
	}
	return mode, nil
}

// Valid reports whether m is one of the supported modes
func (m PresentationMode) Valid() bool {
	switch m {
	case Ring, Segment, Cutout:
		return true
	}
	return false
}

// BorderParameters describes the border the user picked
type BorderParameters struct {
	ThicknessPct       float64          `json:"thickness_pct"`
	Presentation       PresentationMode `json:"presentation"`
	FlagOffsetPct      float64          `json:"flag_offset_pct"`
	SegmentRotationDeg float64          `json:"segment_rotation_deg"`
}

// DefaultBorderParameters returns a 10% ring border
func DefaultBorderParameters() BorderParameters {
	return BorderParameters{
		ThicknessPct: 10,
		Presentation: Ring,
	}
}

// Validate checks the parameters against their allowed ranges.
// Rotation is not range checked; it is normalized modulo 360 when used, so
// only non-finite values are rejected.
func (p BorderParameters) Validate() error {
	if !p.Presentation.Valid() {
		return &RenderError{Reason: fmt.Sprintf("unknown presentation mode %q", p.Presentation)}
	}
	if !(p.ThicknessPct >= MinThicknessPct && p.ThicknessPct <= MaxThicknessPct) {
		return &RenderError{Reason: fmt.Sprintf("thickness %.2f%% out of range [%.0f, %.0f]",
			p.ThicknessPct, MinThicknessPct, MaxThicknessPct)}
	}
	if !(p.FlagOffsetPct >= MinOffsetPct && p.FlagOffsetPct <= MaxOffsetPct) {
		return &RenderError{Reason: fmt.Sprintf("flag offset %.2f%% out of range [%.0f, %.0f]",
			p.FlagOffsetPct, MinOffsetPct, MaxOffsetPct)}
	}
	if math.IsNaN(p.SegmentRotationDeg) || math.IsInf(p.SegmentRotationDeg, 0) {
		return &RenderError{Reason: "segment rotation must be a finite number"}
	}
	return nil
}

// RenderOutput is the final square avatar
type RenderOutput struct {
	PNG    []byte
	Width  int
	Height int

	// Image is the raster the PNG was encoded from, kept for re-encoding
	Image image.Image
}
