package types

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by asset loaders when a requested resource does not exist
var ErrNotFound = errors.New("not found")

// FlagDataError reports a catalog load failure or a missing flag
type FlagDataError struct {
	ID  string
	Op  string
	Err error
}

func (e *FlagDataError) Error() string {
	switch {
	case e.ID != "" && e.Err != nil:
		return fmt.Sprintf("flag data: %s %q: %v", e.op(), e.ID, e.Err)
	case e.ID != "":
		return fmt.Sprintf("flag data: %s %q: unknown flag", e.op(), e.ID)
	case e.Err != nil:
		return fmt.Sprintf("flag data: %s: %v", e.op(), e.Err)
	}
	return "flag data: " + e.op()
}

func (e *FlagDataError) op() string {
	if e.Op == "" {
		return "lookup"
	}
	return e.Op
}

func (e *FlagDataError) Unwrap() error { return e.Err }

// ImageDecodeError reports a photo or flag bitmap that could not be decoded
type ImageDecodeError struct {
	Source string
	Err    error
}

func (e *ImageDecodeError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("image decode: %v", e.Err)
	}
	return fmt.Sprintf("image decode %s: %v", e.Source, e.Err)
}

func (e *ImageDecodeError) Unwrap() error { return e.Err }

// RenderError reports a composition that could not complete
type RenderError struct {
	Reason string
	Err    error
}

func (e *RenderError) Error() string {
	if e.Err == nil {
		return "render: " + e.Reason
	}
	if e.Reason == "" {
		return fmt.Sprintf("render: %v", e.Err)
	}
	return fmt.Sprintf("render: %s: %v", e.Reason, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
