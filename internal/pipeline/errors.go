package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrPipelineConstruction is matched by every *ConstructionError.
	ErrPipelineConstruction = errors.New("pipeline construction failed")

	// ErrCloseFailure is matched by every *CloseError.
	ErrCloseFailure = errors.New("pipeline close failed")

	// ErrNoImplementation means an enabled extension hook has no backing
	// implementation.
	ErrNoImplementation = errors.New("no implementation configured")

	// ErrSinkClosed is returned by writes after Close.
	ErrSinkClosed = errors.New("pipeline sink closed")
)

// ConstructionError names the layer that failed to build. Layers built
// before it have already been released; Cleanup holds any error from that.
type ConstructionError struct {
	Layer   string
	Err     error
	Cleanup error
}

func (e *ConstructionError) Error() string {
	msg := fmt.Sprintf("building %s layer: %v", e.Layer, e.Err)
	if e.Cleanup != nil {
		msg += fmt.Sprintf(" (releasing partial pipeline: %v)", e.Cleanup)
	}

	return msg
}

// Unwrap returns the underlying cause.
func (e *ConstructionError) Unwrap() error { return e.Err }

// Is reports ErrPipelineConstruction as a match.
func (e *ConstructionError) Is(target error) bool { return target == ErrPipelineConstruction }

// LayerError is one layer's release failure.
type LayerError struct {
	Layer string
	Err   error
}

func (e LayerError) Error() string {
	return fmt.Sprintf("%s: %v", e.Layer, e.Err)
}

// CloseError aggregates every release failure. Released lists the layers that
// released cleanly, in release order.
type CloseError struct {
	Failures []LayerError
	Released []string
}

func (e *CloseError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}

	msg := "closing pipeline: " + strings.Join(parts, "; ")
	if len(e.Released) > 0 {
		msg += " (released: " + strings.Join(e.Released, ", ") + ")"
	}

	return msg
}

// Unwrap returns the individual layer causes.
func (e *CloseError) Unwrap() []error {
	out := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		out[i] = f.Err
	}

	return out
}

// Is reports ErrCloseFailure as a match.
func (e *CloseError) Is(target error) bool { return target == ErrCloseFailure }
