package cli

import (
	"errors"

	"github.com/hupe1980/ldifexport/internal/destination"
	"github.com/hupe1980/ldifexport/internal/exporter"
	"github.com/hupe1980/ldifexport/internal/pipeline"
	"github.com/hupe1980/ldifexport/internal/selection"
)

// Process exit codes.
const (
	ExitGeneric     = 1
	ExitUsage       = 2
	ExitConflict    = 3
	ExitPipeline    = 4
	ExitFilter      = 5
	ExitWrite       = 6
	ExitDifferences = 7
)

// exitCode maps an export error to its process exit code.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, selection.ErrFilterEvaluation):
		return ExitFilter
	case errors.Is(err, destination.ErrDestinationConflict):
		return ExitConflict
	case errors.Is(err, pipeline.ErrPipelineConstruction):
		return ExitPipeline
	case errors.Is(err, pipeline.ErrCloseFailure),
		errors.Is(err, exporter.ErrWriteFailed),
		errors.Is(err, destination.ErrCreateFailed):
		return ExitWrite
	default:
		return ExitGeneric
	}
}

// exitError wraps err with its mapped exit code.
func exitError(err error) error {
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}

	return &ExitError{Code: exitCode(err), Err: err}
}
