package destination

import (
	"errors"
	"fmt"
	"os"
)

// Sentinel errors matched with errors.Is.
var (
	// ErrDestinationConflict means the Fail policy found an existing file.
	ErrDestinationConflict = errors.New("destination already exists")

	// ErrPermissionSetup means a newly created file could not be restricted
	// to its owner. It is a warning; the export continues.
	ErrPermissionSetup = errors.New("permission setup failed")

	// ErrCreateFailed means the destination could not be created or opened.
	ErrCreateFailed = errors.New("destination create failed")
)

// ConflictError reports an existing target under the Fail policy.
type ConflictError struct {
	Path string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("export file %s already exists", e.Path)
}

// Is reports ErrDestinationConflict as a match.
func (e *ConflictError) Is(target error) bool { return target == ErrDestinationConflict }

// PermissionError reports a failed permission hardening attempt.
type PermissionError struct {
	Path string
	Mode os.FileMode
	Err  error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("setting permissions %04o on %s: %v", e.Mode, e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *PermissionError) Unwrap() error { return e.Err }

// Is reports ErrPermissionSetup as a match.
func (e *PermissionError) Is(target error) bool { return target == ErrPermissionSetup }

// CreateError reports an I/O failure while creating or opening the target.
type CreateError struct {
	Path string
	Err  error
}

func (e *CreateError) Error() string {
	return fmt.Sprintf("opening export file %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CreateError) Unwrap() error { return e.Err }

// Is reports ErrCreateFailed as a match.
func (e *CreateError) Is(target error) bool { return target == ErrCreateFailed }
