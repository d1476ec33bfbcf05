// Package destination turns an export target and a conflict policy into an
// open raw byte sink.
//
// A target is either a file path or a caller-supplied io.Writer. Writers are
// returned untouched. Files are opened by one handler per [ConflictPolicy];
// files the resolver creates are restricted to their owner, files that
// already existed keep their permissions.
package destination

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/hupe1980/ldifexport/internal/logging"
)

// ConflictPolicy decides what happens when the target file already exists.
type ConflictPolicy int

// Supported conflict policies.
const (
	// Fail refuses to touch an existing file.
	Fail ConflictPolicy = iota
	// Append writes after the existing content.
	Append
	// Overwrite truncates the existing content.
	Overwrite
)

// String returns the lower-case policy name.
func (p ConflictPolicy) String() string {
	switch p {
	case Fail:
		return "fail"
	case Append:
		return "append"
	case Overwrite:
		return "overwrite"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}

// ParseConflictPolicy parses "fail", "append" or "overwrite" (case-insensitive).
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "fail":
		return Fail, nil
	case "append":
		return Append, nil
	case "overwrite":
		return Overwrite, nil
	default:
		return Fail, fmt.Errorf("invalid conflict policy %q: must be one of fail, append, overwrite", s)
	}
}

// ErrNilWriter is returned when a writer target carries a nil writer.
var ErrNilWriter = errors.New("export target writer is nil")

// Target identifies where export bytes go: a file path or a writer, never both.
type Target struct {
	path     string
	writer   io.Writer
	isWriter bool
}

// FileTarget returns a target for the file at path.
func FileTarget(path string) Target {
	return Target{path: path}
}

// WriterTarget returns a target for a caller-supplied writer. The caller
// keeps ownership; the writer is never closed by the export.
func WriterTarget(w io.Writer) Target {
	return Target{writer: w, isWriter: true}
}

// IsFile reports whether the target is a file path.
func (t Target) IsFile() bool {
	return !t.isWriter
}

// Path returns the file path, or "" for writer targets.
func (t Target) Path() string {
	return t.path
}

// String describes the target for logs.
func (t Target) String() string {
	if t.IsFile() {
		return t.path
	}

	return "<writer>"
}

// Destination is an opened raw sink.
type Destination struct {
	// Writer receives the raw bytes.
	Writer io.Writer

	// Path is the file path, empty for writer targets.
	Path string

	// Created is true when the resolver created the file.
	Created bool

	// Offset is the size of an existing file opened for appending; new bytes
	// start there.
	Offset int64

	// Warning holds a non-fatal *PermissionError, if any.
	Warning error

	closer io.Closer
	remove func() error
}

// Close releases the file handle. It is a no-op for writer targets and for
// repeated calls.
func (d *Destination) Close() error {
	if d.closer == nil {
		return nil
	}

	c := d.closer
	d.closer = nil

	return c.Close()
}

// Discard closes the destination and removes the file if the resolver
// created it. Files that already existed and writer targets are left alone.
func (d *Destination) Discard() error {
	err := d.Close()

	if d.remove == nil {
		return err
	}

	rm := d.remove
	d.remove = nil

	return errors.Join(err, rm())
}

// FS is the filesystem surface the resolver needs.
type FS interface {
	Stat(name string) (fs.FileInfo, error)
	OpenFile(name string, flag int, perm os.FileMode) (io.WriteCloser, error)
	Chmod(name string, mode os.FileMode) error
	Remove(name string) error
}

// OSFS implements FS on top of package os.
type OSFS struct{}

// Stat calls os.Stat.
func (OSFS) Stat(name string) (fs.FileInfo, error) { return os.Stat(name) }

// OpenFile calls os.OpenFile.
func (OSFS) OpenFile(name string, flag int, perm os.FileMode) (io.WriteCloser, error) {
	return os.OpenFile(name, flag, perm) //nolint:gosec // path is operator supplied
}

// Chmod calls os.Chmod.
func (OSFS) Chmod(name string, mode os.FileMode) error { return os.Chmod(name, mode) }

// Remove calls os.Remove.
func (OSFS) Remove(name string) error { return os.Remove(name) }

// defaultCreateMode is the mode requested on creation, before umask.
const defaultCreateMode os.FileMode = 0o666

// Resolver opens destinations.
type Resolver struct {
	fs     FS
	perm   os.FileMode
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithFS overrides the filesystem (default OSFS).
func WithFS(fsys FS) Option {
	return func(r *Resolver) {
		r.fs = fsys
	}
}

// WithPermissions overrides the hardened mode applied to created files (0600).
func WithPermissions(perm os.FileMode) Option {
	return func(r *Resolver) {
		r.perm = perm
	}
}

// WithLogger sets a logger for the Resolver.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// NewResolver creates a resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		fs:     OSFS{},
		perm:   0o600,
		logger: slog.Default(),
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// openHandler opens path for one conflict policy and reports whether the
// file was created by this call.
type openHandler func(r *Resolver, path string) (io.WriteCloser, bool, error)

var handlers = map[ConflictPolicy]openHandler{
	Fail:      openFail,
	Append:    openAppend,
	Overwrite: openOverwrite,
}

// Resolve opens the raw sink for target under policy. Writer targets are
// returned unchanged and policy is ignored.
func (r *Resolver) Resolve(target Target, policy ConflictPolicy) (*Destination, error) {
	if !target.IsFile() {
		if target.writer == nil {
			return nil, ErrNilWriter
		}

		return &Destination{Writer: target.writer}, nil
	}

	h, ok := handlers[policy]
	if !ok {
		return nil, fmt.Errorf("unknown conflict policy %s", policy)
	}

	path := target.path

	f, created, err := h(r, path)
	if err != nil {
		return nil, err
	}

	d := &Destination{Writer: f, Path: path, Created: created, closer: f}

	if !created && policy == Append {
		if info, statErr := r.fs.Stat(path); statErr == nil {
			d.Offset = info.Size()
		}
	}

	if created {
		d.remove = func() error { return r.fs.Remove(path) }

		if chmodErr := r.fs.Chmod(path, r.perm); chmodErr != nil {
			d.Warning = &PermissionError{Path: path, Mode: r.perm, Err: chmodErr}

			r.logger.Warn("could not restrict export file permissions",
				logging.Path(path),
				logging.Err(chmodErr),
			)
		}
	}

	r.logger.Debug("export destination opened",
		logging.Path(path),
		logging.Policy(policy.String()),
		slog.Bool("created", created),
	)

	return d, nil
}

// openFail creates path exclusively. An existing file is a conflict that is
// detected before anything on disk changes.
func openFail(r *Resolver, path string) (io.WriteCloser, bool, error) {
	if _, err := r.fs.Stat(path); err == nil {
		return nil, false, &ConflictError{Path: path}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, &CreateError{Path: path, Err: err}
	}

	f, err := r.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, defaultCreateMode)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return nil, false, &ConflictError{Path: path}
		}

		return nil, false, &CreateError{Path: path, Err: err}
	}

	return f, true, nil
}

func openAppend(r *Resolver, path string) (io.WriteCloser, bool, error) {
	return openExisting(r, path, os.O_APPEND)
}

func openOverwrite(r *Resolver, path string) (io.WriteCloser, bool, error) {
	return openExisting(r, path, os.O_TRUNC)
}

// openExisting creates path when absent, otherwise opens it with mode
// (O_APPEND or O_TRUNC). The exclusive create tells the two cases apart
// without a stat race.
func openExisting(r *Resolver, path string, mode int) (io.WriteCloser, bool, error) {
	f, err := r.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|mode, defaultCreateMode)
	if err == nil {
		return f, true, nil
	}

	if !errors.Is(err, fs.ErrExist) {
		return nil, false, &CreateError{Path: path, Err: err}
	}

	f, err = r.fs.OpenFile(path, os.O_WRONLY|mode, defaultCreateMode)
	if err != nil {
		return nil, false, &CreateError{Path: path, Err: err}
	}

	return f, false, nil
}
