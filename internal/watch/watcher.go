package watch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/hupe1980/ldifexport/internal/logging"
)

// RunFunc is called each time the watcher triggers an export.
type RunFunc func(ctx context.Context) (*RunResult, error)

// RunResult holds the outcome of a single export so the watcher can report
// changes between runs.
type RunResult struct {
	Read     int
	Written  int
	Excluded int
	Skipped  int
	Digest   string
	Output   string
}

// Options configures the watch behaviour.
type Options struct {
	// Source is the entry source file to watch.
	Source string

	// ExtraFiles are additional files to watch (e.g. the export profile).
	ExtraFiles []string

	// Debounce is the quiet period before triggering an export.
	Debounce time.Duration

	// Logger is used for structured logging.
	Logger *slog.Logger

	// Out is the writer for user-facing status messages.
	Out io.Writer
}

// DefaultOptions returns sensible default watch options.
func DefaultOptions() Options {
	return Options{
		Debounce: 500 * time.Millisecond,
		Logger:   slog.Default(),
		Out:      os.Stderr,
	}
}

// runner serializes export runs and remembers the last successful result.
type runner struct {
	mu   sync.Mutex
	opts Options
	fn   RunFunc
	prev *RunResult
}

// Run starts the file watcher and blocks until the context is cancelled
// or a SIGINT/SIGTERM signal is received.
func Run(ctx context.Context, opts Options, runFn RunFunc) error {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.Out == nil {
		opts.Out = io.Discard
	}

	files, err := watchedFiles(opts)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	// Editors replace files by rename, so the parent directories are watched
	// and events are matched against the file set.
	for _, dir := range parentDirs(files) {
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("watching directory %q: %w", dir, err)
		}
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(opts.Out, "watching %s (debounce=%s)\n", opts.Source, opts.Debounce)

	r := &runner{opts: opts, fn: runFn}

	// Initial export.
	r.run(sigCtx, "(initial)")

	debouncer := NewDebouncer(opts.Debounce, func(path string, events int) {
		trigger := filepath.Base(path)
		if events > 1 {
			trigger = fmt.Sprintf("%s (%d events)", trigger, events)
		}

		r.run(sigCtx, trigger)
	})
	debouncer.logger = opts.Logger
	defer debouncer.Stop()

	for {
		select {
		case <-sigCtx.Done():
			fmt.Fprintln(opts.Out, "\nshutting down watcher")
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if !isRelevant(event, files) {
				continue
			}

			debouncer.Trigger(event.Name)

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			opts.Logger.Error("watcher error", logging.Err(watchErr))
		}
	}
}

// run executes a single export and prints the status line.
func (r *runner) run(ctx context.Context, trigger string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ctx.Err() != nil {
		return
	}

	now := time.Now().Format("15:04:05")

	result, err := r.fn(ctx)
	if err != nil {
		fmt.Fprintf(r.opts.Out, "[%s] %s → ERROR: %v\n", now, trigger, err)
		return
	}

	fmt.Fprintf(r.opts.Out, "[%s] %s → OK %s (%d read, %d written, %d excluded)\n",
		now, trigger, result.Output, result.Read, result.Written, result.Excluded)

	if r.prev != nil {
		fmt.Fprintf(r.opts.Out, "  changes: %s\n", DeltaSummary(Delta(r.prev, result)))
	}

	if result.Digest != "" {
		state := "changed"
		if r.prev != nil && r.prev.Digest == result.Digest {
			state = "unchanged"
		}

		fmt.Fprintf(r.opts.Out, "  sha256: %s (%s)\n", result.Digest, state)
	}

	r.prev = result
}

// watchedFiles returns the absolute paths of the source and extra files.
func watchedFiles(opts Options) (map[string]bool, error) {
	if opts.Source == "" || opts.Source == "-" {
		return nil, fmt.Errorf("watching requires a source file")
	}

	files := make(map[string]bool, 1+len(opts.ExtraFiles))

	for _, f := range append([]string{opts.Source}, opts.ExtraFiles...) {
		if f == "" {
			continue
		}

		abs, err := filepath.Abs(f)
		if err != nil {
			return nil, fmt.Errorf("resolving %q: %w", f, err)
		}

		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("watching file %q: %w", f, err)
		}

		files[abs] = true
	}

	return files, nil
}

func parentDirs(files map[string]bool) []string {
	seen := make(map[string]bool)

	var dirs []string

	for f := range files {
		d := filepath.Dir(f)
		if !seen[d] {
			seen[d] = true
			dirs = append(dirs, d)
		}
	}

	return dirs
}

// isRelevant keeps content-changing events on watched files and drops
// editor temporaries.
func isRelevant(event fsnotify.Event, files map[string]bool) bool {
	if event.Op == 0 {
		return false
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}

	name := filepath.Base(event.Name)
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") ||
		strings.HasSuffix(name, ".swp") || strings.HasPrefix(name, "#") {
		return false
	}

	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}

	return files[abs]
}
