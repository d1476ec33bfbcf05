package watch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// syncBuffer guards a bytes.Buffer written from the debouncer goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

func writeSource(t *testing.T, dir, content string) string {
	t.Helper()

	path := filepath.Join(dir, "entries.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

// ---------------------------------------------------------------------------
// Debouncer
// ---------------------------------------------------------------------------

func TestDebouncer_SingleEvent(t *testing.T) {
	var callCount atomic.Int32
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string, _ int) {
		callCount.Add(1)
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("entries.yaml")

	// Wait for debounce to fire.
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "entries.yaml", lastPath.Load())
}

func TestDebouncer_MultipleEventsCoalesced(t *testing.T) {
	var callCount atomic.Int32
	var lastPath atomic.Value
	var events atomic.Int32

	d := NewDebouncer(100*time.Millisecond, func(path string, n int) {
		callCount.Add(1)
		lastPath.Store(path)
		events.Store(int32(n))
	})
	defer d.Stop()

	// Fire 10 rapid events, should coalesce into 1.
	for i := 0; i < 10; i++ {
		d.Trigger("file.yaml")
		time.Sleep(5 * time.Millisecond)
	}

	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), callCount.Load())
	assert.Equal(t, "file.yaml", lastPath.Load())
	assert.Equal(t, int32(10), events.Load())
}

func TestDebouncer_LastEventWins(t *testing.T) {
	var lastPath atomic.Value

	d := NewDebouncer(50*time.Millisecond, func(path string, _ int) {
		lastPath.Store(path)
	})
	defer d.Stop()

	d.Trigger("first.yaml")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("second.yaml")
	time.Sleep(10 * time.Millisecond)
	d.Trigger("third.yaml")

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, "third.yaml", lastPath.Load())
}

func TestDebouncer_Stop(t *testing.T) {
	var callCount atomic.Int32

	d := NewDebouncer(50*time.Millisecond, func(_ string, _ int) {
		callCount.Add(1)
	})

	d.Trigger("entries.yaml")
	d.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), callCount.Load())
}

// ---------------------------------------------------------------------------
// Delta
// ---------------------------------------------------------------------------

func TestDelta_NoChanges(t *testing.T) {
	r := &RunResult{Read: 3, Written: 2, Excluded: 1}
	assert.Empty(t, Delta(r, r))
}

func TestDelta_NilPrevious(t *testing.T) {
	assert.Nil(t, Delta(nil, &RunResult{Read: 1}))
}

func TestDelta_Changes(t *testing.T) {
	prev := &RunResult{Read: 3, Written: 2, Excluded: 1}
	curr := &RunResult{Read: 5, Written: 2, Excluded: 2, Skipped: 1}

	changes := Delta(prev, curr)
	require.Len(t, changes, 3)
	assert.Equal(t, Change{Field: "read", From: 3, To: 5}, changes[0])
	assert.Equal(t, Change{Field: "excluded", From: 1, To: 2}, changes[1])
	assert.Equal(t, Change{Field: "skipped", From: 0, To: 1}, changes[2])
}

func TestDeltaSummary(t *testing.T) {
	tests := []struct {
		name    string
		changes []Change
		want    string
	}{
		{
			name: "no changes",
			want: "no count changes",
		},
		{
			name:    "growth",
			changes: []Change{{Field: "written", From: 2, To: 4}},
			want:    "written 2→4 (+2)",
		},
		{
			name: "mixed",
			changes: []Change{
				{Field: "read", From: 5, To: 6},
				{Field: "excluded", From: 3, To: 1},
			},
			want: "read 5→6 (+1), excluded 3→1 (-2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DeltaSummary(tt.changes))
		})
	}
}

// ---------------------------------------------------------------------------
// isRelevant
// ---------------------------------------------------------------------------

func TestIsRelevant(t *testing.T) {
	dir := t.TempDir()
	source := filepath.Join(dir, "entries.yaml")
	files := map[string]bool{source: true}

	tests := []struct {
		name string
		path string
		op   fsnotify.Op
		want bool
	}{
		{"source write", source, fsnotify.Write, true},
		{"source create", source, fsnotify.Create, true},
		{"source remove", source, fsnotify.Remove, true},
		{"source rename", source, fsnotify.Rename, true},
		{"other file", filepath.Join(dir, "out.ldif"), fsnotify.Write, false},
		{"hidden file", filepath.Join(dir, ".entries.yaml"), fsnotify.Write, false},
		{"swap file", filepath.Join(dir, "entries.yaml.swp"), fsnotify.Write, false},
		{"backup tilde", filepath.Join(dir, "entries.yaml~"), fsnotify.Write, false},
		{"emacs hash", filepath.Join(dir, "#entries.yaml#"), fsnotify.Write, false},
		{"zero op", source, 0, false},
		{"chmod only", source, fsnotify.Chmod, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := fsnotify.Event{Name: tt.path, Op: tt.op}
			assert.Equal(t, tt.want, isRelevant(event, files))
		})
	}
}

// ---------------------------------------------------------------------------
// watchedFiles
// ---------------------------------------------------------------------------

func TestWatchedFiles(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "dn: cn=a\n")
	profile := filepath.Join(dir, "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("hash: true\n"), 0o600))

	files, err := watchedFiles(Options{Source: source, ExtraFiles: []string{profile, ""}})
	require.NoError(t, err)
	assert.Len(t, files, 2)
	assert.True(t, files[source])
	assert.Equal(t, []string{dir}, parentDirs(files))
}

func TestWatchedFiles_Errors(t *testing.T) {
	_, err := watchedFiles(Options{Source: "-"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires a source file")

	_, err = watchedFiles(Options{Source: filepath.Join(t.TempDir(), "missing.yaml")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching file")
}

// ---------------------------------------------------------------------------
// Run (integration)
// ---------------------------------------------------------------------------

func TestRun_GracefulShutdown(t *testing.T) {
	source := writeSource(t, t.TempDir(), "dn: cn=a\n")

	ctx, cancel := context.WithCancel(context.Background())

	var runCount atomic.Int32

	opts := DefaultOptions()
	opts.Source = source
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			runCount.Add(1)
			return &RunResult{Read: 1, Written: 1}, nil
		})
	}()

	// Let initial run complete.
	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, runCount.Load(), int32(1))

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not shut down in time")
	}
}

func TestRun_SourceChangeTriggersExport(t *testing.T) {
	dir := t.TempDir()
	source := writeSource(t, dir, "dn: cn=a\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runCount atomic.Int32

	out := &syncBuffer{}

	opts := DefaultOptions()
	opts.Source = source
	opts.Debounce = 50 * time.Millisecond
	opts.Out = out

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			n := int(runCount.Add(1))
			return &RunResult{Read: n, Written: n, Digest: "abc", Output: "out.ldif"}, nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	initialRuns := runCount.Load()

	// Writing an unrelated file in the same directory is ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "out.ldif"), []byte("x"), 0o600))
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, initialRuns, runCount.Load(), "unrelated file must not trigger export")

	require.NoError(t, os.WriteFile(source, []byte("dn: cn=b\n"), 0o600))

	time.Sleep(300 * time.Millisecond)
	assert.Greater(t, runCount.Load(), initialRuns, "source change should trigger export")

	cancel()
	<-done

	assert.Contains(t, out.String(), "(initial) → OK out.ldif")
	assert.Contains(t, out.String(), "changes: read 1→2 (+1), written 1→2 (+1)")
	assert.Contains(t, out.String(), "sha256: abc (unchanged)")
}

func TestRun_MissingSource(t *testing.T) {
	opts := DefaultOptions()
	opts.Source = "/nonexistent/source/12345.yaml"
	opts.Out = io.Discard

	err := Run(context.Background(), opts, func(_ context.Context) (*RunResult, error) {
		return &RunResult{}, nil
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "watching file")
}

func TestRun_RunFuncError(t *testing.T) {
	source := writeSource(t, t.TempDir(), "dn: cn=a\n")

	ctx, cancel := context.WithCancel(context.Background())

	out := &syncBuffer{}

	opts := DefaultOptions()
	opts.Source = source
	opts.Debounce = 50 * time.Millisecond
	opts.Out = out

	var callCount atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			callCount.Add(1)
			return nil, fmt.Errorf("export error")
		})
	}()

	// Initial run will produce an error, but watcher continues.
	time.Sleep(200 * time.Millisecond)
	assert.GreaterOrEqual(t, callCount.Load(), int32(1))

	cancel()
	<-done

	assert.Contains(t, out.String(), "ERROR: export error")
}

func TestRun_ExtraFiles(t *testing.T) {
	source := writeSource(t, t.TempDir(), "dn: cn=a\n")

	profile := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(profile, []byte("hash: true\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())

	opts := DefaultOptions()
	opts.Source = source
	opts.ExtraFiles = []string{profile}
	opts.Debounce = 50 * time.Millisecond
	opts.Out = io.Discard

	var runCount atomic.Int32

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, opts, func(_ context.Context) (*RunResult, error) {
			runCount.Add(1)
			return &RunResult{}, nil
		})
	}()

	time.Sleep(200 * time.Millisecond)
	initialRuns := runCount.Load()

	require.NoError(t, os.WriteFile(profile, []byte("hash: false\n"), 0o600))
	time.Sleep(300 * time.Millisecond)
	assert.Greater(t, runCount.Load(), initialRuns, "profile change should trigger export")

	cancel()
	<-done
}

// ---------------------------------------------------------------------------
// DefaultOptions
// ---------------------------------------------------------------------------

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 500*time.Millisecond, opts.Debounce)
	assert.NotNil(t, opts.Logger)
	assert.NotNil(t, opts.Out)
}
