// Package exporter drives an export run: it reads entries from a source,
// applies the selection policy, runs export hooks, trims attributes and
// writes LDIF through an export session.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hupe1980/ldifexport/internal/entry"
	"github.com/hupe1980/ldifexport/internal/ldif"
	"github.com/hupe1980/ldifexport/internal/logging"
	"github.com/hupe1980/ldifexport/internal/metrics"
	"github.com/hupe1980/ldifexport/internal/pipeline"
	"github.com/hupe1980/ldifexport/internal/selection"
	"github.com/hupe1980/ldifexport/internal/session"
	"github.com/hupe1980/ldifexport/internal/source"
)

// ErrWriteFailed marks failures writing serialized entries to the sink.
var ErrWriteFailed = errors.New("writing export failed")

// FilterErrorMode decides what happens when an entry cannot be evaluated.
type FilterErrorMode int

// Supported modes.
const (
	// Abort stops the run with the evaluation error.
	Abort FilterErrorMode = iota
	// Skip leaves the entry out, logs it and continues.
	Skip
)

// String returns the mode name.
func (m FilterErrorMode) String() string {
	if m == Skip {
		return "skip"
	}

	return "abort"
}

// ParseFilterErrorMode parses "abort" or "skip".
func ParseFilterErrorMode(s string) (FilterErrorMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return Abort, nil
	case "skip":
		return Skip, nil
	default:
		return Abort, fmt.Errorf("invalid filter error mode %q: must be abort or skip", s)
	}
}

// Hook runs on every included entry before attribute retention. It returns
// the entry to write, a rewritten copy, or nil to drop it.
type Hook interface {
	Export(ctx context.Context, e *entry.Entry) (*entry.Entry, error)
}

// HookFunc adapts a function to Hook.
type HookFunc func(ctx context.Context, e *entry.Entry) (*entry.Entry, error)

// Export calls f(ctx, e).
func (f HookFunc) Export(ctx context.Context, e *entry.Entry) (*entry.Entry, error) {
	return f(ctx, e)
}

// Stats summarizes a run.
type Stats struct {
	ExportID string

	Read     int
	Included int
	Excluded int
	Skipped  int
	Dropped  int
	Written  int

	AttributesDropped int

	Result   pipeline.Result
	Warnings []error
	Duration time.Duration
}

// defaultBatchSize bounds how many entries are decided concurrently before
// the serial write phase.
const defaultBatchSize = 256

// Exporter runs one export through a session. An Exporter is single-use
// because the session it drives is.
type Exporter struct {
	session       *session.Session
	policy        *selection.Policy
	ldifOpts      []ldif.Option
	metrics       *metrics.Collector
	logger        *slog.Logger
	hooks         []Hook
	onFilterError FilterErrorMode
	workers       int
	batchSize     int
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLDIFOptions configures the LDIF encoder.
func WithLDIFOptions(opts ...ldif.Option) Option {
	return func(x *Exporter) {
		x.ldifOpts = append(x.ldifOpts, opts...)
	}
}

// WithMetrics records run metrics on c.
func WithMetrics(c *metrics.Collector) Option {
	return func(x *Exporter) {
		x.metrics = c
	}
}

// WithLogger sets a logger for the Exporter.
func WithLogger(logger *slog.Logger) Option {
	return func(x *Exporter) {
		x.logger = logger
	}
}

// WithHooks appends export hooks, run in order.
func WithHooks(hooks ...Hook) Option {
	return func(x *Exporter) {
		x.hooks = append(x.hooks, hooks...)
	}
}

// WithFilterErrorMode sets the evaluation failure behaviour (default Abort).
func WithFilterErrorMode(m FilterErrorMode) Option {
	return func(x *Exporter) {
		x.onFilterError = m
	}
}

// WithWorkers sets how many goroutines evaluate the policy. Zero selects
// GOMAXPROCS; one evaluates inline.
func WithWorkers(n int) Option {
	return func(x *Exporter) {
		x.workers = n
	}
}

// WithBatchSize sets how many entries are read ahead for concurrent
// evaluation.
func WithBatchSize(n int) Option {
	return func(x *Exporter) {
		x.batchSize = n
	}
}

// New creates an exporter writing through s and selecting with p.
func New(s *session.Session, p *selection.Policy, opts ...Option) *Exporter {
	x := &Exporter{
		session:   s,
		policy:    p,
		logger:    slog.Default(),
		workers:   1,
		batchSize: defaultBatchSize,
	}

	for _, opt := range opts {
		opt(x)
	}

	if x.workers <= 0 {
		x.workers = runtime.GOMAXPROCS(0)
	}

	if x.batchSize <= 0 {
		x.batchSize = defaultBatchSize
	}

	return x
}

// Run exports every entry of src. The session is always closed; its result
// is returned in Stats even when the run fails.
func (x *Exporter) Run(ctx context.Context, src source.Source) (stats Stats, err error) {
	stats.ExportID = uuid.NewString()
	logger := x.logger.With(logging.ExportID(stats.ExportID))
	start := time.Now()

	logger.Info("export started",
		slog.String("criteria", x.policy.Describe()),
		slog.String("onFilterError", x.onFilterError.String()),
		slog.Int("workers", x.workers),
	)

	defer func() {
		res, closeErr := x.session.Close()
		stats.Result = res
		stats.Warnings = x.session.Warnings()
		stats.Duration = time.Since(start)

		if closeErr != nil {
			err = errors.Join(err, closeErr)
		}

		x.metrics.RecordExport(res.BytesOut, stats.Duration, time.Now())

		if err != nil {
			logger.Error("export failed", logging.Err(err))
			return
		}

		logger.Info("export finished",
			slog.Int("read", stats.Read),
			slog.Int("written", stats.Written),
			slog.Int("excluded", stats.Excluded),
			slog.Int("skipped", stats.Skipped),
			slog.Int64("bytes", res.BytesOut),
			slog.Duration("took", stats.Duration),
		)
	}()

	if err = x.session.Open(); err != nil {
		return stats, err
	}

	sink, err := x.session.Sink()
	if err != nil {
		return stats, err
	}

	enc := ldif.NewEncoder(sink, x.ldifOpts...)

	for {
		batch, readErr := x.readBatch(ctx, src)
		stats.Read += len(batch)

		decisions := x.decideBatch(batch)

		for i, e := range batch {
			if err = ctx.Err(); err != nil {
				return stats, err
			}

			if err = x.handle(ctx, logger, enc, e, decisions[i], &stats); err != nil {
				return stats, err
			}
		}

		if errors.Is(readErr, io.EOF) {
			return stats, nil
		}

		if readErr != nil {
			return stats, fmt.Errorf("reading entries: %w", readErr)
		}
	}
}

func (x *Exporter) readBatch(ctx context.Context, src source.Source) ([]*entry.Entry, error) {
	batch := make([]*entry.Entry, 0, x.batchSize)

	for len(batch) < x.batchSize {
		e, err := src.Next(ctx)
		if err != nil {
			return batch, err
		}

		batch = append(batch, e)
	}

	return batch, nil
}

type decided struct {
	decision selection.Decision
	err      error
}

// decideBatch evaluates the policy for every entry of batch. Results are
// indexed by position so the write phase keeps input order.
func (x *Exporter) decideBatch(batch []*entry.Entry) []decided {
	results := make([]decided, len(batch))

	// For small workloads, avoid goroutine overhead.
	if x.workers <= 1 || len(batch) <= 2 {
		for i, e := range batch {
			results[i].decision, results[i].err = x.policy.Decide(e)
		}

		return results
	}

	parallelDecide(x.policy, batch, results, x.workers)

	return results
}

func (x *Exporter) handle(ctx context.Context, logger *slog.Logger, enc *ldif.Encoder, e *entry.Entry, d decided, stats *Stats) error {
	if d.err != nil {
		x.metrics.RecordDecision(metrics.DecisionError)

		if x.onFilterError == Abort {
			return fmt.Errorf("exporting entry %s: %w", e.DN, d.err)
		}

		stats.Skipped++

		logger.Warn("skipping entry that could not be evaluated",
			logging.DN(e.DN),
			logging.Err(d.err),
		)

		return nil
	}

	if d.decision == selection.Exclude {
		stats.Excluded++
		x.metrics.RecordDecision(metrics.DecisionExclude)
		logger.Debug("entry excluded", logging.DN(e.DN))

		return nil
	}

	stats.Included++
	x.metrics.RecordDecision(metrics.DecisionInclude)

	out := e

	for _, h := range x.hooks {
		next, err := h.Export(ctx, out)
		if err != nil {
			return fmt.Errorf("export hook on %s: %w", out.DN, err)
		}

		if next == nil {
			stats.Dropped++
			logger.Debug("entry dropped by export hook", logging.DN(e.DN))

			return nil
		}

		out = next
	}

	out, dropped := out.Filtered(x.policy.RetainAttributeOf)
	stats.AttributesDropped += dropped
	x.metrics.RecordDropped(dropped)

	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}

	stats.Written++

	return nil
}
