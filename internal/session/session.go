// Package session ties a destination and an output pipeline into a single
// export lifecycle: Unopened, Open, Closed.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hupe1980/ldifexport/internal/destination"
	"github.com/hupe1980/ldifexport/internal/logging"
	"github.com/hupe1980/ldifexport/internal/pipeline"
)

// Lifecycle errors.
var (
	ErrNotOpen = errors.New("export session is not open")
	ErrClosed  = errors.New("export session is closed")
)

// State is the session lifecycle state.
type State int

// Session states.
const (
	Unopened State = iota
	Open
	Closed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Unopened:
		return "unopened"
	case Open:
		return "open"
	case Closed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Session is one export run against one target. Writes through the sink are
// single-writer, and the writer must stop writing before Close is called.
// State transitions are guarded, so concurrent Close calls are safe.
type Session struct {
	target   destination.Target
	policy   destination.ConflictPolicy
	opts     pipeline.Options
	resolver *destination.Resolver
	logger   *slog.Logger

	mu       sync.Mutex
	state    State
	openErr  error
	dest     *destination.Destination
	builder  *pipeline.Builder
	warnings []error
	result   pipeline.Result
	closeErr error

	// buildReported is set once a build failure was returned by Sink.
	buildReported bool
}

// Option configures a Session.
type Option func(*Session)

// WithResolver overrides the destination resolver.
func WithResolver(r *destination.Resolver) Option {
	return func(s *Session) {
		s.resolver = r
	}
}

// WithLogger sets a logger for the Session.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) {
		s.logger = logger
	}
}

// New creates an unopened session. opts is copied.
func New(target destination.Target, policy destination.ConflictPolicy, opts pipeline.Options, sopts ...Option) *Session {
	s := &Session{
		target: target,
		policy: policy,
		opts:   opts,
		logger: slog.Default(),
	}

	for _, o := range sopts {
		o(s)
	}

	if s.resolver == nil {
		s.resolver = destination.NewResolver(destination.WithLogger(s.logger))
	}

	s.builder = pipeline.NewBuilder(s.opts, pipeline.WithLogger(s.logger))

	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Open resolves the destination. Options that cannot build are rejected
// before anything on disk changes. Open runs at most once; a failed open is
// remembered and returned again, and the session can still be closed.
func (s *Session) Open() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != Unopened || s.openErr != nil {
		return s.openErr
	}

	if err := s.opts.Preflight(); err != nil {
		s.openErr = err
		return err
	}

	dest, err := s.resolver.Resolve(s.target, s.policy)
	if err != nil {
		s.openErr = err
		return err
	}

	s.dest = dest
	if dest.Warning != nil {
		s.warnings = append(s.warnings, dest.Warning)
	}

	s.state = Open

	s.logger.Info("export session opened",
		logging.Path(s.target.String()),
		logging.Policy(s.policy.String()),
	)

	return nil
}

// Sink returns the pipeline's writable end, building the pipeline on first
// use. If the build fails, a file created by Open is removed.
func (s *Session) Sink() (*pipeline.Sink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Unopened:
		return nil, ErrNotOpen
	case Closed:
		return nil, ErrClosed
	}

	sink, err := s.builder.Build(s.dest.Writer)
	if err != nil && !s.buildReported {
		s.buildReported = true
		s.discardDestination()
	}

	return sink, err
}

// discardDestination closes the destination and removes the file if this
// session created it, so nothing is left behind by a failed build.
func (s *Session) discardDestination() {
	if err := s.dest.Discard(); err != nil {
		s.warnings = append(s.warnings, fmt.Errorf("discarding export destination %s: %w", s.target, err))

		s.logger.Warn("could not remove export file after failed build",
			logging.Path(s.target.String()),
			logging.Err(err),
		)
	}
}

// Warnings returns non-fatal problems seen so far.
func (s *Session) Warnings() []error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return append([]error(nil), s.warnings...)
}

// Close releases the pipeline layers, then the destination. Failures are
// aggregated. An open session whose sink was never requested still builds
// the pipeline so that framing such as the gzip trailer and the digest are
// produced. A build failure already returned by Sink is not reported again.
// Closing an unopened session only marks it closed. A second Close returns
// the first outcome.
func (s *Session) Close() (pipeline.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Closed:
		return s.result, s.closeErr
	case Unopened:
		s.state = Closed
		return s.result, nil
	}

	s.state = Closed

	var errs []error

	if !s.builder.Built() {
		s.logger.Debug("finalizing unused pipeline", logging.Path(s.target.String()))
	}

	sink, err := s.builder.Build(s.dest.Writer)
	if err != nil {
		if !s.buildReported {
			errs = append(errs, err)
			s.discardDestination()
		}
	} else {
		res, cerr := sink.Close()
		s.result = res

		if s.target.IsFile() && s.policy == destination.Append && !s.dest.Created {
			s.result.Appended = true
			s.result.Offset = s.dest.Offset
		}

		if cerr != nil {
			errs = append(errs, cerr)
		}
	}

	if err := s.dest.Close(); err != nil {
		errs = append(errs, fmt.Errorf("closing export destination %s: %w", s.target, err))
	}

	s.closeErr = errors.Join(errs...)

	if s.closeErr != nil {
		s.logger.Error("export session closed with errors",
			logging.Path(s.target.String()),
			logging.Err(s.closeErr),
		)
	} else {
		s.logger.Info("export session closed",
			logging.Path(s.target.String()),
			slog.Any("layers", s.result.Layers),
			slog.Int64("bytes", s.result.BytesOut),
		)
	}

	return s.result, s.closeErr
}
