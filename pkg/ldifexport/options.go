package ldifexport

import (
	"io"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/ldifexport/internal/pipeline"
)

// Option configures an export.
// Use the With* functions to create Options.
type Option func(*options)

// options holds the internal configuration of an export.
type options struct {
	// Destination.
	output   string
	writer   io.Writer
	conflict string

	// Profile file applied before the options below.
	profile string

	// Pipeline.
	compress         bool
	compressionLevel int
	hash             bool
	encrypt          pipeline.Encrypter
	sign             pipeline.Signer
	bufferSize       int

	// LDIF.
	typesOnly  bool
	wrapColumn int

	// Selection.
	excludeBranches      []string
	includeBranches      []string
	excludeFilters       []string
	includeFilters       []string
	excludeAttributes    []string
	includeAttributes    []string
	includeObjectClasses *bool
	includeOperational   *bool
	includeVirtual       *bool
	skipFilterErrors     bool

	workers  int
	logger   *slog.Logger
	registry *prometheus.Registry
}

// --- Destination ---

// WithOutputFile writes to the file at path.
func WithOutputFile(path string) Option { return func(o *options) { o.output = path } }

// WithWriter writes to w. The writer is never closed.
func WithWriter(w io.Writer) Option { return func(o *options) { o.writer = w } }

// WithConflictPolicy sets what happens when the output file exists:
// ConflictFail (default), ConflictAppend or ConflictOverwrite.
func WithConflictPolicy(policy string) Option { return func(o *options) { o.conflict = policy } }

// WithProfile loads export settings from a profile file. Other options are
// applied on top of it.
func WithProfile(path string) Option { return func(o *options) { o.profile = path } }

// --- Pipeline ---

// WithCompression gzips the output at the given level (0 = default).
func WithCompression(level int) Option {
	return func(o *options) {
		o.compress = true
		o.compressionLevel = level
	}
}

// WithHash computes a SHA-256 digest of the written bytes.
func WithHash() Option { return func(o *options) { o.hash = true } }

// WithEncryption encrypts the (possibly compressed) output with fn.
func WithEncryption(fn EncryptFunc) Option {
	return func(o *options) { o.encrypt = pipeline.EncrypterFunc(fn) }
}

// WithSigner signs the digest with fn. It implies WithHash.
func WithSigner(fn SignFunc) Option {
	return func(o *options) { o.sign = pipeline.SignerFunc(fn) }
}

// WithHMACKey signs the digest with HMAC-SHA256 under key.
func WithHMACKey(key []byte) Option {
	s := pipeline.HMACSigner(key)

	return func(o *options) { o.sign = s }
}

// WithBufferSize sets the write buffer size in bytes.
func WithBufferSize(n int) Option { return func(o *options) { o.bufferSize = n } }

// --- LDIF ---

// WithTypesOnly writes attribute types without values.
func WithTypesOnly() Option { return func(o *options) { o.typesOnly = true } }

// WithWrapColumn folds lines longer than col columns.
func WithWrapColumn(col int) Option { return func(o *options) { o.wrapColumn = col } }

// --- Selection ---

// WithExcludeBranches skips entries at or below any of the DNs.
func WithExcludeBranches(dns ...string) Option {
	return func(o *options) { o.excludeBranches = append(o.excludeBranches, dns...) }
}

// WithIncludeBranches exports only entries at or below one of the DNs.
func WithIncludeBranches(dns ...string) Option {
	return func(o *options) { o.includeBranches = append(o.includeBranches, dns...) }
}

// WithExcludeFilters skips entries matching any of the LDAP filters.
func WithExcludeFilters(filters ...string) Option {
	return func(o *options) { o.excludeFilters = append(o.excludeFilters, filters...) }
}

// WithIncludeFilters exports only entries matching at least one of the LDAP
// filters.
func WithIncludeFilters(filters ...string) Option {
	return func(o *options) { o.includeFilters = append(o.includeFilters, filters...) }
}

// WithExcludeAttributes drops the attribute types.
func WithExcludeAttributes(types ...string) Option {
	return func(o *options) { o.excludeAttributes = append(o.excludeAttributes, types...) }
}

// WithIncludeAttributes keeps only the attribute types.
func WithIncludeAttributes(types ...string) Option {
	return func(o *options) { o.includeAttributes = append(o.includeAttributes, types...) }
}

// WithObjectClasses sets whether objectClass attributes are written.
func WithObjectClasses(include bool) Option {
	return func(o *options) { o.includeObjectClasses = &include }
}

// WithOperationalAttributes sets whether operational attributes are written.
func WithOperationalAttributes(include bool) Option {
	return func(o *options) { o.includeOperational = &include }
}

// WithVirtualAttributes sets whether virtual attributes are written.
func WithVirtualAttributes(include bool) Option {
	return func(o *options) { o.includeVirtual = &include }
}

// WithSkipFilterErrors skips entries that cannot be evaluated instead of
// failing the export.
func WithSkipFilterErrors() Option { return func(o *options) { o.skipFilterErrors = true } }

// --- Runtime ---

// WithWorkers sets how many goroutines evaluate the selection (0 = GOMAXPROCS).
func WithWorkers(n int) Option { return func(o *options) { o.workers = n } }

// WithLogger sets a logger. By default nothing is logged.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// WithMetrics registers export metrics on reg. The metrics can be registered
// only once, so pass a fresh registry to every export.
func WithMetrics(reg *prometheus.Registry) Option { return func(o *options) { o.registry = reg } }
