// Package ldifexport provides a public Go API for exporting directory entries
// to LDIF.
//
// Entries are read from a YAML or JSON document stream, selected by branch,
// search filter and attribute rules, and written through an optional
// compress / encrypt / hash pipeline to a file or an io.Writer.
//
// Basic usage:
//
//	res, err := ldifexport.ExportFile(ctx, "entries.yaml",
//	    ldifexport.WithOutputFile("backup.ldif"),
//	    ldifexport.WithExcludeBranches("ou=archive,dc=example,dc=com"),
//	    ldifexport.WithHash(),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(res.Digest)
package ldifexport

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/hupe1980/ldifexport/internal/config"
	"github.com/hupe1980/ldifexport/internal/destination"
	"github.com/hupe1980/ldifexport/internal/exporter"
	"github.com/hupe1980/ldifexport/internal/logging"
	"github.com/hupe1980/ldifexport/internal/metrics"
	"github.com/hupe1980/ldifexport/internal/pipeline"
	"github.com/hupe1980/ldifexport/internal/selection"
	"github.com/hupe1980/ldifexport/internal/session"
	"github.com/hupe1980/ldifexport/internal/source"
)

// Errors reported by Export. Use errors.Is to test for them.
var (
	ErrNoOutput             = errors.New("no output configured")
	ErrDestinationConflict  = destination.ErrDestinationConflict
	ErrCreateFailed         = destination.ErrCreateFailed
	ErrPipelineConstruction = pipeline.ErrPipelineConstruction
	ErrCloseFailure         = pipeline.ErrCloseFailure
	ErrFilterEvaluation     = selection.ErrFilterEvaluation
	ErrWriteFailed          = exporter.ErrWriteFailed
)

// Conflict policies for WithConflictPolicy.
const (
	ConflictFail      = "fail"
	ConflictAppend    = "append"
	ConflictOverwrite = "overwrite"
)

// EncryptFunc returns a writer that encrypts into w. Closing it must finish
// the ciphertext without closing w.
type EncryptFunc func(w io.Writer) (io.WriteCloser, error)

// SignFunc signs the SHA-256 digest of the written bytes.
type SignFunc func(digest []byte) ([]byte, error)

// Result summarizes a finished export.
type Result struct {
	ExportID string

	Read              int
	Written           int
	Excluded          int
	Skipped           int
	AttributesDropped int

	// Digest is the hex SHA-256 of the written bytes, empty without WithHash.
	Digest    string
	Signature []byte

	// Layers lists the output layers, innermost first.
	Layers       []string
	BytesWritten int64

	// Appended is set when the output was appended to an existing file.
	// Digest then covers only the BytesWritten bytes starting at Offset.
	Appended bool
	Offset   int64

	// Warnings holds non-fatal problems such as failing to restrict the
	// permissions of a new file.
	Warnings []error
	Duration time.Duration
}

// Export reads entries from src and writes the selected entries as LDIF.
// The result is returned even when the export fails part-way.
func Export(ctx context.Context, src io.Reader, opts ...Option) (*Result, error) {
	o := &options{logger: logging.Discard()}
	for _, opt := range opts {
		opt(o)
	}

	target, err := o.target()
	if err != nil {
		return nil, err
	}

	p, err := o.profileWithOverrides()
	if err != nil {
		return nil, err
	}

	policy, err := p.Policy()
	if err != nil {
		return nil, err
	}

	mode, err := p.FilterErrorMode()
	if err != nil {
		return nil, err
	}

	criteria, err := p.Criteria()
	if err != nil {
		return nil, err
	}

	po := p.PipelineOptions()

	po.Encrypter = o.encrypt
	po.Signer = o.sign

	sess := session.New(target, policy, po,
		session.WithResolver(destination.NewResolver(destination.WithLogger(o.logger))),
		session.WithLogger(o.logger),
	)

	var collector *metrics.Collector
	if o.registry != nil {
		collector = metrics.NewCollector(o.registry)
	}

	x := exporter.New(sess, selection.New(criteria),
		exporter.WithLDIFOptions(p.LDIFOptions()...),
		exporter.WithFilterErrorMode(mode),
		exporter.WithWorkers(o.workers),
		exporter.WithMetrics(collector),
		exporter.WithLogger(o.logger),
	)

	stats, err := x.Run(ctx, source.NewDecoder(src))

	return toResult(stats), err
}

// ExportFile exports the entries stored at path. Paths ending in ".gz" are
// decompressed; "-" reads stdin.
func ExportFile(ctx context.Context, path string, opts ...Option) (*Result, error) {
	rc, err := source.Open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return Export(ctx, rc, opts...)
}

func toResult(s exporter.Stats) *Result {
	return &Result{
		ExportID:          s.ExportID,
		Read:              s.Read,
		Written:           s.Written,
		Excluded:          s.Excluded,
		Skipped:           s.Skipped,
		AttributesDropped: s.AttributesDropped,
		Digest:            s.Result.HexDigest(),
		Signature:         s.Result.Signature,
		Layers:            s.Result.Layers,
		BytesWritten:      s.Result.BytesOut,
		Appended:          s.Result.Appended,
		Offset:            s.Result.Offset,
		Warnings:          s.Warnings,
		Duration:          s.Duration,
	}
}

// target returns the configured destination.
func (o *options) target() (destination.Target, error) {
	switch {
	case o.writer != nil && o.output != "":
		return destination.Target{}, errors.New("WithWriter and WithOutputFile are mutually exclusive")
	case o.writer != nil:
		return destination.WriterTarget(o.writer), nil
	case o.output != "":
		return destination.FileTarget(o.output), nil
	default:
		return destination.Target{}, ErrNoOutput
	}
}

// profileWithOverrides loads the profile and applies the options on top.
func (o *options) profileWithOverrides() (*config.Profile, error) {
	p, err := config.LoadProfile(o.profile)
	if err != nil {
		return nil, err
	}

	if o.conflict != "" {
		p.ConflictPolicy = o.conflict
	}

	if o.skipFilterErrors {
		p.OnFilterError = exporter.Skip.String()
	}

	p.Compress = p.Compress || o.compress
	p.Hash = p.Hash || o.hash || o.sign != nil
	p.SignHash = p.SignHash || o.sign != nil
	p.Encrypt = p.Encrypt || o.encrypt != nil
	p.TypesOnly = p.TypesOnly || o.typesOnly

	if o.compressionLevel != 0 {
		p.CompressionLevel = o.compressionLevel
	}

	if o.wrapColumn != 0 {
		p.WrapColumn = o.wrapColumn
	}

	if o.bufferSize != 0 {
		p.BufferSize = o.bufferSize
	}

	p.ExcludeBranches = append(p.ExcludeBranches, o.excludeBranches...)
	p.IncludeBranches = append(p.IncludeBranches, o.includeBranches...)
	p.ExcludeFilters = append(p.ExcludeFilters, o.excludeFilters...)
	p.IncludeFilters = append(p.IncludeFilters, o.includeFilters...)
	p.ExcludeAttributes = append(p.ExcludeAttributes, o.excludeAttributes...)
	p.IncludeAttributes = append(p.IncludeAttributes, o.includeAttributes...)

	if o.includeObjectClasses != nil {
		p.IncludeObjectClasses = o.includeObjectClasses
	}

	if o.includeOperational != nil {
		p.IncludeOperationalAttributes = o.includeOperational
	}

	if o.includeVirtual != nil {
		p.IncludeVirtualAttributes = o.includeVirtual
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}
