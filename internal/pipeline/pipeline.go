// Package pipeline composes the output layers that sit between the record
// serializer and the raw destination sink.
//
// Layers are constructed innermost first, directly over the raw sink:
//
//	raw <- hash <- encrypt <- compress <- buffer <- serializer
//
// so serialized text is compressed before encryption, and the digest covers
// exactly the bytes that reach the raw sink. The digest equals that of the
// compressed stream only while encryption is off; with encryption it covers
// the ciphertext. Every layer is optional except the buffer. Close releases
// layers in reverse construction order.
package pipeline

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/hupe1980/ldifexport/internal/logging"
)

// Options selects the layers to build. Options is copied by NewBuilder;
// changing the caller's value afterwards has no effect.
type Options struct {
	// Compress enables the gzip layer.
	Compress bool
	// CompressionLevel is passed to gzip (0 = default).
	CompressionLevel int

	// Encrypt enables the encrypt layer, backed by Encrypter.
	Encrypt   bool
	Encrypter Encrypter

	// Hash enables the SHA-256 layer.
	Hash bool
	// SignHash signs the digest with Signer at close. Requires Hash.
	SignHash bool
	Signer   Signer

	// BufferSize sets the buffer layer capacity (<= 0 = default).
	BufferSize int
}

// Validate checks option combinations that can be rejected up front.
func (o Options) Validate() error {
	if o.SignHash && !o.Hash {
		return fmt.Errorf("signing the hash requires hashing to be enabled")
	}

	return nil
}

// Preflight reports, as a *ConstructionError, everything that can be
// rejected before the destination is opened: invalid combinations and
// enabled hooks without an implementation.
func (o Options) Preflight() error {
	if err := o.Validate(); err != nil {
		return &ConstructionError{Layer: LayerSign, Err: err}
	}

	if o.Encrypt && o.Encrypter == nil {
		return &ConstructionError{Layer: LayerEncrypt, Err: ErrNoImplementation}
	}

	if o.SignHash && o.Signer == nil {
		return &ConstructionError{Layer: LayerSign, Err: ErrNoImplementation}
	}

	return nil
}

// Layers returns the configured layers, innermost first. The returned hash
// layer is nil when hashing is disabled.
func (o Options) Layers() ([]Layer, *HashLayer) {
	var (
		layers []Layer
		hl     *HashLayer
	)

	if o.Hash {
		hl = NewHashLayer()
		layers = append(layers, hl)
	}

	if o.Encrypt {
		layers = append(layers, NewEncryptLayer(o.Encrypter))
	}

	if o.Compress {
		layers = append(layers, NewCompressLayer(o.CompressionLevel))
	}

	layers = append(layers, NewBufferLayer(o.BufferSize))

	return layers, hl
}

// Builder builds the pipeline once. Further Build calls return the first
// outcome.
type Builder struct {
	opts   Options
	logger *slog.Logger

	mu   sync.Mutex
	done bool
	sink *Sink
	err  error
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithLogger sets a logger for the Builder.
func WithLogger(logger *slog.Logger) BuilderOption {
	return func(b *Builder) {
		b.logger = logger
	}
}

// NewBuilder creates a builder for a snapshot of opts.
func NewBuilder(opts Options, bopts ...BuilderOption) *Builder {
	b := &Builder{opts: opts, logger: slog.Default()}

	for _, o := range bopts {
		o(b)
	}

	return b
}

// Built reports whether Build has run.
func (b *Builder) Built() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.done
}

// Build wraps raw with the configured layers. It runs at most once.
func (b *Builder) Build(raw io.Writer) (*Sink, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.done {
		return b.sink, b.err
	}

	b.done = true
	b.sink, b.err = build(raw, b.opts, b.logger)

	return b.sink, b.err
}

type builtLayer struct {
	name string
	w    io.WriteCloser
}

func build(raw io.Writer, opts Options, logger *slog.Logger) (*Sink, error) {
	if err := opts.Preflight(); err != nil {
		return nil, err
	}

	layers, hl := opts.Layers()

	counter := &countingWriter{w: raw}
	built := make([]builtLayer, 0, len(layers))

	var current io.Writer = counter

	for _, l := range layers {
		w, err := l.Wrap(current)
		if err != nil {
			cleanup := release(built)

			logger.Error("pipeline construction failed",
				logging.Layer(l.Name()),
				logging.Err(err),
			)

			return nil, &ConstructionError{Layer: l.Name(), Err: err, Cleanup: cleanup.asError()}
		}

		built = append(built, builtLayer{name: l.Name(), w: w})
		current = w
	}

	names := make([]string, len(built))
	for i, bl := range built {
		names[i] = bl.name
	}

	logger.Debug("pipeline built", slog.Any("layers", names))

	s := &Sink{
		out:     current,
		flusher: built[len(built)-1].w.(flusher),
		layers:  built,
		hash:    hl,
		counter: counter,
		names:   names,
	}

	if opts.SignHash {
		s.signer = opts.Signer
	}

	return s, nil
}

type flusher interface {
	Flush() error
}

// Result describes a closed pipeline.
type Result struct {
	// Layers lists the layers in construction order (innermost first).
	Layers []string
	// Digest is the SHA-256 over the raw bytes, nil without hashing.
	Digest []byte
	// Signature is the signer's output, nil without signing.
	Signature []byte
	// Released lists the layers that released cleanly, outermost first.
	Released []string
	// BytesIn counts bytes accepted from the serializer.
	BytesIn int64
	// BytesOut counts bytes accepted by the raw sink.
	BytesOut int64

	// Appended is set by the session when the bytes went to the end of an
	// existing file. Digest then covers only the segment starting at Offset.
	Appended bool
	Offset   int64
}

// HexDigest returns the digest as hex, or "".
func (r Result) HexDigest() string {
	if r.Digest == nil {
		return ""
	}

	return HexDigest(r.Digest)
}

// Sink is the writable end of a built pipeline. It is not safe for
// concurrent writes.
type Sink struct {
	out     io.Writer
	flusher flusher
	layers  []builtLayer
	hash    *HashLayer
	signer  Signer
	counter *countingWriter
	names   []string

	bytesIn  int64
	closed   bool
	result   Result
	closeErr error
}

// Write writes p into the outermost layer.
func (s *Sink) Write(p []byte) (int, error) {
	if s.closed {
		return 0, ErrSinkClosed
	}

	n, err := s.out.Write(p)
	s.bytesIn += int64(n)

	return n, err
}

// Flush pushes buffered bytes into the inner layers.
func (s *Sink) Flush() error {
	if s.closed {
		return ErrSinkClosed
	}

	return s.flusher.Flush()
}

// Layers returns the layer names in construction order.
func (s *Sink) Layers() []string {
	return append([]string(nil), s.names...)
}

// Close releases every layer outermost first, then finalizes the digest and
// signs it when requested. Every layer gets its chance to release even when
// an earlier one failed. A second Close returns the first outcome.
func (s *Sink) Close() (Result, error) {
	if s.closed {
		return s.result, s.closeErr
	}

	s.closed = true

	rel := release(s.layers)

	res := Result{
		Layers:  s.Layers(),
		BytesIn: s.bytesIn,
	}

	if s.hash != nil {
		res.Digest = s.hash.Sum()

		if s.signer != nil {
			sig, err := s.signer.Sign(res.Digest)
			if err != nil {
				rel.failures = append(rel.failures, LayerError{Layer: LayerSign, Err: err})
			} else {
				res.Signature = sig
				rel.released = append(rel.released, LayerSign)
			}
		}
	}

	res.BytesOut = s.counter.n
	res.Released = rel.released

	s.result = res
	s.closeErr = rel.asError()

	return s.result, s.closeErr
}

type releaseOutcome struct {
	released []string
	failures []LayerError
}

func (r releaseOutcome) asError() error {
	if len(r.failures) == 0 {
		return nil
	}

	return &CloseError{Failures: r.failures, Released: r.released}
}

// release closes layers in reverse order, collecting failures.
func release(layers []builtLayer) releaseOutcome {
	var out releaseOutcome

	for i := len(layers) - 1; i >= 0; i-- {
		l := layers[i]
		if err := l.w.Close(); err != nil {
			out.failures = append(out.failures, LayerError{Layer: l.name, Err: err})
			continue
		}

		out.released = append(out.released, l.name)
	}

	return out
}

// IsConstructionError reports whether err is a pipeline construction failure
// and returns the failing layer name.
func IsConstructionError(err error) (string, bool) {
	var ce *ConstructionError
	if errors.As(err, &ce) {
		return ce.Layer, true
	}

	return "", false
}
