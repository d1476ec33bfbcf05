package pipeline

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"hash"
	"io"

	"github.com/klauspost/compress/gzip"
)

// Layer names.
const (
	LayerHash     = "hash"
	LayerEncrypt  = "encrypt"
	LayerCompress = "compress"
	LayerBuffer   = "buffer"
	LayerSign     = "sign"
)

// Layer is one sink-transforming capability. Wrap returns a writer that
// transforms bytes into w. Closing the returned writer must flush everything
// it holds into w but must not close w.
type Layer interface {
	Name() string
	Wrap(w io.Writer) (io.WriteCloser, error)
}

// Encrypter is the extension hook behind the encrypt layer.
type Encrypter interface {
	// Encrypt returns a writer that encrypts into w. Close finishes the
	// ciphertext without closing w.
	Encrypt(w io.Writer) (io.WriteCloser, error)
}

// EncrypterFunc adapts a function to Encrypter.
type EncrypterFunc func(w io.Writer) (io.WriteCloser, error)

// Encrypt calls f(w).
func (f EncrypterFunc) Encrypt(w io.Writer) (io.WriteCloser, error) { return f(w) }

// Signer is the extension hook that signs the finalized digest.
type Signer interface {
	Sign(digest []byte) ([]byte, error)
}

// SignerFunc adapts a function to Signer.
type SignerFunc func(digest []byte) ([]byte, error)

// Sign calls f(digest).
func (f SignerFunc) Sign(digest []byte) ([]byte, error) { return f(digest) }

// ---------------------------------------------------------------------------
// hash
// ---------------------------------------------------------------------------

// DigestAlgorithm names the digest computed by the hash layer.
const DigestAlgorithm = "SHA-256"

// HashLayer computes a SHA-256 digest over every byte passed to the writer
// it wraps.
type HashLayer struct {
	h hash.Hash
}

// NewHashLayer creates a hash layer.
func NewHashLayer() *HashLayer {
	return &HashLayer{h: sha256.New()}
}

// Name returns "hash".
func (l *HashLayer) Name() string { return LayerHash }

// Wrap returns a writer that forwards to w and hashes what w accepted.
func (l *HashLayer) Wrap(w io.Writer) (io.WriteCloser, error) {
	return &hashWriter{w: w, h: l.h}, nil
}

// Sum returns the digest of everything written so far.
func (l *HashLayer) Sum() []byte {
	return l.h.Sum(nil)
}

type hashWriter struct {
	w io.Writer
	h hash.Hash
}

func (hw *hashWriter) Write(p []byte) (int, error) {
	n, err := hw.w.Write(p)
	hw.h.Write(p[:n])

	return n, err
}

func (hw *hashWriter) Close() error { return nil }

// HexDigest renders a digest as lower-case hex.
func HexDigest(digest []byte) string {
	return hex.EncodeToString(digest)
}

// ---------------------------------------------------------------------------
// encrypt
// ---------------------------------------------------------------------------

// EncryptLayer delegates to an Encrypter hook. A nil hook fails to build.
type EncryptLayer struct {
	enc Encrypter
}

// NewEncryptLayer creates an encrypt layer.
func NewEncryptLayer(enc Encrypter) *EncryptLayer {
	return &EncryptLayer{enc: enc}
}

// Name returns "encrypt".
func (l *EncryptLayer) Name() string { return LayerEncrypt }

// Wrap calls the hook.
func (l *EncryptLayer) Wrap(w io.Writer) (io.WriteCloser, error) {
	if l.enc == nil {
		return nil, ErrNoImplementation
	}

	return l.enc.Encrypt(w)
}

// ---------------------------------------------------------------------------
// compress
// ---------------------------------------------------------------------------

// CompressLayer gzip-compresses into the wrapped writer.
type CompressLayer struct {
	level int
}

// NewCompressLayer creates a compress layer. Level follows the gzip package
// constants; 0 selects gzip.DefaultCompression.
func NewCompressLayer(level int) *CompressLayer {
	if level == 0 {
		level = gzip.DefaultCompression
	}

	return &CompressLayer{level: level}
}

// Name returns "compress".
func (l *CompressLayer) Name() string { return LayerCompress }

// Wrap returns a gzip writer. Close writes the gzip trailer.
func (l *CompressLayer) Wrap(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, l.level)
}

// ---------------------------------------------------------------------------
// buffer
// ---------------------------------------------------------------------------

// DefaultBufferSize is the buffer layer's default capacity.
const DefaultBufferSize = 64 * 1024

// BufferLayer batches small writes. Bytes reach the inner layers when the
// buffer fills, on Flush and on Close.
type BufferLayer struct {
	size int
}

// NewBufferLayer creates a buffer layer; size <= 0 selects DefaultBufferSize.
func NewBufferLayer(size int) *BufferLayer {
	if size <= 0 {
		size = DefaultBufferSize
	}

	return &BufferLayer{size: size}
}

// Name returns "buffer".
func (l *BufferLayer) Name() string { return LayerBuffer }

// Wrap returns a buffered writer whose Close flushes.
func (l *BufferLayer) Wrap(w io.Writer) (io.WriteCloser, error) {
	return &bufferWriter{Writer: bufio.NewWriterSize(w, l.size)}, nil
}

type bufferWriter struct {
	*bufio.Writer
}

func (bw *bufferWriter) Close() error { return bw.Flush() }

// ---------------------------------------------------------------------------
// counting
// ---------------------------------------------------------------------------

// countingWriter tracks bytes accepted by the wrapped writer.
type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)

	return n, err
}
