package output

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/hupe1980/ldifexport/internal/pipeline"
)

// Sidecar file suffixes.
const (
	DigestSuffix    = ".sha256"
	SignatureSuffix = ".sig"
)

// DigestLine formats a digest in sha256sum format for the file at path.
func DigestLine(hexDigest, path string) []byte {
	return fmt.Appendf(nil, "%s  %s\n", hexDigest, filepath.Base(path))
}

// SegmentLine describes the digest of bytes appended to an existing file.
// The line is not in sha256sum format because the digest does not cover the
// whole file. The segment can be checked with
// "tail -c +<offset+1> file | head -c <length> | sha256sum".
func SegmentLine(hexDigest, path string, offset, length int64) []byte {
	return fmt.Appendf(nil, "appended-segment file=%s offset=%d length=%d sha256=%s\n",
		filepath.Base(path), offset, length, hexDigest)
}

// SignatureLine formats a signature as a hex line.
func SignatureLine(sig []byte) []byte {
	return fmt.Appendf(nil, "%x\n", sig)
}

// WriteSidecars writes the digest and, when present, the signature next to
// the export at path. Nothing is written without a digest. For appends to an
// existing file the digest file holds a SegmentLine.
func WriteSidecars(path string, res pipeline.Result, opts ...FileWriterOption) error {
	if res.Digest == nil {
		return nil
	}

	line := DigestLine(res.HexDigest(), path)
	if res.Appended {
		line = SegmentLine(res.HexDigest(), path, res.Offset, res.BytesOut)
	}

	if err := NewFileWriter(path+DigestSuffix, opts...).Write(line); err != nil {
		return fmt.Errorf("writing digest: %w", err)
	}

	if res.Signature == nil {
		return nil
	}

	if err := NewFileWriter(path+SignatureSuffix, opts...).Write(SignatureLine(res.Signature)); err != nil {
		return fmt.Errorf("writing signature: %w", err)
	}

	return nil
}

// ReportDigest prints the digest and signature of a stream export to w.
func ReportDigest(w io.Writer, res pipeline.Result) error {
	if res.Digest == nil {
		return nil
	}

	sw := NewStreamWriter(w)

	if err := sw.Write(fmt.Appendf(nil, "sha256: %s\n", res.HexDigest())); err != nil {
		return err
	}

	if res.Signature == nil {
		return nil
	}

	return sw.Write(fmt.Appendf(nil, "signature: %x\n", res.Signature))
}
