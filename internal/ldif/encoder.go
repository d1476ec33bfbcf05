// Package ldif encodes directory entries as LDIF (RFC 2849) change-free
// content records.
package ldif

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/hupe1980/ldifexport/internal/entry"
)

// DefaultWrapColumn is the customary LDIF line length. Zero disables folding.
const DefaultWrapColumn = 76

// Encoder writes entries to an io.Writer. Every record, including the last,
// is terminated by a blank line.
type Encoder struct {
	w          io.Writer
	wrapColumn int
	typesOnly  bool

	buf   bytes.Buffer
	count int
}

// Option configures an Encoder.
type Option func(*Encoder)

// WithWrapColumn folds lines longer than col bytes. Values <= 1 disable
// folding.
func WithWrapColumn(col int) Option {
	return func(e *Encoder) {
		e.wrapColumn = col
	}
}

// WithTypesOnly writes attribute types without their values.
func WithTypesOnly(typesOnly bool) Option {
	return func(e *Encoder) {
		e.typesOnly = typesOnly
	}
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer, opts ...Option) *Encoder {
	e := &Encoder{w: w}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Count returns the number of entries encoded so far.
func (e *Encoder) Count() int {
	return e.count
}

// Encode writes one entry with a single Write call on the underlying writer.
func (e *Encoder) Encode(ent *entry.Entry) error {
	e.buf.Reset()

	e.line("dn", []byte(ent.DN))

	for _, a := range ent.Attributes {
		if e.typesOnly {
			e.line(a.Type, nil)
			continue
		}

		for _, v := range a.Values {
			e.line(a.Type, v)
		}
	}

	e.buf.WriteByte('\n')

	if _, err := e.w.Write(e.buf.Bytes()); err != nil {
		return fmt.Errorf("writing entry %s: %w", ent.DN, err)
	}

	e.count++

	return nil
}

// line appends one attrval-spec, base64-encoding unsafe values.
func (e *Encoder) line(attrType string, value []byte) {
	var l []byte

	switch {
	case len(value) == 0:
		l = append([]byte(attrType), ':')
	case IsSafe(value):
		l = make([]byte, 0, len(attrType)+2+len(value))
		l = append(l, attrType...)
		l = append(l, ':', ' ')
		l = append(l, value...)
	default:
		enc := base64.StdEncoding.EncodeToString(value)
		l = make([]byte, 0, len(attrType)+3+len(enc))
		l = append(l, attrType...)
		l = append(l, ':', ':', ' ')
		l = append(l, enc...)
	}

	e.fold(l)
}

// fold writes l, splitting it into continuation lines that start with a
// single space.
func (e *Encoder) fold(l []byte) {
	col := e.wrapColumn
	if col <= 1 || len(l) <= col {
		e.buf.Write(l)
		e.buf.WriteByte('\n')

		return
	}

	e.buf.Write(l[:col])
	e.buf.WriteByte('\n')

	for rest := l[col:]; len(rest) > 0; {
		n := min(col-1, len(rest))

		e.buf.WriteByte(' ')
		e.buf.Write(rest[:n])
		e.buf.WriteByte('\n')

		rest = rest[n:]
	}
}

// IsSafe reports whether v can be written as an LDIF SAFE-STRING. Values that
// start with space, colon or '<', end with a space, or contain NUL, CR, LF or
// non-ASCII bytes must be base64 encoded.
func IsSafe(v []byte) bool {
	if len(v) == 0 {
		return true
	}

	switch v[0] {
	case ' ', ':', '<':
		return false
	}

	if v[len(v)-1] == ' ' {
		return false
	}

	for _, c := range v {
		if c == 0 || c == '\n' || c == '\r' || c > 0x7f {
			return false
		}
	}

	return true
}
