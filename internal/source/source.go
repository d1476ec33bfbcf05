// Package source streams directory entries into the exporter.
//
// The on-disk format is a stream of YAML (or JSON) documents, one entry per
// document:
//
//	dn: uid=alice,ou=people,dc=example,dc=com
//	attributes:
//	  objectClass: [top, inetOrgPerson]
//	  cn: Alice Liddell
//	  jpegPhoto: !!binary /9j/4AAQ...
//	  createTimestamp: "20240101120000Z"
//	operational: [createTimestamp]
//	virtual: [isMemberOf]
//
// Attribute order is preserved. Values tagged !!binary are base64 decoded.
package source

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/ldifexport/internal/entry"
)

// Source yields entries until it returns io.EOF.
type Source interface {
	Next(ctx context.Context) (*entry.Entry, error)
}

// compile-time interface conformance checks.
var (
	_ Source = (*Decoder)(nil)
	_ Source = (*Slice)(nil)
)

// document is the wire shape of one entry.
type document struct {
	DN          string    `yaml:"dn"`
	Attributes  yaml.Node `yaml:"attributes"`
	Operational []string  `yaml:"operational"`
	Virtual     []string  `yaml:"virtual"`
}

// Decoder reads entries from a multi-document YAML stream.
type Decoder struct {
	dec *yaml.Decoder
	doc int
}

// NewDecoder creates a decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{dec: yaml.NewDecoder(r)}
}

// Next decodes the next non-empty document. It returns io.EOF at the end of
// the stream.
func (d *Decoder) Next(ctx context.Context) (*entry.Entry, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var node yaml.Node

		if err := d.dec.Decode(&node); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}

			return nil, fmt.Errorf("decoding document %d: %w", d.doc+1, err)
		}

		d.doc++

		if isEmpty(&node) {
			continue
		}

		e, err := decodeEntry(&node)
		if err != nil {
			return nil, fmt.Errorf("document %d: %w", d.doc, err)
		}

		return e, nil
	}
}

func isEmpty(n *yaml.Node) bool {
	if n.Kind == yaml.DocumentNode {
		if len(n.Content) == 0 {
			return true
		}

		n = n.Content[0]
	}

	return n.Kind == yaml.ScalarNode && n.ShortTag() == "!!null"
}

func decodeEntry(n *yaml.Node) (*entry.Entry, error) {
	var doc document
	if err := n.Decode(&doc); err != nil {
		return nil, err
	}

	if strings.TrimSpace(doc.DN) == "" {
		return nil, errors.New("missing dn")
	}

	e := entry.New(doc.DN)

	if err := decodeAttributes(e, &doc.Attributes); err != nil {
		return nil, fmt.Errorf("entry %s: %w", doc.DN, err)
	}

	markAttributes(e, doc.Operational, func(a *entry.Attribute) { a.Operational = true })
	markAttributes(e, doc.Virtual, func(a *entry.Attribute) { a.Virtual = true })

	return e, nil
}

func decodeAttributes(e *entry.Entry, n *yaml.Node) error {
	if n.Kind == 0 {
		return nil
	}

	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: attributes must be a mapping", n.Line)
	}

	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]

		values, err := decodeValues(val)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", key.Value, err)
		}

		e.AddBytes(key.Value, values...)
	}

	return nil
}

func decodeValues(n *yaml.Node) ([][]byte, error) {
	switch n.Kind {
	case yaml.ScalarNode:
		if n.ShortTag() == "!!null" {
			return nil, nil
		}

		v, err := scalarBytes(n)
		if err != nil {
			return nil, err
		}

		return [][]byte{v}, nil
	case yaml.SequenceNode:
		out := make([][]byte, 0, len(n.Content))

		for _, c := range n.Content {
			if c.Kind != yaml.ScalarNode {
				return nil, fmt.Errorf("line %d: values must be scalars", c.Line)
			}

			v, err := scalarBytes(c)
			if err != nil {
				return nil, err
			}

			out = append(out, v)
		}

		return out, nil
	default:
		return nil, fmt.Errorf("line %d: values must be a scalar or a list of scalars", n.Line)
	}
}

func scalarBytes(n *yaml.Node) ([]byte, error) {
	if n.ShortTag() == "!!binary" {
		b, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(n.Value), ""))
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid binary value: %w", n.Line, err)
		}

		return b, nil
	}

	return []byte(n.Value), nil
}

func markAttributes(e *entry.Entry, types []string, mark func(*entry.Attribute)) {
	for _, t := range types {
		want := entry.BaseType(t)

		for i := range e.Attributes {
			if e.Attributes[i].BaseType() == want {
				mark(&e.Attributes[i])
			}
		}
	}
}

// Slice is an in-memory Source.
type Slice struct {
	entries []*entry.Entry
	pos     int
}

// FromEntries returns a Source over entries.
func FromEntries(entries ...*entry.Entry) *Slice {
	return &Slice{entries: entries}
}

// Next returns the next entry or io.EOF.
func (s *Slice) Next(ctx context.Context) (*entry.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if s.pos >= len(s.entries) {
		return nil, io.EOF
	}

	e := s.entries[s.pos]
	s.pos++

	return e, nil
}

// ReadAll drains src.
func ReadAll(ctx context.Context, src Source) ([]*entry.Entry, error) {
	var out []*entry.Entry

	for {
		e, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out, nil
		}

		if err != nil {
			return out, err
		}

		out = append(out, e)
	}
}

// Open opens path for reading. "-" reads stdin. Files ending in ".gz" are
// transparently decompressed.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}

	f, err := os.Open(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}

	if !strings.HasSuffix(strings.ToLower(path), ".gz") {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("reading gzip %s: %w", path, err)
	}

	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	return errors.Join(g.Reader.Close(), g.f.Close())
}
