// Package entry provides the directory record model consumed by the export
// pipeline: a distinguished name and an ordered list of attributes.
package entry

import (
	"strings"
)

// ObjectClass is the attribute type naming an entry's object classes.
const ObjectClass = "objectclass"

// Attribute is a single attribute of an entry with all of its values.
type Attribute struct {
	// Type is the attribute description as stored (e.g. "cn" or "cn;lang-en").
	Type string

	// Values holds the raw attribute values in stored order.
	Values [][]byte

	// Operational marks server-maintained attributes (createTimestamp, ...).
	Operational bool

	// Virtual marks attributes computed at read time rather than stored.
	Virtual bool
}

// BaseType returns the lower-cased attribute type without options, so
// "CN;lang-en" becomes "cn".
func (a Attribute) BaseType() string {
	return BaseType(a.Type)
}

// IsObjectClass reports whether the attribute is objectClass.
func (a Attribute) IsObjectClass() bool {
	return a.BaseType() == ObjectClass
}

// BaseType normalizes an attribute description to its lower-cased base type.
func BaseType(description string) string {
	if i := strings.IndexByte(description, ';'); i >= 0 {
		description = description[:i]
	}

	return strings.ToLower(strings.TrimSpace(description))
}

// Entry represents one exported directory record.
type Entry struct {
	// DN is the entry's distinguished name in string form.
	DN string

	// Attributes are the entry's attributes in stored order.
	Attributes []Attribute
}

// New creates an entry with the given DN and no attributes.
func New(dn string) *Entry {
	return &Entry{DN: dn}
}

// Name returns the entry DN. It satisfies the record identity used by the
// selection policy.
func (e *Entry) Name() string {
	return e.DN
}

// Add appends string values to the attribute with the given type, creating
// the attribute if needed. It returns the entry for chaining.
func (e *Entry) Add(attrType string, values ...string) *Entry {
	raw := make([][]byte, len(values))
	for i, v := range values {
		raw[i] = []byte(v)
	}

	return e.AddBytes(attrType, raw...)
}

// AddBytes is Add for raw values.
func (e *Entry) AddBytes(attrType string, values ...[]byte) *Entry {
	if a := e.find(attrType); a != nil {
		a.Values = append(a.Values, values...)
		return e
	}

	e.Attributes = append(e.Attributes, Attribute{Type: attrType, Values: values})

	return e
}

// Get returns the attribute whose description matches attrType
// case-insensitively, and whether it was found.
func (e *Entry) Get(attrType string) (Attribute, bool) {
	if a := e.find(attrType); a != nil {
		return *a, true
	}

	return Attribute{}, false
}

// ValuesOf returns every value of every attribute whose base type equals the
// base type of attrType. Options such as ";lang-en" are ignored, which is how
// filter evaluation treats attribute subtypes.
func (e *Entry) ValuesOf(attrType string) [][]byte {
	base := BaseType(attrType)

	var out [][]byte

	for _, a := range e.Attributes {
		if a.BaseType() == base {
			out = append(out, a.Values...)
		}
	}

	return out
}

// Has reports whether the entry carries at least one value of attrType.
func (e *Entry) Has(attrType string) bool {
	return len(e.ValuesOf(attrType)) > 0
}

// Filtered returns a shallow copy of the entry keeping only the attributes for
// which keep returns true, together with the number of dropped attributes.
func (e *Entry) Filtered(keep func(Attribute) bool) (*Entry, int) {
	out := &Entry{DN: e.DN, Attributes: make([]Attribute, 0, len(e.Attributes))}
	dropped := 0

	for _, a := range e.Attributes {
		if keep(a) {
			out.Attributes = append(out.Attributes, a)
		} else {
			dropped++
		}
	}

	return out, dropped
}

func (e *Entry) find(attrType string) *Attribute {
	for i := range e.Attributes {
		if strings.EqualFold(e.Attributes[i].Type, attrType) {
			return &e.Attributes[i]
		}
	}

	return nil
}
