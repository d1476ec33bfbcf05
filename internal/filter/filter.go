package filter

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	ber "github.com/go-asn1-ber/asn1-ber"
	"github.com/go-ldap/ldap/v3"

	"github.com/hupe1980/ldifexport/internal/entry"
)

// ErrUnsupported is returned when a filter uses a component the in-memory
// evaluator cannot decide, such as extensible matching.
var ErrUnsupported = errors.New("unsupported filter component")

// Matcher is the interface for all entry predicates.
// Matchers are stateless and safe for concurrent use.
type Matcher interface {
	// Matches reports whether the entry satisfies the predicate. An error
	// means the predicate could not be evaluated and must not be read as a
	// negative match.
	Matches(e *entry.Entry) (bool, error)
}

// Func adapts an ordinary function to the Matcher interface.
type Func func(e *entry.Entry) (bool, error)

// Matches calls f(e).
func (f Func) Matches(e *entry.Entry) (bool, error) {
	return f(e)
}

// compile-time interface conformance check.
var _ Matcher = (*Filter)(nil)

// Filter is a compiled LDAP search filter.
type Filter struct {
	raw    string
	packet *ber.Packet
}

// Compile parses an RFC 4515 filter string such as "(&(objectClass=person)(uid=a*))".
func Compile(expr string) (*Filter, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "(") {
		expr = "(" + expr + ")"
	}

	packet, err := ldap.CompileFilter(expr)
	if err != nil {
		return nil, fmt.Errorf("compiling filter %q: %w", expr, err)
	}

	return &Filter{raw: expr, packet: packet}, nil
}

// CompileAll compiles every expression in order and fails on the first bad one.
func CompileAll(exprs []string) ([]Matcher, error) {
	out := make([]Matcher, 0, len(exprs))

	for _, e := range exprs {
		f, err := Compile(e)
		if err != nil {
			return nil, err
		}

		out = append(out, f)
	}

	return out, nil
}

// String returns the filter in its source form.
func (f *Filter) String() string {
	return f.raw
}

// Matches evaluates the filter against the entry.
func (f *Filter) Matches(e *entry.Entry) (bool, error) {
	ok, err := evaluate(f.packet, e)
	if err != nil {
		return false, fmt.Errorf("evaluating %s: %w", f.raw, err)
	}

	return ok, nil
}

func evaluate(p *ber.Packet, e *entry.Entry) (bool, error) {
	switch p.Tag {
	case ldap.FilterAnd:
		for _, child := range p.Children {
			ok, err := evaluate(child, e)
			if err != nil || !ok {
				return false, err
			}
		}

		return true, nil

	case ldap.FilterOr:
		for _, child := range p.Children {
			ok, err := evaluate(child, e)
			if err != nil {
				return false, err
			}

			if ok {
				return true, nil
			}
		}

		return false, nil

	case ldap.FilterNot:
		if len(p.Children) != 1 {
			return false, fmt.Errorf("malformed NOT filter with %d operands", len(p.Children))
		}

		ok, err := evaluate(p.Children[0], e)
		if err != nil {
			return false, err
		}

		return !ok, nil

	case ldap.FilterPresent:
		return e.Has(packetString(p)), nil

	case ldap.FilterEqualityMatch, ldap.FilterApproxMatch,
		ldap.FilterGreaterOrEqual, ldap.FilterLessOrEqual:
		attr, assertion, err := assertionPair(p)
		if err != nil {
			return false, err
		}

		return anyValue(e.ValuesOf(attr), func(v string) bool {
			return compareValue(p.Tag, v, assertion)
		}), nil

	case ldap.FilterSubstrings:
		return matchSubstrings(p, e)

	default:
		return false, fmt.Errorf("%w: %s", ErrUnsupported, filterName(p.Tag))
	}
}

func compareValue(tag ber.Tag, value, assertion string) bool {
	switch tag {
	case ldap.FilterEqualityMatch:
		return strings.EqualFold(value, assertion)
	case ldap.FilterApproxMatch:
		return approx(value) == approx(assertion)
	case ldap.FilterGreaterOrEqual:
		return order(value, assertion) >= 0
	case ldap.FilterLessOrEqual:
		return order(value, assertion) <= 0
	}

	return false
}

// order compares numerically when both sides are integers, otherwise by
// case-folded string ordering.
func order(value, assertion string) int {
	a, errA := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	b, errB := strconv.ParseInt(strings.TrimSpace(assertion), 10, 64)

	if errA == nil && errB == nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}

	return strings.Compare(strings.ToLower(value), strings.ToLower(assertion))
}

func approx(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), ""))
}

func matchSubstrings(p *ber.Packet, e *entry.Entry) (bool, error) {
	if len(p.Children) != 2 {
		return false, fmt.Errorf("malformed substrings filter")
	}

	attr := packetString(p.Children[0])
	parts := p.Children[1].Children

	return anyValue(e.ValuesOf(attr), func(v string) bool {
		return substringsMatch(strings.ToLower(v), parts)
	}), nil
}

func substringsMatch(value string, parts []*ber.Packet) bool {
	pos := 0

	for _, part := range parts {
		s := strings.ToLower(packetString(part))

		switch part.Tag {
		case ldap.FilterSubstringsInitial:
			if !strings.HasPrefix(value, s) {
				return false
			}

			pos = len(s)
		case ldap.FilterSubstringsAny:
			idx := strings.Index(value[pos:], s)
			if idx < 0 {
				return false
			}

			pos += idx + len(s)
		case ldap.FilterSubstringsFinal:
			if len(value)-len(s) < pos || !strings.HasSuffix(value, s) {
				return false
			}
		}
	}

	return true
}

func assertionPair(p *ber.Packet) (string, string, error) {
	if len(p.Children) != 2 {
		return "", "", fmt.Errorf("malformed %s filter", filterName(p.Tag))
	}

	return packetString(p.Children[0]), packetString(p.Children[1]), nil
}

func anyValue(values [][]byte, pred func(string) bool) bool {
	for _, v := range values {
		if pred(string(v)) {
			return true
		}
	}

	return false
}

func packetString(p *ber.Packet) string {
	if s, ok := p.Value.(string); ok {
		return s
	}

	if p.Data != nil {
		return p.Data.String()
	}

	return ""
}

func filterName(tag ber.Tag) string {
	if name, ok := ldap.FilterMap[uint64(tag)]; ok {
		return name
	}

	return fmt.Sprintf("filter tag %d", tag)
}
