// Package selection decides which entries an export includes and which of
// their attributes survive.
//
// [Policy.Decide] applies a fixed, short-circuiting precedence:
//
//  1. exclude branches
//  2. include branches
//  3. exclude filters
//  4. include filters
//  5. include
//
// [Policy.RetainAttribute] is independent of entry selection and is applied
// per attribute of an already included entry.
package selection

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"

	"github.com/hupe1980/ldifexport/internal/dn"
	"github.com/hupe1980/ldifexport/internal/entry"
	"github.com/hupe1980/ldifexport/internal/filter"
)

// ErrFilterEvaluation is the sentinel matched by every *EvaluationError.
var ErrFilterEvaluation = errors.New("filter evaluation failure")

// Decision is the outcome of evaluating an entry.
type Decision int

// Possible decisions.
const (
	Exclude Decision = iota
	Include
)

// String returns "include" or "exclude".
func (d Decision) String() string {
	if d == Include {
		return "include"
	}

	return "exclude"
}

// Stage names the precedence step at which an evaluation failed.
type Stage string

// Evaluation stages.
const (
	StageIdentity       Stage = "identity"
	StageExcludeFilters Stage = "exclude-filters"
	StageIncludeFilters Stage = "include-filters"
)

// EvaluationError reports that a decision could not be made for an entry.
type EvaluationError struct {
	DN    string
	Stage Stage
	Err   error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluating entry %q (%s): %v", e.DN, e.Stage, e.Err)
}

// Unwrap returns the underlying capability error.
func (e *EvaluationError) Unwrap() error { return e.Err }

// Is reports ErrFilterEvaluation as a match.
func (e *EvaluationError) Is(target error) bool { return target == ErrFilterEvaluation }

// Criteria holds the selection configuration. Branch and filter slices are
// ordered; attribute sets hold lower-cased base attribute types.
type Criteria struct {
	ExcludeBranches []*ldap.DN
	IncludeBranches []*ldap.DN
	ExcludeFilters  []filter.Matcher
	IncludeFilters  []filter.Matcher

	ExcludeAttributes map[string]struct{}
	IncludeAttributes map[string]struct{}

	IncludeObjectClasses         bool
	IncludeOperationalAttributes bool
	IncludeVirtualAttributes     bool
}

// DefaultCriteria returns criteria that include every entry and every stored
// attribute, but no virtual attributes.
func DefaultCriteria() Criteria {
	return Criteria{
		IncludeObjectClasses:         true,
		IncludeOperationalAttributes: true,
	}
}

// AttributeSet builds an attribute set from attribute descriptions.
func AttributeSet(types ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if t = entry.BaseType(t); t != "" {
			set[t] = struct{}{}
		}
	}

	return set
}

// Policy evaluates Criteria. The zero value is not usable; use New.
type Policy struct {
	c Criteria
}

// New creates a policy from a snapshot of c. Later changes to the slices or
// maps held by the caller do not affect the policy.
func New(c Criteria) *Policy {
	snap := c
	snap.ExcludeBranches = append([]*ldap.DN(nil), c.ExcludeBranches...)
	snap.IncludeBranches = append([]*ldap.DN(nil), c.IncludeBranches...)
	snap.ExcludeFilters = append([]filter.Matcher(nil), c.ExcludeFilters...)
	snap.IncludeFilters = append([]filter.Matcher(nil), c.IncludeFilters...)
	snap.ExcludeAttributes = copySet(c.ExcludeAttributes)
	snap.IncludeAttributes = copySet(c.IncludeAttributes)

	return &Policy{c: snap}
}

// Decide evaluates the entry against the criteria. It keeps no state
// between calls and is safe for concurrent use.
func (p *Policy) Decide(e *entry.Entry) (Decision, error) {
	if len(p.c.ExcludeBranches) > 0 || len(p.c.IncludeBranches) > 0 {
		name, err := dn.Parse(e.Name())
		if err != nil {
			return Exclude, &EvaluationError{DN: e.Name(), Stage: StageIdentity, Err: err}
		}

		for _, branch := range p.c.ExcludeBranches {
			if dn.IsAncestorOrEqual(branch, name) {
				return Exclude, nil
			}
		}

		if len(p.c.IncludeBranches) > 0 && !underAny(p.c.IncludeBranches, name) {
			return Exclude, nil
		}
	}

	for _, f := range p.c.ExcludeFilters {
		ok, err := f.Matches(e)
		if err != nil {
			return Exclude, &EvaluationError{DN: e.Name(), Stage: StageExcludeFilters, Err: err}
		}

		if ok {
			return Exclude, nil
		}
	}

	if len(p.c.IncludeFilters) > 0 {
		for _, f := range p.c.IncludeFilters {
			ok, err := f.Matches(e)
			if err != nil {
				return Exclude, &EvaluationError{DN: e.Name(), Stage: StageIncludeFilters, Err: err}
			}

			if ok {
				return Include, nil
			}
		}

		return Exclude, nil
	}

	return Include, nil
}

// RetainAttribute reports whether an attribute of the given type survives:
// it must not be excluded, and must be included when an include set exists.
func (p *Policy) RetainAttribute(attrType string) bool {
	t := entry.BaseType(attrType)

	if len(p.c.ExcludeAttributes) > 0 {
		if _, ok := p.c.ExcludeAttributes[t]; ok {
			return false
		}
	}

	if len(p.c.IncludeAttributes) > 0 {
		_, ok := p.c.IncludeAttributes[t]
		return ok
	}

	return true
}

// RetainAttributeOf applies the objectClass, operational and virtual switches
// before RetainAttribute.
func (p *Policy) RetainAttributeOf(a entry.Attribute) bool {
	switch {
	case a.IsObjectClass() && !p.c.IncludeObjectClasses:
		return false
	case a.Operational && !p.c.IncludeOperationalAttributes:
		return false
	case a.Virtual && !p.c.IncludeVirtualAttributes:
		return false
	}

	return p.RetainAttribute(a.Type)
}

// Describe returns a one-line summary of the active criteria for logging.
func (p *Policy) Describe() string {
	parts := make([]string, 0, 6)

	add := func(label string, n int) {
		if n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", label, n))
		}
	}

	add("excludeBranches", len(p.c.ExcludeBranches))
	add("includeBranches", len(p.c.IncludeBranches))
	add("excludeFilters", len(p.c.ExcludeFilters))
	add("includeFilters", len(p.c.IncludeFilters))
	add("excludeAttributes", len(p.c.ExcludeAttributes))
	add("includeAttributes", len(p.c.IncludeAttributes))

	if len(parts) == 0 {
		return "all entries"
	}

	return strings.Join(parts, " ")
}

func underAny(branches []*ldap.DN, name *ldap.DN) bool {
	for _, b := range branches {
		if dn.IsAncestorOrEqual(b, name) {
			return true
		}
	}

	return false
}

func copySet(in map[string]struct{}) map[string]struct{} {
	if len(in) == 0 {
		return nil
	}

	out := make(map[string]struct{}, len(in))
	for k := range in {
		out[entry.BaseType(k)] = struct{}{}
	}

	return out
}
