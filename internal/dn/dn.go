// Package dn provides the hierarchical containment test used to decide
// whether an entry lies inside a configured branch.
package dn

import (
	"fmt"
	"strings"

	"github.com/go-ldap/ldap/v3"
)

// Parse parses a distinguished name. The empty string is the root DN, which
// contains every entry.
func Parse(s string) (*ldap.DN, error) {
	if strings.TrimSpace(s) == "" {
		return &ldap.DN{}, nil
	}

	d, err := ldap.ParseDN(s)
	if err != nil {
		return nil, fmt.Errorf("parsing DN %q: %w", s, err)
	}

	return d, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level constants.
func MustParse(s string) *ldap.DN {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}

	return d
}

// ParseAll parses every string in order and fails on the first bad value.
func ParseAll(values []string) ([]*ldap.DN, error) {
	out := make([]*ldap.DN, 0, len(values))

	for _, v := range values {
		d, err := Parse(v)
		if err != nil {
			return nil, err
		}

		out = append(out, d)
	}

	return out, nil
}

// IsAncestorOrEqual reports whether branch equals d or is one of its
// superiors. Attribute types and values compare case-insensitively.
func IsAncestorOrEqual(branch, d *ldap.DN) bool {
	if branch == nil || d == nil {
		return false
	}

	if len(branch.RDNs) > len(d.RDNs) {
		return false
	}

	offset := len(d.RDNs) - len(branch.RDNs)
	for i, rdn := range branch.RDNs {
		if !rdnEqualFold(rdn, d.RDNs[offset+i]) {
			return false
		}
	}

	return true
}

// rdnEqualFold compares two RDNs as unordered sets of type=value pairs.
func rdnEqualFold(a, b *ldap.RelativeDN) bool {
	if len(a.Attributes) != len(b.Attributes) {
		return false
	}

	for _, av := range a.Attributes {
		found := false

		for _, bv := range b.Attributes {
			if strings.EqualFold(av.Type, bv.Type) && strings.EqualFold(strings.TrimSpace(av.Value), strings.TrimSpace(bv.Value)) {
				found = true
				break
			}
		}

		if !found {
			return false
		}
	}

	return true
}
