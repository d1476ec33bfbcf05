// Package filter implements LDAP search filter matching for export
// selection. Filters use the RFC 4515 string syntax, are compiled once with
// go-ldap and evaluated in memory against [entry.Entry] values.
//
// The package is built around the [Matcher] interface so that the selection
// policy can be driven by compiled filters or by arbitrary predicates.
package filter
