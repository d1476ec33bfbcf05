package config

import (
	"fmt"
	"os"

	sigsyaml "sigs.k8s.io/yaml"

	"github.com/hupe1980/ldifexport/internal/destination"
	"github.com/hupe1980/ldifexport/internal/dn"
	"github.com/hupe1980/ldifexport/internal/exporter"
	"github.com/hupe1980/ldifexport/internal/filter"
	"github.com/hupe1980/ldifexport/internal/ldif"
	"github.com/hupe1980/ldifexport/internal/pipeline"
	"github.com/hupe1980/ldifexport/internal/selection"
)

// Profile holds the declarative export settings. A profile file contains
// either these keys at the top level or under an "export" key, so the
// regular config file can carry a profile too:
//
//	export:
//	  conflictPolicy: overwrite
//	  compress: true
//	  hash: true
//	  excludeBranches: ["ou=archive,dc=example,dc=com"]
//	  excludeAttributes: [userPassword]
type Profile struct {
	// ConflictPolicy is fail, append or overwrite.
	ConflictPolicy string `json:"conflictPolicy,omitempty"`

	// OnFilterError is abort or skip.
	OnFilterError string `json:"onFilterError,omitempty"`

	Compress         bool `json:"compress,omitempty"`
	CompressionLevel int  `json:"compressionLevel,omitempty"`
	Encrypt          bool `json:"encrypt,omitempty"`
	Hash             bool `json:"hash,omitempty"`
	SignHash         bool `json:"signHash,omitempty"`
	BufferSize       int  `json:"bufferSize,omitempty"`

	TypesOnly  bool `json:"typesOnly,omitempty"`
	WrapColumn int  `json:"wrapColumn,omitempty"`

	ExcludeBranches   []string `json:"excludeBranches,omitempty"`
	IncludeBranches   []string `json:"includeBranches,omitempty"`
	ExcludeFilters    []string `json:"excludeFilters,omitempty"`
	IncludeFilters    []string `json:"includeFilters,omitempty"`
	ExcludeAttributes []string `json:"excludeAttributes,omitempty"`
	IncludeAttributes []string `json:"includeAttributes,omitempty"`

	// Unset switches fall back to: objectClasses and operational attributes
	// included, virtual attributes excluded.
	IncludeObjectClasses         *bool `json:"includeObjectClasses,omitempty"`
	IncludeOperationalAttributes *bool `json:"includeOperationalAttributes,omitempty"`
	IncludeVirtualAttributes     *bool `json:"includeVirtualAttributes,omitempty"`
}

// DefaultProfile returns a profile that exports everything to a new file.
func DefaultProfile() *Profile {
	return &Profile{}
}

// ParseProfile parses profile bytes and validates the result.
func ParseProfile(data []byte) (*Profile, error) {
	var wrapped struct {
		Export *Profile `json:"export,omitempty"`
	}

	if err := sigsyaml.Unmarshal(data, &wrapped); err != nil {
		return nil, fmt.Errorf("parsing export profile: %w", err)
	}

	p := wrapped.Export
	if p == nil {
		p = &Profile{}
		if err := sigsyaml.Unmarshal(data, p); err != nil {
			return nil, fmt.Errorf("parsing export profile: %w", err)
		}
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}

	return p, nil
}

// LoadProfile reads and parses the profile at path. An empty path yields
// DefaultProfile.
func LoadProfile(path string) (*Profile, error) {
	if path == "" {
		return DefaultProfile(), nil
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is operator supplied
	if err != nil {
		return nil, fmt.Errorf("reading export profile %q: %w", path, err)
	}

	p, err := ParseProfile(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return p, nil
}

// Validate checks the profile for correctness.
func (p *Profile) Validate() error {
	if _, err := destination.ParseConflictPolicy(p.ConflictPolicy); err != nil {
		return err
	}

	if _, err := exporter.ParseFilterErrorMode(p.OnFilterError); err != nil {
		return err
	}

	if err := p.PipelineOptions().Validate(); err != nil {
		return err
	}

	if p.WrapColumn < 0 {
		return fmt.Errorf("invalid wrapColumn %d: must not be negative", p.WrapColumn)
	}

	if _, err := p.Criteria(); err != nil {
		return err
	}

	return nil
}

// Policy returns the parsed conflict policy.
func (p *Profile) Policy() (destination.ConflictPolicy, error) {
	return destination.ParseConflictPolicy(p.ConflictPolicy)
}

// FilterErrorMode returns the parsed filter error mode.
func (p *Profile) FilterErrorMode() (exporter.FilterErrorMode, error) {
	return exporter.ParseFilterErrorMode(p.OnFilterError)
}

// PipelineOptions returns the output layer selection. Encryption and signing
// hooks are supplied by the caller.
func (p *Profile) PipelineOptions() pipeline.Options {
	return pipeline.Options{
		Compress:         p.Compress,
		CompressionLevel: p.CompressionLevel,
		Encrypt:          p.Encrypt,
		Hash:             p.Hash,
		SignHash:         p.SignHash,
		BufferSize:       p.BufferSize,
	}
}

// LDIFOptions returns the encoder settings.
func (p *Profile) LDIFOptions() []ldif.Option {
	return []ldif.Option{
		ldif.WithWrapColumn(p.WrapColumn),
		ldif.WithTypesOnly(p.TypesOnly),
	}
}

// Criteria parses branches and compiles filters into selection criteria.
func (p *Profile) Criteria() (selection.Criteria, error) {
	c := selection.DefaultCriteria()

	var err error

	if c.ExcludeBranches, err = dn.ParseAll(p.ExcludeBranches); err != nil {
		return c, fmt.Errorf("excludeBranches: %w", err)
	}

	if c.IncludeBranches, err = dn.ParseAll(p.IncludeBranches); err != nil {
		return c, fmt.Errorf("includeBranches: %w", err)
	}

	if c.ExcludeFilters, err = filter.CompileAll(p.ExcludeFilters); err != nil {
		return c, fmt.Errorf("excludeFilters: %w", err)
	}

	if c.IncludeFilters, err = filter.CompileAll(p.IncludeFilters); err != nil {
		return c, fmt.Errorf("includeFilters: %w", err)
	}

	c.ExcludeAttributes = selection.AttributeSet(p.ExcludeAttributes...)
	c.IncludeAttributes = selection.AttributeSet(p.IncludeAttributes...)

	c.IncludeObjectClasses = boolOr(p.IncludeObjectClasses, c.IncludeObjectClasses)
	c.IncludeOperationalAttributes = boolOr(p.IncludeOperationalAttributes, c.IncludeOperationalAttributes)
	c.IncludeVirtualAttributes = boolOr(p.IncludeVirtualAttributes, c.IncludeVirtualAttributes)

	return c, nil
}

// Bool returns a pointer to b, for setting the optional profile switches.
func Bool(b bool) *bool {
	return &b
}

func boolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}

	return *b
}
