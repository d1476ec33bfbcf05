package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ldifexport/internal/config"
	"github.com/hupe1980/ldifexport/internal/ldif"
)

// exportOptions holds the export flags. Flags that were set on the command
// line override the export profile; unset flags leave it untouched.
type exportOptions struct {
	output   string
	conflict string

	compress         bool
	compressionLevel int
	encrypt          bool
	hash             bool
	signHash         bool
	signingKeyFile   string
	bufferSize       int

	summaryFile   string
	summaryFormat string

	typesOnly  bool
	wrapColumn int

	excludeBranches   []string
	includeBranches   []string
	excludeFilters    []string
	includeFilters    []string
	excludeAttributes []string
	includeAttributes []string

	noObjectClasses bool
	noOperational   bool
	includeVirtual  bool

	onFilterError string
}

// registerOutputFlags adds the destination and pipeline flags to a cobra command.
func registerOutputFlags(cmd *cobra.Command, opts *exportOptions) {
	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output file path (default: stdout)")
	f.StringVar(&opts.conflict, "conflict", "fail", "existing output file: fail, append, overwrite")
	f.BoolVar(&opts.compress, "compress", false, "gzip the output")
	f.IntVar(&opts.compressionLevel, "compression-level", 0, "gzip level 1-9 (0: default)")
	f.BoolVar(&opts.encrypt, "encrypt", false, "encrypt the output (requires an encryption provider)")
	f.BoolVar(&opts.hash, "hash", false, "compute a SHA-256 digest of the written bytes")
	f.BoolVar(&opts.signHash, "sign-hash", false, "sign the digest (requires --hash and --signing-key-file)")
	f.StringVar(&opts.signingKeyFile, "signing-key-file", "", "HMAC-SHA256 key file for --sign-hash")
	f.IntVar(&opts.bufferSize, "buffer-size", 0, "write buffer size in bytes (0: default)")
	f.StringVar(&opts.summaryFile, "summary-file", "", "write a run summary to this file")
	f.StringVar(&opts.summaryFormat, "summary-format", "", "run summary format: yaml, json (default: from file extension)")
}

// registerFormatFlags adds the LDIF formatting flags to a cobra command.
func registerFormatFlags(cmd *cobra.Command, opts *exportOptions) {
	f := cmd.Flags()
	f.BoolVar(&opts.typesOnly, "types-only", false, "write attribute types without values")
	f.IntVar(&opts.wrapColumn, "wrap-column", 0, "fold lines longer than N columns (0: no wrapping; bare flag: 76)")
	f.Lookup("wrap-column").NoOptDefVal = strconv.Itoa(ldif.DefaultWrapColumn)
}

// registerSelectionFlags adds the entry and attribute selection flags to a cobra command.
func registerSelectionFlags(cmd *cobra.Command, opts *exportOptions) {
	f := cmd.Flags()
	f.StringArrayVar(&opts.excludeBranches, "exclude-branch", nil, "exclude entries at or below DN")
	f.StringArrayVar(&opts.includeBranches, "include-branch", nil, "export only entries at or below DN")
	f.StringArrayVar(&opts.excludeFilters, "exclude-filter", nil, "exclude entries matching an LDAP filter")
	f.StringArrayVar(&opts.includeFilters, "include-filter", nil, "export only entries matching an LDAP filter")
	f.StringSliceVar(&opts.excludeAttributes, "exclude-attribute", nil, "drop attribute types")
	f.StringSliceVar(&opts.includeAttributes, "include-attribute", nil, "keep only these attribute types")
	f.BoolVar(&opts.noObjectClasses, "no-objectclasses", false, "drop objectClass attributes")
	f.BoolVar(&opts.noOperational, "no-operational", false, "drop operational attributes")
	f.BoolVar(&opts.includeVirtual, "include-virtual", false, "keep virtual attributes")
	f.StringVar(&opts.onFilterError, "on-filter-error", "abort", "entries that cannot be evaluated: abort, skip")
}

// registerRunFlags adds the flags that are read back through config.Load.
func registerRunFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("profile", "", "export profile file (default: export section of the config file)")
	f.String("metrics-file", "", "write Prometheus metrics to this textfile after each export")
	f.Int("workers", 1, "concurrent policy evaluations (0: GOMAXPROCS)")
}

// registerExportFlags registers all shared export flags on a cobra command.
func registerExportFlags(cmd *cobra.Command, opts *exportOptions) {
	registerOutputFlags(cmd, opts)
	registerFormatFlags(cmd, opts)
	registerSelectionFlags(cmd, opts)
	registerRunFlags(cmd)
	registerFlagCompletions(cmd)
}

// applyTo overlays the flags that were set on cmd onto p.
func (o *exportOptions) applyTo(cmd *cobra.Command, p *config.Profile) {
	changed := cmd.Flags().Changed

	if changed("conflict") {
		p.ConflictPolicy = o.conflict
	}

	if changed("on-filter-error") {
		p.OnFilterError = o.onFilterError
	}

	setBool := func(name string, dst *bool, v bool) {
		if changed(name) {
			*dst = v
		}
	}

	setBool("compress", &p.Compress, o.compress)
	setBool("encrypt", &p.Encrypt, o.encrypt)
	setBool("hash", &p.Hash, o.hash)
	setBool("sign-hash", &p.SignHash, o.signHash)
	setBool("types-only", &p.TypesOnly, o.typesOnly)

	setInt := func(name string, dst *int, v int) {
		if changed(name) {
			*dst = v
		}
	}

	setInt("compression-level", &p.CompressionLevel, o.compressionLevel)
	setInt("buffer-size", &p.BufferSize, o.bufferSize)
	setInt("wrap-column", &p.WrapColumn, o.wrapColumn)

	// List flags extend the profile lists.
	p.ExcludeBranches = append(p.ExcludeBranches, o.excludeBranches...)
	p.IncludeBranches = append(p.IncludeBranches, o.includeBranches...)
	p.ExcludeFilters = append(p.ExcludeFilters, o.excludeFilters...)
	p.IncludeFilters = append(p.IncludeFilters, o.includeFilters...)
	p.ExcludeAttributes = append(p.ExcludeAttributes, o.excludeAttributes...)
	p.IncludeAttributes = append(p.IncludeAttributes, o.includeAttributes...)

	if changed("no-objectclasses") {
		p.IncludeObjectClasses = config.Bool(!o.noObjectClasses)
	}

	if changed("no-operational") {
		p.IncludeOperationalAttributes = config.Bool(!o.noOperational)
	}

	if changed("include-virtual") {
		p.IncludeVirtualAttributes = config.Bool(o.includeVirtual)
	}
}
