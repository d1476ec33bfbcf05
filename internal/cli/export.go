package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ldifexport/internal/config"
	"github.com/hupe1980/ldifexport/internal/logging"
)

func newExportCommand() *cobra.Command {
	opts := &exportOptions{}

	cmd := &cobra.Command{
		Use:   "export <source>",
		Short: "Export entries to LDIF",
		Long: `Export reads entries from a YAML or JSON document stream ("-" for
stdin, ".gz" files are decompressed) and writes the selected entries as
LDIF to --output or stdout.

Each source document describes one entry:

  dn: uid=jdoe,ou=people,dc=example,dc=com
  attributes:
    objectClass: [inetOrgPerson]
    cn: [John Doe]
  operational: [createTimestamp]
  virtual: [isMemberOf]

Entries below an excluded branch or matching an exclude filter are never
written. Output layers are applied in a fixed order: the LDIF text is
compressed, then encrypted, then hashed, so --hash covers exactly the bytes
written. The digest is stored in <output>.sha256 (stderr for stdout).

Exit codes:
  0  Success
  1  Error
  2  Invalid arguments or configuration
  3  Output file exists (--conflict fail)
  4  Output pipeline could not be built
  5  Entry could not be evaluated (--on-filter-error abort)
  6  Writing or closing the output failed`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExportCommand(cmd, args[0], opts)
		},
	}

	registerExportFlags(cmd, opts)

	return cmd
}

func runExportCommand(cmd *cobra.Command, src string, opts *exportOptions) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	p, err := loadProfile(cmd, cfg, opts)
	if err != nil {
		return err
	}

	stats, err := runExport(ctx, cmd, src, p, opts)
	reportWarnings(cmd, stats)

	if err != nil {
		return err
	}

	logStats(logger, stats)

	if err := reportArtifacts(cmd, logger, opts, stats); err != nil {
		return err
	}

	if opts.output != "" && !cfg.Quiet {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Exported %d of %d entries to %s\n",
			stats.Written, stats.Read, opts.output)
	}

	return nil
}
