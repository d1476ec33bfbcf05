package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ldifexport/internal/compare"
	"github.com/hupe1980/ldifexport/internal/config"
)

type diffOptions struct {
	context  int
	exitCode bool
}

func newDiffCommand() *cobra.Command {
	opts := &diffOptions{}

	cmd := &cobra.Command{
		Use:   "diff <old> <new>",
		Short: "Compare two LDIF exports",
		Long: `Diff prints a unified diff between two LDIF exports followed by a
summary of added, removed and changed entries. Folded lines are joined
before comparing, and ".gz" exports are decompressed.

Exit codes:
  0  Compared (with --exit-code: no differences)
  1  Error
  2  Invalid arguments
  7  Differences found (with --exit-code)`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, args[0], args[1], opts)
		},
	}

	f := cmd.Flags()
	f.IntVar(&opts.context, "context", 3, "number of context lines")
	f.BoolVar(&opts.exitCode, "exit-code", false, "exit with code 7 when the exports differ")

	return cmd
}

func runDiff(cmd *cobra.Command, oldPath, newPath string, opts *diffOptions) error {
	cfg := config.FromContext(cmd.Context())

	res, err := compare.CompareFiles(oldPath, newPath, compare.Options{Context: opts.context})
	if err != nil {
		return &ExitError{Code: ExitGeneric, Err: err}
	}

	compare.Write(cmd.OutOrStdout(), res, !cfg.NoColor)

	if opts.exitCode && res.HasDifferences {
		return &ExitError{
			Code: ExitDifferences,
			Err:  fmt.Errorf("exports differ: %s", res.Summary),
		}
	}

	return nil
}
