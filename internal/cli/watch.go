package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ldifexport/internal/config"
	"github.com/hupe1980/ldifexport/internal/destination"
	"github.com/hupe1980/ldifexport/internal/logging"
	"github.com/hupe1980/ldifexport/internal/watch"
)

type watchOptions struct {
	exportOptions

	debounce time.Duration
}

func newWatchCommand() *cobra.Command {
	opts := &watchOptions{}

	cmd := &cobra.Command{
		Use:   "watch <source>",
		Short: "Re-export whenever the source changes",
		Long: `Watch monitors the source file (and the export profile, if any) and
re-runs the export whenever it changes. The output file is overwritten on
every run regardless of --conflict.

File changes are debounced to avoid rapid re-runs. Each run reports the
entry counts and how they moved since the previous run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context(), cmd, args[0], opts)
		},
	}

	registerExportFlags(cmd, &opts.exportOptions)
	cmd.Flags().DurationVar(&opts.debounce, "debounce", 500*time.Millisecond, "debounce interval for file changes")

	return cmd
}

func runWatch(ctx context.Context, cmd *cobra.Command, src string, opts *watchOptions) error {
	if opts.output == "" {
		return &ExitError{Code: ExitUsage, Err: fmt.Errorf("--output (-o) is required for watch mode")}
	}

	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	var extra []string
	if cfg.Profile != "" {
		extra = append(extra, cfg.Profile)
	}

	runFn := func(fnCtx context.Context) (*watch.RunResult, error) {
		// The profile is re-read on every run so edits take effect.
		p, err := loadProfile(cmd, cfg, &opts.exportOptions)
		if err != nil {
			return nil, err
		}

		p.ConflictPolicy = destination.Overwrite.String()

		stats, err := runExport(fnCtx, cmd, src, p, &opts.exportOptions)
		reportWarnings(cmd, stats)

		if err != nil {
			return nil, err
		}

		if err := reportArtifacts(cmd, logger, &opts.exportOptions, stats); err != nil {
			return nil, err
		}

		return &watch.RunResult{
			Read:     stats.Read,
			Written:  stats.Written,
			Excluded: stats.Excluded,
			Skipped:  stats.Skipped,
			Digest:   stats.Result.HexDigest(),
			Output:   opts.output,
		}, nil
	}

	watchOpts := watch.Options{
		Source:     src,
		ExtraFiles: extra,
		Debounce:   opts.debounce,
		Logger:     logger,
		Out:        cmd.ErrOrStderr(),
	}

	return watch.Run(ctx, watchOpts, runFn)
}
