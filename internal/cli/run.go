package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/hupe1980/ldifexport/internal/config"
	"github.com/hupe1980/ldifexport/internal/destination"
	"github.com/hupe1980/ldifexport/internal/exporter"
	"github.com/hupe1980/ldifexport/internal/logging"
	"github.com/hupe1980/ldifexport/internal/metrics"
	"github.com/hupe1980/ldifexport/internal/output"
	"github.com/hupe1980/ldifexport/internal/pipeline"
	"github.com/hupe1980/ldifexport/internal/selection"
	"github.com/hupe1980/ldifexport/internal/session"
	"github.com/hupe1980/ldifexport/internal/source"
)

// loadProfile reads the export profile named by the config, falling back to
// the export section of the config file itself, and overlays the flags.
func loadProfile(cmd *cobra.Command, cfg *config.Config, opts *exportOptions) (*config.Profile, error) {
	path := cfg.Profile
	if path == "" {
		path = cfg.ConfigFile
	}

	p, err := config.LoadProfile(path)
	if err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}

	opts.applyTo(cmd, p)

	if err := p.Validate(); err != nil {
		return nil, &ExitError{Code: ExitUsage, Err: err}
	}

	return p, nil
}

// pipelineOptions returns the profile's layer selection with the signer
// wired from the key file.
func pipelineOptions(p *config.Profile, opts *exportOptions) (pipeline.Options, error) {
	po := p.PipelineOptions()

	if opts.signingKeyFile != "" {
		key, err := os.ReadFile(opts.signingKeyFile)
		if err != nil {
			return po, &ExitError{Code: ExitUsage, Err: fmt.Errorf("reading signing key: %w", err)}
		}

		po.Signer = pipeline.HMACSigner(key)
	}

	return po, nil
}

// openSource opens the entry source; "-" reads the command's stdin.
func openSource(cmd *cobra.Command, path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), nil
	}

	rc, err := source.Open(path)
	if err != nil {
		return nil, &ExitError{Code: ExitGeneric, Err: err}
	}

	return rc, nil
}

// runExport performs one export of src with profile p.
func runExport(ctx context.Context, cmd *cobra.Command, src string, p *config.Profile, opts *exportOptions) (exporter.Stats, error) {
	cfg := config.FromContext(ctx)
	logger := logging.FromContext(ctx)

	policy, err := p.Policy()
	if err != nil {
		return exporter.Stats{}, &ExitError{Code: ExitUsage, Err: err}
	}

	mode, err := p.FilterErrorMode()
	if err != nil {
		return exporter.Stats{}, &ExitError{Code: ExitUsage, Err: err}
	}

	criteria, err := p.Criteria()
	if err != nil {
		return exporter.Stats{}, &ExitError{Code: ExitUsage, Err: err}
	}

	po, err := pipelineOptions(p, opts)
	if err != nil {
		return exporter.Stats{}, err
	}

	rc, err := openSource(cmd, src)
	if err != nil {
		return exporter.Stats{}, err
	}
	defer rc.Close()

	target := destination.WriterTarget(cmd.OutOrStdout())
	if opts.output != "" {
		target = destination.FileTarget(opts.output)
	}

	sess := session.New(target, policy, po,
		session.WithResolver(destination.NewResolver(destination.WithLogger(logger))),
		session.WithLogger(logger),
	)

	var collector *metrics.Collector
	if cfg.MetricsFile != "" {
		collector = metrics.NewCollector(nil)
	}

	x := exporter.New(sess, selection.New(criteria),
		exporter.WithLDIFOptions(p.LDIFOptions()...),
		exporter.WithFilterErrorMode(mode),
		exporter.WithWorkers(cfg.Workers),
		exporter.WithMetrics(collector),
		exporter.WithLogger(logger),
	)

	stats, runErr := x.Run(ctx, source.NewDecoder(rc))

	if err := collector.WriteTextfile(cfg.MetricsFile); err != nil {
		logger.Warn("metrics not written", logging.Path(cfg.MetricsFile), logging.Err(err))
	}

	return stats, exitError(runErr)
}

// reportArtifacts writes the digest and signature next to a file export,
// or to stderr for stdout exports, followed by the run summary if requested.
func reportArtifacts(cmd *cobra.Command, logger *slog.Logger, opts *exportOptions, stats exporter.Stats) error {
	res := stats.Result

	if opts.output == "" {
		if err := output.ReportDigest(cmd.ErrOrStderr(), res); err != nil {
			return &ExitError{Code: ExitWrite, Err: err}
		}
	} else if err := output.WriteSidecars(opts.output, res, output.WithLogger(logger)); err != nil {
		return &ExitError{Code: ExitWrite, Err: err}
	}

	if opts.summaryFile == "" {
		return nil
	}

	target := opts.output
	if target == "" {
		target = "-"
	}

	err := output.WriteSummary(opts.summaryFile, opts.summaryFormat,
		output.NewSummary(stats, target), output.WithLogger(logger))
	if err != nil {
		return &ExitError{Code: ExitWrite, Err: fmt.Errorf("writing summary: %w", err)}
	}

	return nil
}

// reportWarnings prints non-fatal session warnings.
func reportWarnings(cmd *cobra.Command, stats exporter.Stats) {
	for _, w := range stats.Warnings {
		_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", w)
	}
}

func logStats(logger *slog.Logger, stats exporter.Stats) {
	logger.Debug("export stats",
		logging.ExportID(stats.ExportID),
		slog.Int("included", stats.Included),
		slog.Int("dropped", stats.Dropped),
		slog.Int("attributesDropped", stats.AttributesDropped),
		slog.Any("layers", stats.Result.Layers),
	)
}
