// Package analyzecmder provides the analyze command, which reads a whole
// interaction log and prints its statistics.
package analyzecmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tally/cmd/tally/pipeline"
	"github.com/papercomputeco/tally/cmd/tally/sourcepath"
	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/cliui"
	"github.com/papercomputeco/tally/pkg/config"
	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/report"
)

const (
	formatText     = "text"
	formatJSON     = "json"
	formatMarkdown = "markdown"
)

// ErrInvalidRecords is returned with --fail-on-invalid when any line was
// rejected.
var ErrInvalidRecords = errors.New("log contains invalid records")

type AnalyzeCommander struct {
	format        string
	failOnInvalid bool
	pricing       string
	maxLineBytes  uint

	out    io.Writer
	errOut io.Writer
	logger *slog.Logger
}

const analyzeLongDesc string = `Analyze a whole interaction log at once.

Reads every line of the newline delimited JSON log, classifies and
validates it, and prints summary, session, tool, token, cost and
activity statistics. Use - to read from stdin. Without an argument the
log is taken from TALLY_LOG or the first of ./tally.ndjson,
./tally.jsonl, ./.tally/log.ndjson and ~/.tally/log.ndjson.

Malformed or invalid lines are counted, not fatal. A log that cannot be
opened or read is.

Formats:
  text       Key figures for a quick look (default)
  markdown   Full report, rendered when stdout is a terminal
  json       The complete result for other tools

Examples:
  tally analyze events.ndjson
  tally analyze --format markdown events.ndjson
  cat events.ndjson | tally analyze --format json -
  tally analyze --pricing prices.toml --fail-on-invalid events.ndjson`

const analyzeShortDesc string = "Analyze an interaction log"

func NewAnalyzeCmd() *cobra.Command {
	cmder := &AnalyzeCommander{}

	cmd := &cobra.Command{
		Use:   "analyze [log]",
		Short: analyzeShortDesc,
		Long:  analyzeLongDesc,
		Args:  cobra.MaximumNArgs(1),
		PreRunE: func(_ *cobra.Command, _ []string) error {
			switch cmder.format {
			case formatText, formatJSON, formatMarkdown:
				return nil
			default:
				return fmt.Errorf("unknown format %q (available: %s, %s, %s)",
					cmder.format, formatText, formatJSON, formatMarkdown)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd, config.FlagPricing, config.FlagMaxLineBytes)
			if err != nil {
				return err
			}

			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			path, err := sourcepath.ResolveSourcePath(arg)
			if err != nil {
				return err
			}

			cmder.out = cmd.OutOrStdout()
			cmder.errOut = cmd.ErrOrStderr()
			cmder.logger = pipeline.Logger(cmd)
			return cmder.run(cmd.Context(), cfg, path)
		},
	}

	cmd.Flags().StringVarP(&cmder.format, "format", "f", formatText, "Output format (text, markdown, json)")
	cmd.Flags().BoolVar(&cmder.failOnInvalid, "fail-on-invalid", false, "Exit non-zero when any line is invalid")
	config.AddStringFlag(cmd, config.Flags, config.FlagPricing, &cmder.pricing)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxLineBytes, &cmder.maxLineBytes)

	return cmd
}

func (c *AnalyzeCommander) run(ctx context.Context, cfg *config.Config, path string) error {
	opts, err := pipeline.AnalyzeOptions(cfg)
	if err != nil {
		return err
	}

	var records []record.Record
	read := func() error {
		var err error
		records, err = c.parse(ctx, cfg, path)
		return err
	}

	if c.format != formatJSON && cliui.IsTerminal(c.errOut) {
		err = cliui.Step(c.errOut, fmt.Sprintf("Reading %s", path), read)
	} else {
		err = read()
	}
	if err != nil {
		if errors.Is(err, record.ErrSourceIO) {
			return fmt.Errorf("reading log: %w", err)
		}
		return err
	}

	res := analysis.Analyze(records, opts...)
	c.logger.Debug("analysis complete",
		"path", path,
		"records", len(records),
		"invalid", res.Summary.InvalidMessages,
	)

	if err := c.write(res, path); err != nil {
		return err
	}

	if c.failOnInvalid && res.Summary.InvalidMessages > 0 {
		return fmt.Errorf("%w: %d of %d", ErrInvalidRecords, res.Summary.InvalidMessages, res.Summary.TotalMessages)
	}
	return nil
}

func (c *AnalyzeCommander) parse(ctx context.Context, cfg *config.Config, path string) ([]record.Record, error) {
	opts := pipeline.IngestOptions(cfg, c.logger)
	if path == sourcepath.Stdin {
		return ingest.Parse(ctx, os.Stdin, opts...)
	}
	return ingest.ParseFile(ctx, path, opts...)
}

func (c *AnalyzeCommander) write(res *analysis.Result, path string) error {
	switch c.format {
	case formatJSON:
		enc := json.NewEncoder(c.out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)

	case formatMarkdown:
		md := report.Markdown(res, report.WithSource(path))
		if !cliui.IsTerminal(c.out) {
			_, err := io.WriteString(c.out, md)
			return err
		}
		rendered, err := cliui.RenderMarkdown(md, cliui.Width(c.out))
		if err != nil {
			return err
		}
		_, err = io.WriteString(c.out, rendered)
		return err

	default:
		writeText(c.out, res, path)
		return nil
	}
}
