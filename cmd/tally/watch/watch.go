// Package watchcmder provides the watch command, a live terminal dashboard
// over a growing interaction log.
package watchcmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tally/cmd/tally/pipeline"
	"github.com/papercomputeco/tally/cmd/tally/sourcepath"
	"github.com/papercomputeco/tally/pkg/config"
	"github.com/papercomputeco/tally/pkg/logger"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/stream"
)

type WatchCommander struct {
	batchSize    uint
	queueSize    uint
	maxLineBytes uint
	refresh      string
	pricing      string
	noFollow     bool
	remote       string

	logger *slog.Logger
}

const watchLongDesc string = `Follow a log in a live terminal dashboard.

The log is read from the start and then tailed. Records are analyzed in
batches of --batch-size and merged into a running total, which the
dashboard redraws whenever a batch lands and at least every --refresh.
Small batches update the view sooner; large ones cost less.

With --remote the dashboard shows the running totals of a "tally serve"
instance instead, read from its event stream.

Keys:
  tab    cycle between overview, tools and sessions
  q      quit

Examples:
  tally watch events.ndjson
  tally watch -b 10 --refresh 250ms events.ndjson
  tally watch --no-follow events.ndjson
  tally watch --remote http://localhost:8080`

const watchShortDesc string = "Watch a log in a live dashboard"

func NewWatchCmd() *cobra.Command {
	cmder := &WatchCommander{}

	cmd := &cobra.Command{
		Use:   "watch [log]",
		Short: watchShortDesc,
		Long:  watchLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd,
				config.FlagBatchSize,
				config.FlagQueueSize,
				config.FlagMaxLineBytes,
				config.FlagRefresh,
				config.FlagPricing,
			)
			if err != nil {
				return err
			}

			// The dashboard owns the terminal; only errors reach stderr.
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				cmder.logger = pipeline.Logger(cmd)
			} else {
				cmder.logger = logger.New(logger.WithLevel("error"), logger.WithWriter(os.Stderr))
			}

			if cmder.remote != "" {
				if len(args) > 0 {
					return errors.New("--remote does not take a log argument")
				}
				return cmder.runRemote(cmd.Context())
			}

			arg := ""
			if len(args) > 0 {
				arg = args[0]
			}
			path, err := sourcepath.ResolveSourcePath(arg)
			if err != nil {
				return err
			}

			return cmder.run(cmd.Context(), cfg, path)
		},
	}

	config.AddUintFlag(cmd, config.Flags, config.FlagBatchSize, &cmder.batchSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.queueSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxLineBytes, &cmder.maxLineBytes)
	config.AddStringFlag(cmd, config.Flags, config.FlagRefresh, &cmder.refresh)
	config.AddStringFlag(cmd, config.Flags, config.FlagPricing, &cmder.pricing)
	cmd.Flags().BoolVar(&cmder.noFollow, "no-follow", false, "Stop at the end of the log instead of tailing it")
	cmd.Flags().StringVar(&cmder.remote, "remote", "", "Base URL of a tally server to watch instead of a local log")

	return cmd
}

func (c *WatchCommander) run(ctx context.Context, cfg *config.Config, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts, err := pipeline.AnalyzeOptions(cfg)
	if err != nil {
		return err
	}

	srcCtx, records, errc, err := sourcepath.Open(ctx, path, !c.noFollow, int(cfg.Stream.QueueSize), pipeline.IngestOptions(cfg, c.logger)...)
	if err != nil {
		return err
	}

	outs, err := pipeline.Processors(srcCtx, records, nil, cfg, pipeline.AnalyzeFunc(opts), c.logger)
	if err != nil {
		return err
	}

	rollup := stream.NewRollup(c.logger)
	updates := make(chan stream.Batch)
	go func() {
		_ = rollup.Consume(srcCtx, stream.Refresh(srcCtx, outs[0], cfg.RefreshDuration()), updates)
	}()

	model := newWatchModel(path, rollup, updates, errc, cfg.Stream.BatchSize, !c.noFollow)
	return c.show(ctx, model)
}

// runRemote drives the dashboard from the event stream of a tally server.
func (c *WatchCommander) runRemote(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	source := newRemoteSource(c.logger)
	updates := make(chan stream.Batch)
	errc, err := source.runRemote(ctx, c.remote, updates)
	if err != nil {
		return err
	}

	model := newWatchModel(c.remote, source, updates, errc, 0, true)
	return c.show(ctx, model)
}

func (c *WatchCommander) show(ctx context.Context, model watchModel) error {
	final, err := runWatchTUI(ctx, model)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("running dashboard: %w", err)
	}

	switch {
	case final.err == nil:
		return nil
	case errors.Is(final.err, record.ErrSourceIO):
		return fmt.Errorf("reading log: %w", final.err)
	default:
		return final.err
	}
}
