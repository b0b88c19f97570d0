// Package streamcmder provides the stream command, which analyzes a log in
// bounded batches and prints one result per batch as it is produced.
package streamcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tally/cmd/tally/pipeline"
	"github.com/papercomputeco/tally/cmd/tally/sourcepath"
	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/config"
	"github.com/papercomputeco/tally/pkg/eventstream/nop"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/stream"
	"github.com/papercomputeco/tally/pkg/worker"
)

type StreamCommander struct {
	batchSizes     []uint
	queueSize      uint
	maxLineBytes   uint
	pricing        string
	follow         bool
	summaryOnly    bool
	eventsProvider string
	brokers        string
	topic          string

	out    io.Writer
	logger *slog.Logger
}

const streamLongDesc string = `Analyze a log in bounded batches.

Records are read incrementally and handed to a processor that analyzes
them in batches of --batch-size. Each batch result is written to stdout
as one JSON line as soon as it is ready, so memory stays bounded by the
batch size no matter how long the log is. The last, partly filled batch
is flushed with "final": true when the input ends.

Repeat --batch-size to run several processors over the same records.
With --follow the file is tailed and batches keep coming until the
command is interrupted.

When events.provider is kafka every batch is also published as a
tally.batch.analyzed event to events.topic.

Examples:
  tally stream events.ndjson
  tally stream -b 100 -b 1000 events.ndjson
  tally stream --follow --summary-only events.ndjson
  tally stream --events-provider kafka --brokers localhost:9092 events.ndjson`

const streamShortDesc string = "Analyze a log in batches"

func NewStreamCmd() *cobra.Command {
	cmder := &StreamCommander{}

	cmd := &cobra.Command{
		Use:   "stream [log]",
		Short: streamShortDesc,
		Long:  streamLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd,
				config.FlagQueueSize,
				config.FlagMaxLineBytes,
				config.FlagPricing,
				config.FlagEventsProvider,
				config.FlagBrokers,
				config.FlagTopic,
			)
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

			// An unset --batch-size means the configured size, not the flag default.
			if !cmd.Flags().Changed(config.FlagBatchSize) {
				cmder.batchSizes = []uint{cfg.Stream.BatchSize}
			}

			cmder.out = cmd.OutOrStdout()
			cmder.logger = pipeline.Logger(cmd)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return cmder.run(ctx, cfg, path)
		},
	}

	config.AddUintSliceFlag(cmd, config.Flags, config.FlagBatchSize, &cmder.batchSizes)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.queueSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxLineBytes, &cmder.maxLineBytes)
	config.AddStringFlag(cmd, config.Flags, config.FlagPricing, &cmder.pricing)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagTopic, &cmder.topic)
	cmd.Flags().BoolVarP(&cmder.follow, "follow", "F", false, "Keep reading as the log grows")
	cmd.Flags().BoolVar(&cmder.summaryOnly, "summary-only", false, "Print batch metadata and the summary instead of the full result")

	return cmd
}

// line is what --summary-only prints for a batch.
type line struct {
	ID        string           `json:"id"`
	Processor string           `json:"processor"`
	Seq       int              `json:"seq"`
	Size      int              `json:"size"`
	FirstLine int              `json:"first_line"`
	LastLine  int              `json:"last_line"`
	Final     bool             `json:"final"`
	Summary   analysis.Summary `json:"summary"`
}

func (c *StreamCommander) run(ctx context.Context, cfg *config.Config, path string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	opts, err := pipeline.AnalyzeOptions(cfg)
	if err != nil {
		return err
	}

	publisher, err := pipeline.Publisher(cfg, c.logger)
	if err != nil {
		return err
	}
	defer publisher.Close()

	var pool *worker.Pool
	if _, disabled := publisher.(*nop.Publisher); !disabled {
		host, _ := os.Hostname()
		pool, err = worker.NewPool(&worker.Config{
			Publisher: publisher,
			Host:      host,
			Logger:    c.logger,
		})
		if err != nil {
			return err
		}
	}

	srcCtx, records, errc, err := sourcepath.Open(ctx, path, c.follow, int(cfg.Stream.QueueSize), pipeline.IngestOptions(cfg, c.logger)...)
	if err != nil {
		return err
	}

	outs, err := pipeline.Processors(srcCtx, records, c.batchSizes, cfg, pipeline.AnalyzeFunc(opts), c.logger)
	if err != nil {
		return err
	}

	c.logger.Info("streaming",
		"path", path,
		"batch_sizes", c.batchSizes,
		"follow", c.follow,
		"events", cfg.Events.Provider,
	)

	enc := json.NewEncoder(c.out)
	var writeErr error
	for b := range pipeline.FanIn(srcCtx, outs) {
		if pool != nil {
			pool.Enqueue(worker.Job{Path: path, Batch: b})
		}
		if writeErr != nil {
			continue
		}
		if writeErr = enc.Encode(c.encodable(b)); writeErr != nil {
			// Drain what is left so the producers can exit.
			cancel()
		}
	}

	if pool != nil {
		pool.Close()
		stats := pool.Stats()
		c.logger.Info("batch events published",
			"published", stats.Published,
			"failed", stats.Failed,
			"dropped", stats.Dropped,
		)
	}

	if writeErr != nil {
		return fmt.Errorf("writing batch: %w", writeErr)
	}

	if err := <-errc; err != nil {
		if errors.Is(err, record.ErrSourceIO) {
			return fmt.Errorf("reading log: %w", err)
		}
		if !errors.Is(err, context.Canceled) {
			return err
		}
	}
	return nil
}

func (c *StreamCommander) encodable(b stream.Batch) any {
	if !c.summaryOnly {
		return b
	}
	return line{
		ID:        b.ID,
		Processor: b.Processor,
		Seq:       b.Seq,
		Size:      b.Size,
		FirstLine: b.FirstLine,
		LastLine:  b.LastLine,
		Final:     b.Final,
		Summary:   b.Result.Summary,
	}
}
