// Package pipeline holds the wiring shared by the commands that ingest and
// analyze a log: logger setup, ingest limits, pricing and processor fan-out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/cliui"
	"github.com/papercomputeco/tally/pkg/config"
	"github.com/papercomputeco/tally/pkg/eventstream"
	"github.com/papercomputeco/tally/pkg/eventstream/kafka"
	"github.com/papercomputeco/tally/pkg/eventstream/nop"
	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/logger"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/stream"
)

// Logger builds the command logger on stderr. It is pretty on a terminal,
// and debug level with caller locations when the persistent --debug flag is
// set.
func Logger(cmd *cobra.Command) *slog.Logger {
	debug, _ := cmd.Flags().GetBool("debug")
	return logger.New(
		logger.WithDebug(debug),
		logger.WithSource(debug),
		logger.WithPretty(cliui.IsTerminal(os.Stderr)),
		logger.WithWriter(os.Stderr),
	)
}

// IngestOptions applies the configured line limit.
func IngestOptions(cfg *config.Config, l *slog.Logger) []ingest.Option {
	opts := []ingest.Option{ingest.WithLogger(l)}
	if cfg.Ingest.MaxLineBytes > 0 {
		opts = append(opts, ingest.WithMaxLineBytes(int(cfg.Ingest.MaxLineBytes)))
	}
	return opts
}

// AnalyzeOptions enables token cost estimates when a pricing file is
// configured.
func AnalyzeOptions(cfg *config.Config) ([]analysis.Option, error) {
	if cfg.Pricing.Path == "" {
		return nil, nil
	}
	table, err := analysis.LoadPricing(cfg.Pricing.Path)
	if err != nil {
		return nil, err
	}
	return []analysis.Option{analysis.WithPricing(table)}, nil
}

// AnalyzeFunc is analysis.Analyze bound to opts.
func AnalyzeFunc(opts []analysis.Option) stream.AnalyzeFunc {
	return func(records []record.Record) *analysis.Result {
		return analysis.Analyze(records, opts...)
	}
}

// Processors starts one processor per batch size, each fed its own copy of
// in, and returns their outputs in the same order as sizes.
func Processors(ctx context.Context, in <-chan record.Record, sizes []uint, cfg *config.Config, fn stream.AnalyzeFunc, l *slog.Logger) ([]<-chan stream.Batch, error) {
	if len(sizes) == 0 {
		sizes = []uint{cfg.Stream.BatchSize}
	}

	procs := make([]*stream.Processor, len(sizes))
	for i, size := range sizes {
		if size == 0 {
			return nil, stream.ErrInvalidBatchSize
		}
		p, err := stream.NewProcessor(&stream.Config{
			Name:      fmt.Sprintf("batch-%d", size),
			BatchSize: size,
			QueueSize: cfg.Stream.QueueSize,
			Analyze:   fn,
			Logger:    l,
		})
		if err != nil {
			return nil, err
		}
		procs[i] = p
	}

	inputs := []<-chan record.Record{in}
	if len(procs) > 1 {
		inputs = stream.Broadcast(ctx, in, len(procs), int(cfg.Stream.QueueSize))
	}

	outs := make([]<-chan stream.Batch, len(procs))
	for i, p := range procs {
		outs[i] = p.Run(ctx, inputs[i])
	}
	return outs, nil
}

// FanIn merges batches from every processor into one channel. Batches from
// one processor keep their order; the output closes once all inputs have.
func FanIn(ctx context.Context, ins []<-chan stream.Batch) <-chan stream.Batch {
	out := make(chan stream.Batch)

	var wg sync.WaitGroup
	for _, in := range ins {
		wg.Go(func() {
			for b := range in {
				select {
				case out <- b:
				case <-ctx.Done():
					return
				}
			}
		})
	}

	go func() {
		wg.Wait()
		close(out)
	}()

	return out
}

// Publisher returns the batch event publisher selected by events.provider.
func Publisher(cfg *config.Config, l *slog.Logger) (eventstream.Publisher, error) {
	switch cfg.Events.Provider {
	case config.EventsProviderKafka:
		return kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Events.Brokers,
			Topic:   cfg.Events.Topic,
			Logger:  l,
		})
	case "", config.EventsProviderNone:
		return nop.NewPublisher(), nil
	default:
		return nil, fmt.Errorf("unknown events provider: %q", cfg.Events.Provider)
	}
}
