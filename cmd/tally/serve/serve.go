// Package servecmder provides the serve command, which keeps a rolling
// analysis of a log and serves it over HTTP and MCP.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/tally/api"
	"github.com/papercomputeco/tally/cmd/tally/pipeline"
	"github.com/papercomputeco/tally/cmd/tally/sourcepath"
	"github.com/papercomputeco/tally/pkg/config"
	"github.com/papercomputeco/tally/pkg/eventstream/nop"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/stream"
	"github.com/papercomputeco/tally/pkg/worker"
)

type ServeCommander struct {
	listen         string
	batchSize      uint
	queueSize      uint
	maxLineBytes   uint
	pricing        string
	refresh        string
	eventsProvider string
	brokers        string
	topic          string
	noFollow       bool
	noMCP          bool

	logger *slog.Logger
}

const serveLongDesc string = `Serve the running analysis of a log.

The log is read from the start and then tailed. Records are analyzed in
batches and merged into a running total that the API always answers
from, so results grow as the log does.

Endpoints:
  GET /ping
  GET /v1/analysis               Full result plus stream progress
  GET /v1/summary
  GET /v1/sessions[?limit=N]
  GET /v1/sessions/:id
  GET /v1/conversations/:id
  GET /v1/tools[?limit=N]
  GET /v1/costs
  GET /v1/temporal
  GET /v1/events                 Server-sent progress events, one per batch
  ANY /mcp                       MCP tools: summary, session, tools, costs

When events.provider is kafka every batch is also published as a
tally.batch.analyzed event.

Examples:
  tally serve events.ndjson
  tally serve --listen :9000 -b 50 events.ndjson`

const serveShortDesc string = "Serve the running analysis over HTTP and MCP"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve [log]",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Resolve(cmd,
				config.FlagListen,
				config.FlagBatchSize,
				config.FlagQueueSize,
				config.FlagMaxLineBytes,
				config.FlagPricing,
				config.FlagRefresh,
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

			cmder.logger = pipeline.Logger(cmd)
			return cmder.run(cmd.Context(), cfg, path)
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddUintFlag(cmd, config.Flags, config.FlagBatchSize, &cmder.batchSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.queueSize)
	config.AddUintFlag(cmd, config.Flags, config.FlagMaxLineBytes, &cmder.maxLineBytes)
	config.AddStringFlag(cmd, config.Flags, config.FlagPricing, &cmder.pricing)
	config.AddStringFlag(cmd, config.Flags, config.FlagRefresh, &cmder.refresh)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventsProvider, &cmder.eventsProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagBrokers, &cmder.brokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagTopic, &cmder.topic)
	cmd.Flags().BoolVar(&cmder.noFollow, "no-follow", false, "Stop reading at the end of the log instead of tailing it")
	cmd.Flags().BoolVar(&cmder.noMCP, "no-mcp", false, "Do not mount the MCP endpoint")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context, cfg *config.Config, path string) error {
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
		defer pool.Close()
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
	apiServer, err := api.NewServer(api.Config{
		ListenAddr:    cfg.Serve.Listen,
		Path:          path,
		EventInterval: cfg.RefreshDuration(),
		DisableMCP:    c.noMCP,
	}, rollup, c.logger)
	if err != nil {
		return fmt.Errorf("creating api server: %w", err)
	}

	c.logger.Info("serving log",
		"path", path,
		"batch_size", cfg.Stream.BatchSize,
		"follow", !c.noFollow,
		"mcp", !c.noMCP,
	)

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	go func() {
		if err := c.consume(srcCtx, rollup, outs[0], pool, path); err != nil {
			errChan <- err
			return
		}
		if err := <-errc; err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, record.ErrSourceIO) {
				err = fmt.Errorf("reading log: %w", err)
			}
			errChan <- err
			return
		}
		stats := rollup.Stats()
		c.logger.Info("log fully ingested", "batches", stats.Batches, "records", stats.Records)
	}()

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err = <-errChan:
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	cancel()
	if shutdownErr := apiServer.Shutdown(); shutdownErr != nil {
		c.logger.Error("api server shutdown", "error", shutdownErr)
	}
	return err
}

// consume folds batches into the rollup and hands them to the publisher
// pool when one is configured.
func (c *ServeCommander) consume(ctx context.Context, rollup *stream.Rollup, batches <-chan stream.Batch, pool *worker.Pool, path string) error {
	if pool == nil {
		err := rollup.Consume(ctx, batches, nil)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}

	forwarded := make(chan stream.Batch)
	done := make(chan error, 1)
	go func() {
		done <- rollup.Consume(ctx, batches, forwarded)
	}()
	for b := range forwarded {
		pool.Enqueue(worker.Job{Path: path, Batch: b})
	}

	err := <-done
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
