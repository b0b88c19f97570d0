// Package stream turns a channel of records into a channel of incremental
// analysis results. A Processor buffers up to BatchSize records, hands the
// full buffer to its analyze function and emits the result as a Batch.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/logger"
	"github.com/papercomputeco/tally/pkg/record"
)

var (
	defaultBatchSize uint = 100
	defaultQueueSize uint = 16
)

const maxBatchSize = 1 << 24

// ErrInvalidBatchSize is returned by AnalyzeStream for a batch size below one.
var ErrInvalidBatchSize = errors.New("batch size must be greater than zero")

// AnalyzeFunc aggregates one batch of records. It must not retain records.
type AnalyzeFunc func(records []record.Record) *analysis.Result

// Batch is the result of analyzing one buffer of records.
type Batch struct {
	ID        string           `json:"id"`
	Processor string           `json:"processor,omitempty"`
	Seq       int              `json:"seq"`
	Size      int              `json:"size"`
	FirstLine int              `json:"first_line"`
	LastLine  int              `json:"last_line"`
	Final     bool             `json:"final"`
	Tick      bool             `json:"tick,omitempty"`
	At        time.Time        `json:"at"`
	Result    *analysis.Result `json:"result"`
}

// Config is the configuration for a Processor.
type Config struct {
	// Name labels the batches and log lines of this processor.
	Name string

	// BatchSize is the number of records analyzed together (defaults to 100).
	BatchSize uint

	// QueueSize is the capacity of the output channel (defaults to 16).
	QueueSize uint

	// Analyze aggregates a batch (defaults to analysis.Analyze).
	Analyze AnalyzeFunc

	Logger *slog.Logger
}

// Processor batches records and analyzes each batch. A Processor holds no
// buffer of its own between runs, so one value may serve several Runs.
type Processor struct {
	config *Config
	logger *slog.Logger
}

// NewProcessor validates c and fills in defaults.
func NewProcessor(c *Config) (*Processor, error) {
	if c == nil {
		c = &Config{}
	}
	cfg := *c
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.BatchSize > maxBatchSize {
		return nil, fmt.Errorf("batch size %d exceeds %d", cfg.BatchSize, maxBatchSize)
	}
	if cfg.Analyze == nil {
		cfg.Analyze = func(records []record.Record) *analysis.Result {
			return analysis.Analyze(records)
		}
	}

	return &Processor{
		config: &cfg,
		logger: logger.OrNop(cfg.Logger).With("processor", cfg.Name, "batch_size", cfg.BatchSize),
	}, nil
}

// BatchSize is the configured capacity.
func (p *Processor) BatchSize() int {
	return int(p.config.BatchSize)
}

// Run consumes in until it is closed or ctx is cancelled and returns the
// channel of batches. Batches come out in input order. When in closes with a
// partly filled buffer, that buffer is analyzed once more and emitted with
// Final set before the output closes. On cancellation the partial buffer is
// dropped and the output closes without a final batch, also when in was
// closed after ctx was cancelled.
func (p *Processor) Run(ctx context.Context, in <-chan record.Record) <-chan Batch {
	out := make(chan Batch, p.config.QueueSize)

	go func() {
		defer close(out)

		size := int(p.config.BatchSize)
		buf := make([]record.Record, 0, size)
		seq := 0

		emit := func(final bool) bool {
			seq++
			batch := Batch{
				ID:        uuid.NewString(),
				Processor: p.config.Name,
				Seq:       seq,
				Size:      len(buf),
				FirstLine: buf[0].Line,
				LastLine:  buf[len(buf)-1].Line,
				Final:     final,
				At:        time.Now().UTC(),
				Result:    p.config.Analyze(buf),
			}
			buf = make([]record.Record, 0, size)

			select {
			case out <- batch:
				p.logger.Debug("batch emitted", "seq", batch.Seq, "size", batch.Size, "final", final)
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("processor cancelled", "dropped", len(buf))
				return
			case rec, ok := <-in:
				if !ok {
					if ctx.Err() != nil {
						p.logger.Debug("processor cancelled", "dropped", len(buf))
						return
					}
					if len(buf) > 0 {
						emit(true)
					}
					return
				}
				buf = append(buf, rec)
				if len(buf) >= size && !emit(false) {
					return
				}
			}
		}
	}()

	return out
}

// AnalyzeStream runs a processor of batchSize over in with fn as the
// aggregation function.
func AnalyzeStream(ctx context.Context, in <-chan record.Record, batchSize int, fn AnalyzeFunc) (<-chan Batch, error) {
	if batchSize <= 0 {
		return nil, ErrInvalidBatchSize
	}
	p, err := NewProcessor(&Config{BatchSize: uint(batchSize), Analyze: fn})
	if err != nil {
		return nil, err
	}
	return p.Run(ctx, in), nil
}
