// Package worker provides an asynchronous worker pool that publishes analyzed
// batches to an eventstream.Publisher.
//
// The pool decouples publishing from the processors so that a slow broker
// never stalls batch analysis.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/tally/pkg/eventstream"
	"github.com/papercomputeco/tally/pkg/logger"
	"github.com/papercomputeco/tally/pkg/stream"
)

var (
	defaultNumWorkers   uint = 1
	defaultJobQueueSize uint = 256
)

const publishTimeout = 30 * time.Second

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Path is the log the batch was read from.
	Path  string
	Batch stream.Batch
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Publisher receives one event per job.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool (defaults
	// to 1, which keeps events in enqueue order).
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	// Host is stamped into every event source.
	Host string

	Logger *slog.Logger
}

// Stats counts what the pool has done so far.
type Stats struct {
	Published int
	Failed    int
	Dropped   int
}

// Pool publishes batch events asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Publisher == nil {
		return nil, fmt.Errorf("worker pool requires a publisher")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: logger.OrNop(c.Logger),
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full, resulting in the job being dropped.
// Tick batches carry no new data and are never published.
func (p *Pool) Enqueue(job Job) bool {
	if job.Batch.Tick {
		return true
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"processor", job.Batch.Processor,
			"seq", job.Batch.Seq,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"processor", job.Batch.Processor,
			"seq", job.Batch.Seq,
		)
		p.mu.Lock()
		p.stats.Dropped++
		p.mu.Unlock()
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
func (p *Pool) Close() {
	close(p.queue)
	p.wg.Wait()
}

// Stats returns the pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stats
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("publish worker stopped", "worker_id", id)
}

// processJob wraps the batch in an event and publishes it. Failures are
// logged and counted, never retried.
func (p *Pool) processJob(job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	event := eventstream.NewBatchAnalyzedEvent(
		eventstream.EventSource{
			Path:      job.Path,
			Processor: job.Batch.Processor,
			Host:      p.config.Host,
		},
		eventstream.BatchMeta{
			ID:         job.Batch.ID,
			Seq:        job.Batch.Seq,
			Size:       job.Batch.Size,
			FirstLine:  job.Batch.FirstLine,
			LastLine:   job.Batch.LastLine,
			Final:      job.Batch.Final,
			AnalyzedAt: job.Batch.At,
		},
		job.Batch.Result,
	)

	if err := p.config.Publisher.PublishBatch(ctx, event); err != nil {
		p.logger.Error("batch publish failed",
			"processor", job.Batch.Processor,
			"seq", job.Batch.Seq,
			"error", err,
		)
		p.mu.Lock()
		p.stats.Failed++
		p.mu.Unlock()
		return
	}

	p.logger.Info("batch published",
		"event_id", event.EventID,
		"processor", job.Batch.Processor,
		"seq", job.Batch.Seq,
		"size", job.Batch.Size,
	)
	p.mu.Lock()
	p.stats.Published++
	p.mu.Unlock()
}
