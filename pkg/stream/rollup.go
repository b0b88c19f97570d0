package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/logger"
)

// Rollup keeps a running merge of every batch it is given. It is safe for
// concurrent use; readers get copies.
type Rollup struct {
	mu      sync.RWMutex
	current *analysis.Result
	batches int
	records int
	updated time.Time
	logger  *slog.Logger
}

// RollupStats describes how much a Rollup has absorbed.
type RollupStats struct {
	Batches int       `json:"batches"`
	Records int       `json:"records"`
	Updated time.Time `json:"updated"`
}

func NewRollup(l *slog.Logger) *Rollup {
	return &Rollup{
		current: analysis.Analyze(nil),
		logger:  logger.OrNop(l),
	}
}

// Add merges b into the running result. Tick batches repeat earlier data and
// are ignored.
func (r *Rollup) Add(b Batch) {
	if b.Tick || b.Result == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.current = analysis.Merge(r.current, b.Result)
	r.batches++
	r.records += b.Size
	r.updated = b.At
	r.logger.Debug("rollup updated", "batch", b.ID, "seq", b.Seq, "records", r.records)
}

// Consume adds every batch from in until it closes or ctx is cancelled. When
// out is non-nil each batch is passed on after it has been added.
func (r *Rollup) Consume(ctx context.Context, in <-chan Batch, out chan<- Batch) error {
	if out != nil {
		defer close(out)
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b, ok := <-in:
			if !ok {
				return nil
			}
			r.Add(b)
			if out == nil {
				continue
			}
			select {
			case out <- b:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// Latest returns a copy of the merged result so far.
func (r *Rollup) Latest() *analysis.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Clone()
}

func (r *Rollup) Stats() RollupStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return RollupStats{Batches: r.batches, Records: r.records, Updated: r.updated}
}
