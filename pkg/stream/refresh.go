package stream

import (
	"context"
	"time"
)

// Refresh forwards batches and, every interval, re-emits the most recent one
// with Tick set so that a renderer can redraw without waiting for new data.
// Ticks before the first batch emit nothing. The output closes when batches
// closes or ctx is cancelled.
func Refresh(ctx context.Context, batches <-chan Batch, interval time.Duration) <-chan Batch {
	out := make(chan Batch)

	go func() {
		defer close(out)

		if interval <= 0 {
			interval = time.Second
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last *Batch
		send := func(b Batch) bool {
			select {
			case out <- b:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-batches:
				if !ok {
					return
				}
				last = &b
				if !send(b) {
					return
				}
			case <-ticker.C:
				if last == nil {
					continue
				}
				tick := *last
				tick.Tick = true
				if !send(tick) {
					return
				}
			}
		}
	}()

	return out
}
