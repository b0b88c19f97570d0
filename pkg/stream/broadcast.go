package stream

import (
	"context"

	"github.com/papercomputeco/tally/pkg/record"
)

// Broadcast fans in out to n channels of capacity queue. Every record is
// delivered to every output in order; a full output blocks the whole fan-out
// until it drains. All outputs close when in closes or ctx is cancelled.
// Records are values, so consumers never share buffer state.
func Broadcast(ctx context.Context, in <-chan record.Record, n, queue int) []<-chan record.Record {
	if n <= 0 {
		return nil
	}
	queue = max(queue, 0)

	outs := make([]chan record.Record, n)
	readers := make([]<-chan record.Record, n)
	for i := range outs {
		outs[i] = make(chan record.Record, queue)
		readers[i] = outs[i]
	}

	go func() {
		defer func() {
			for _, out := range outs {
				close(out)
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case rec, ok := <-in:
				if !ok {
					return
				}
				for _, out := range outs {
					select {
					case out <- rec:
					case <-ctx.Done():
						return
					}
				}
			}
		}
	}()

	return readers
}
