package ingest

import (
	"context"
	"io"

	"github.com/papercomputeco/tally/pkg/record"
)

// Stream ingests path on its own goroutine and delivers records on a channel
// with room for queue records. The record channel is closed at end of input.
// A fatal error, if any, is sent on the error channel, which is closed after
// the record channel. See WithCancelOnError for telling a failed source apart
// from a finished one on the record channel alone. Cancelling ctx stops the producer even while it is
// blocked on a full channel.
func Stream(ctx context.Context, path string, queue int, opts ...Option) (<-chan record.Record, <-chan error) {
	return stream(ctx, queue, opts, func(fn Handler) error {
		return ParseFileIncremental(ctx, path, fn, opts...)
	})
}

// StreamReader is Stream over an already open reader, such as stdin. The
// caller keeps ownership of r.
func StreamReader(ctx context.Context, r io.Reader, queue int, opts ...Option) (<-chan record.Record, <-chan error) {
	return stream(ctx, queue, opts, func(fn Handler) error {
		return ParseIncremental(ctx, r, fn, opts...)
	})
}

func stream(ctx context.Context, queue int, opts []Option, run func(Handler) error) (<-chan record.Record, <-chan error) {
	if queue < 0 {
		queue = 0
	}
	abort := newOptions(opts).abort
	out := make(chan record.Record, queue)
	errc := make(chan error, 1)

	go func() {
		defer close(errc)
		defer close(out)

		err := run(Send(ctx, out))
		if err != nil {
			if abort != nil && ctx.Err() == nil {
				abort(err)
			}
			errc <- err
		}
	}()

	return out, errc
}

// Send returns a Handler that forwards records to out, giving up when ctx is
// cancelled.
func Send(ctx context.Context, out chan<- record.Record) Handler {
	return func(rec record.Record) error {
		select {
		case out <- rec:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// FollowStream is Stream in tail mode: after the current contents of path
// have been delivered it keeps sending appended records until ctx is
// cancelled. The record channel only closes on cancellation or a fatal error.
func FollowStream(ctx context.Context, path string, queue int, opts ...Option) (<-chan record.Record, <-chan error) {
	return stream(ctx, queue, opts, func(fn Handler) error {
		err := Follow(ctx, path, fn, opts...)
		if ctx.Err() != nil {
			return nil
		}
		return err
	})
}
