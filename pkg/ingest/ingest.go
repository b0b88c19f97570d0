// Package ingest drives NDJSON sources through normalization and
// classification, either into a slice (bulk) or record by record
// (incremental). Malformed lines never stop a run; only failures to open or
// read the source do.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/papercomputeco/tally/pkg/classify"
	"github.com/papercomputeco/tally/pkg/logger"
	"github.com/papercomputeco/tally/pkg/normalize"
	"github.com/papercomputeco/tally/pkg/record"
)

// DefaultMaxLineBytes bounds a single input line.
const DefaultMaxLineBytes = 10 * 1024 * 1024

// initialBufferBytes sizes the read buffer. Longer lines are assembled in a
// separate buffer up to the configured maximum.
const initialBufferBytes = 64 * 1024

// Handler receives records in input order. Returning an error stops the
// ingest and the error is handed back to the caller unchanged.
type Handler func(record.Record) error

type options struct {
	maxLineBytes int
	logger       *slog.Logger
	abort        context.CancelCauseFunc
}

// Option configures an ingest run.
type Option func(*options)

// WithMaxLineBytes overrides DefaultMaxLineBytes. Non-positive values are
// ignored.
func WithMaxLineBytes(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxLineBytes = n
		}
	}
}

// WithLogger sets the logger used for per-line diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger.OrNop(l)
	}
}

// WithCancelOnError makes Stream, StreamReader and FollowStream call cancel
// with the fatal error before they close the record channel. Consumers
// running under the cancelled context then stop as on cancellation instead of
// taking the close for the end of input.
func WithCancelOnError(cancel context.CancelCauseFunc) Option {
	return func(o *options) {
		o.abort = cancel
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		maxLineBytes: DefaultMaxLineBytes,
		logger:       logger.Nop(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Parse reads all of r and returns its records in line order.
func Parse(ctx context.Context, r io.Reader, opts ...Option) ([]record.Record, error) {
	var records []record.Record
	err := ParseIncremental(ctx, r, func(rec record.Record) error {
		records = append(records, rec)
		return nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []record.Record{}
	}
	return records, nil
}

// ParseIncremental reads r line by line and calls fn for every non-blank
// line. Memory use is bounded by the longest line, not the input size. A line
// over the maximum length becomes an invalid record with a ParseError wrapping
// ErrLineTooLong.
func ParseIncremental(ctx context.Context, r io.Reader, fn Handler, opts ...Option) error {
	o := newOptions(opts)
	lines := newLineReader(r, o.maxLineBytes)

	lineNo := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		text, tooLong, err := lines.next()
		eof := errors.Is(err, io.EOF)
		switch {
		case eof && !lines.pending():
			return nil
		case eof:
			text, tooLong = lines.take()
		case err != nil:
			return &record.SourceIOError{Op: "read", Err: err}
		}

		lineNo++
		if err := o.emit(text, tooLong, lineNo, fn); err != nil {
			return err
		}
		if eof {
			return nil
		}
	}
}

// emit classifies one line and hands the record to fn. Blank lines are
// skipped.
func (o *options) emit(text string, tooLong bool, lineNo int, fn Handler) error {
	var entry normalize.Entry
	if tooLong {
		entry = normalize.Entry{
			Line: lineNo,
			Err: &record.ParseError{
				Line: lineNo,
				Err:  fmt.Errorf("%w: over %d bytes", ErrLineTooLong, o.maxLineBytes),
			},
		}
	} else {
		var ok bool
		if entry, ok = normalize.Line(text, lineNo); !ok {
			return nil
		}
	}

	rec := classify.Record(entry)
	if rec.Err != nil {
		o.logger.Debug("invalid line", "line", lineNo, "type", rec.Type, "error", rec.Err)
	}
	for _, w := range rec.Warnings {
		o.logger.Debug("line warning", "line", lineNo, "field", w.Field, "message", w.Message)
	}

	return fn(rec)
}

// ParseFile opens path and parses it in bulk.
func ParseFile(ctx context.Context, path string, opts ...Option) ([]record.Record, error) {
	f, err := open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := Parse(ctx, f, opts...)
	return records, withPath(err, path)
}

// ParseFileIncremental opens path and parses it incrementally. The file is
// closed on every return path, including callback errors and cancellation.
func ParseFileIncremental(ctx context.Context, path string, fn Handler, opts ...Option) error {
	f, err := open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return withPath(ParseIncremental(ctx, f, fn, opts...), path)
}

func open(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &record.SourceIOError{Path: path, Op: "open", Err: err}
	}
	return f, nil
}

// withPath fills in the path of a SourceIOError raised by a reader-level
// function.
func withPath(err error, path string) error {
	var srcErr *record.SourceIOError
	if errors.As(err, &srcErr) && srcErr.Path == "" {
		srcErr.Path = path
	}
	return err
}
