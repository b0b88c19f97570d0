package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/papercomputeco/tally/pkg/record"
)

// Follow ingests the current contents of path and then keeps tailing it,
// calling fn for every complete line appended afterwards. A trailing line
// without a newline is held back until it is finished. If the file shrinks it
// is treated as truncated and read again from the start with line numbers
// restarting at 1. Follow returns ctx.Err() when ctx is cancelled.
func Follow(ctx context.Context, path string, fn Handler, opts ...Option) error {
	o := newOptions(opts)

	f, err := open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return &record.SourceIOError{Path: path, Op: "watch", Err: err}
	}

	o.logger = o.logger.With("path", path)
	t := &tail{
		file:  f,
		lines: newLineReader(f, o.maxLineBytes),
		opts:  o,
		path:  path,
		fn:    fn,
	}

	if err := t.readAvailable(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			if err := t.readAvailable(ctx); err != nil {
				return err
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return &record.SourceIOError{Path: path, Op: "watch", Err: err}
		}
	}
}

// tail tracks the read position of a followed file.
type tail struct {
	file   *os.File
	lines  *lineReader
	opts   *options
	path   string
	fn     Handler
	lineNo int
}

func (t *tail) readAvailable(ctx context.Context) error {
	if err := t.checkTruncated(); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		text, tooLong, err := t.lines.next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return &record.SourceIOError{Path: t.path, Op: "read", Err: err}
		}

		t.lineNo++
		if err := t.opts.emit(text, tooLong, t.lineNo, t.fn); err != nil {
			return err
		}
	}
}

func (t *tail) checkTruncated() error {
	info, err := t.file.Stat()
	if err != nil {
		return &record.SourceIOError{Path: t.path, Op: "stat", Err: err}
	}
	if info.Size() >= t.lines.consumed {
		return nil
	}

	t.opts.logger.Info("followed file truncated, reading from start")
	if _, err := t.file.Seek(0, io.SeekStart); err != nil {
		return &record.SourceIOError{Path: t.path, Op: "seek", Err: err}
	}
	t.lines.reset(t.file)
	t.lineNo = 0
	return nil
}
