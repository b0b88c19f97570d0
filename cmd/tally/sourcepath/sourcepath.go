// Package sourcepath finds the interaction log a command should read and
// opens it as a record stream.
package sourcepath

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/record"
)

// Stdin is the argument that selects standard input.
const Stdin = "-"

// ErrFollowStdin is returned when tail mode is requested for standard input.
var ErrFollowStdin = errors.New("--follow needs a file, not stdin")

// ResolveSourcePath returns the log to read. An explicit argument wins, then
// TALLY_LOG, then the first existing default location.
func ResolveSourcePath(arg string) (string, error) {
	if arg != "" {
		return arg, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("TALLY_LOG")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range candidates() {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", errors.New("could not find an interaction log; pass a path or - for stdin")
}

func candidates() []string {
	out := []string{
		"tally.ndjson",
		"tally.jsonl",
		filepath.Join(".tally", "log.ndjson"),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		out = append(out, filepath.Join(home, ".tally", "log.ndjson"))
	}

	return out
}

// Open starts ingesting path on its own goroutine. With follow set the file
// is tailed until ctx is cancelled. The returned context is derived from ctx
// and is cancelled when ingestion fails, so processors run under it drop
// their partial batch rather than report it as final. The error itself
// arrives on the error channel.
func Open(ctx context.Context, path string, follow bool, queue int, opts ...ingest.Option) (context.Context, <-chan record.Record, <-chan error, error) {
	if path == Stdin && follow {
		return nil, nil, nil, ErrFollowStdin
	}

	srcCtx, abort := context.WithCancelCause(ctx)
	opts = append(slices.Clip(opts), ingest.WithCancelOnError(abort))

	var (
		records <-chan record.Record
		errc    <-chan error
	)
	switch {
	case path == Stdin:
		records, errc = ingest.StreamReader(srcCtx, os.Stdin, queue, opts...)
	case follow:
		records, errc = ingest.FollowStream(srcCtx, path, queue, opts...)
	default:
		records, errc = ingest.Stream(srcCtx, path, queue, opts...)
	}
	return srcCtx, records, errc, nil
}
