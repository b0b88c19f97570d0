package watchcmder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/papercomputeco/tally/api"
	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/logger"
	"github.com/papercomputeco/tally/pkg/sse"
	"github.com/papercomputeco/tally/pkg/stream"
)

// eventsPath is where a tally server publishes progress events.
const eventsPath = "/v1/events"

// remoteSource mirrors the rollup of a running tally server from its
// progress events.
type remoteSource struct {
	mu     sync.RWMutex
	result *analysis.Result
	stats  stream.RollupStats
	logger *slog.Logger
}

func newRemoteSource(l *slog.Logger) *remoteSource {
	return &remoteSource{
		result: analysis.Analyze(nil),
		logger: logger.OrNop(l),
	}
}

func (r *remoteSource) Latest() *analysis.Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.result
}

func (r *remoteSource) Stats() stream.RollupStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.stats
}

func (r *remoteSource) set(p api.ProgressEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Result != nil {
		r.result = p.Result
	}
	r.stats = p.Stream
}

// connect opens the event stream of the server at base.
func connect(ctx context.Context, base string) (io.ReadCloser, error) {
	url := strings.TrimSuffix(base, "/") + eventsPath
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", base, err)
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", base, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("connecting to %s: HTTP %d", base, resp.StatusCode)
	}
	return resp.Body, nil
}

// follow applies every progress event in body and sends one update per
// event. It closes updates when body ends. Events of other types are skipped.
func (r *remoteSource) follow(ctx context.Context, body io.Reader, updates chan<- stream.Batch) error {
	defer close(updates)

	events := sse.NewReader(body)
	for {
		ev, err := events.Next()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading events: %w", err)
		}
		if ev == nil {
			return nil
		}
		if ev.Type != api.ProgressEventType {
			r.logger.Debug("skipping event", "type", ev.Type, "id", ev.ID)
			continue
		}

		var p api.ProgressEvent
		if err := json.Unmarshal([]byte(ev.Data), &p); err != nil {
			return fmt.Errorf("decoding event %s: %w", ev.ID, err)
		}
		r.set(p)

		b := stream.Batch{ID: ev.ID, Seq: p.Stream.Batches, At: p.At}
		select {
		case updates <- b:
		case <-ctx.Done():
			return nil
		}
	}
}

// runRemote connects to base and feeds updates until the stream ends. The
// outcome lands on the returned channel once updates has closed.
func (r *remoteSource) runRemote(ctx context.Context, base string, updates chan<- stream.Batch) (<-chan error, error) {
	body, err := connect(ctx, base)
	if err != nil {
		return nil, err
	}

	errc := make(chan error, 1)
	go func() {
		defer body.Close()
		err := r.follow(ctx, body, updates)
		if errors.Is(err, context.Canceled) {
			err = nil
		}
		errc <- err
	}()
	return errc, nil
}
