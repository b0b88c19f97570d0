package eventstream

import "context"

// Publisher publishes batch events to an event stream backend.
type Publisher interface {
	PublishBatch(ctx context.Context, event *BatchAnalyzedEvent) error
	Close() error
}
