package eventstream

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/tally/pkg/analysis"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeBatchAnalyzed is emitted after a processor has analyzed a batch.
	EventTypeBatchAnalyzed = "tally.batch.analyzed"
)

// BatchAnalyzedEvent is a transport-neutral event payload for one analyzed batch.
type BatchAnalyzedEvent struct {
	SchemaVersion int              `json:"schema_version"`
	EventType     string           `json:"event_type"`
	EventID       string           `json:"event_id"`
	EmittedAt     time.Time        `json:"emitted_at"`
	Source        EventSource      `json:"source"`
	Batch         BatchMeta        `json:"batch"`
	Result        *analysis.Result `json:"result"`
}

// EventSource identifies where the batch came from.
type EventSource struct {
	Path      string `json:"path,omitempty"`
	Processor string `json:"processor,omitempty"`
	Host      string `json:"host,omitempty"`
}

// BatchMeta captures the position of the batch in its stream.
type BatchMeta struct {
	ID         string    `json:"id"`
	Seq        int       `json:"seq"`
	Size       int       `json:"size"`
	FirstLine  int       `json:"first_line"`
	LastLine   int       `json:"last_line"`
	Final      bool      `json:"final"`
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// Key is the partition key for the event: the processor name, so the batches
// of one processor stay ordered.
func (e *BatchAnalyzedEvent) Key() string {
	if e.Source.Processor != "" {
		return e.Source.Processor
	}
	return e.Source.Path
}

// NewBatchAnalyzedEvent stamps a fresh v1 event around meta and result.
func NewBatchAnalyzedEvent(source EventSource, meta BatchMeta, result *analysis.Result) *BatchAnalyzedEvent {
	return &BatchAnalyzedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeBatchAnalyzed,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Batch:         meta,
		Result:        result,
	}
}
