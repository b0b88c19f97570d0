package api

import (
	"bufio"
	"encoding/json"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/sse"
	"github.com/papercomputeco/tally/pkg/stream"
)

// ProgressEventType is the SSE event type sent on /v1/events.
const ProgressEventType = "progress"

// ProgressEvent is the data of one progress event: how far the rollup has
// got and the merged result at that point.
type ProgressEvent struct {
	Stream stream.RollupStats `json:"stream"`
	Result *analysis.Result   `json:"result"`
	At     time.Time          `json:"at"`
}

// handleEvents streams a progress event right away and again whenever a new
// batch has been absorbed. Quiet intervals send a keep-alive comment. The
// event id is the batch count.
func (s *Server) handleEvents(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	interval := s.config.EventInterval
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		sent := -1
		for {
			if err := s.writeProgress(w, &sent); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}
			if err := w.Flush(); err != nil {
				s.logger.Debug("event stream closed", "error", err)
				return
			}

			select {
			case <-s.done:
				return
			case <-ticker.C:
			}
		}
	})

	return nil
}

// writeProgress writes an event when the batch count moved past *sent and a
// keep-alive otherwise.
func (s *Server) writeProgress(w *bufio.Writer, sent *int) error {
	stats := s.source.Stats()
	if stats.Batches == *sent {
		return sse.WriteComment(w, "keep-alive")
	}

	data, err := json.Marshal(ProgressEvent{
		Stream: stats,
		Result: s.source.Latest(),
		At:     time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	ev := &sse.Event{
		ID:   strconv.Itoa(stats.Batches),
		Type: ProgressEventType,
		Data: string(data),
	}
	if _, err := ev.WriteTo(w); err != nil {
		return err
	}
	*sent = stats.Batches
	return nil
}
