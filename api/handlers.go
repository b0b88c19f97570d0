package api

import (
	"cmp"
	"slices"
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/stream"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AnalysisResponse is the full result plus what the rollup has absorbed.
type AnalysisResponse struct {
	Path   string             `json:"path,omitempty"`
	Stream stream.RollupStats `json:"stream"`
	Result *analysis.Result   `json:"result"`
}

// SessionSummary is one row of the session list. Flows are left out; fetch
// a single session for those.
type SessionSummary struct {
	ID                string   `json:"id"`
	MessageCount      int      `json:"message_count"`
	ToolUsages        int      `json:"tool_usages"`
	DurationSeconds   *float64 `json:"duration_seconds"`
	InteractionRatio  *float64 `json:"interaction_ratio"`
	Tokens            int64    `json:"tokens"`
	Cost              float64  `json:"cost"`
	ConversationCount int      `json:"conversation_count"`
}

// handlePing returns a simple health check response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

func (s *Server) handleAnalysis(c *fiber.Ctx) error {
	return c.JSON(AnalysisResponse{
		Path:   s.config.Path,
		Stream: s.source.Stats(),
		Result: s.source.Latest(),
	})
}

func (s *Server) handleSummary(c *fiber.Ctx) error {
	return c.JSON(s.source.Latest().Summary)
}

// handleListSessions lists sessions, most messages first. ?limit=N caps the
// list.
func (s *Server) handleListSessions(c *fiber.Ctx) error {
	limit, err := limitParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	res := s.source.Latest()
	sessions := make([]SessionSummary, 0, len(res.Sessions))
	for _, st := range res.Sessions {
		row := SessionSummary{
			ID:                st.ID,
			MessageCount:      st.MessageCount,
			ToolUsages:        st.ToolUsages,
			InteractionRatio:  st.InteractionRatio,
			Tokens:            st.Tokens,
			Cost:              st.Cost,
			ConversationCount: len(st.Conversations),
		}
		if st.Duration != nil {
			secs := st.Duration.Seconds()
			row.DurationSeconds = &secs
		}
		sessions = append(sessions, row)
	}
	slices.SortFunc(sessions, func(a, b SessionSummary) int {
		if r := cmp.Compare(b.MessageCount, a.MessageCount); r != 0 {
			return r
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(sessions) > limit {
		sessions = sessions[:limit]
	}

	return c.JSON(map[string]any{
		"count":    len(res.Sessions),
		"sessions": sessions,
	})
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	id := c.Params("id")
	st, ok := s.source.Latest().Sessions[id]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "session not found"})
	}
	return c.JSON(st)
}

func (s *Server) handleGetConversation(c *fiber.Ctx) error {
	id := c.Params("id")
	conv, ok := s.source.Latest().Conversations[id]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "conversation not found"})
	}
	return c.JSON(conv)
}

// handleTools lists tool statistics, most used first.
func (s *Server) handleTools(c *fiber.Ctx) error {
	limit, err := limitParam(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	res := s.source.Latest()
	names := res.ToolNames()
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	tools := make([]analysis.ToolStats, 0, len(names))
	for _, name := range names {
		tools = append(tools, res.Tools[name])
	}

	return c.JSON(map[string]any{
		"count": len(res.Tools),
		"tools": tools,
	})
}

func (s *Server) handleCosts(c *fiber.Ctx) error {
	return c.JSON(s.source.Latest().Costs)
}

func (s *Server) handleTemporal(c *fiber.Ctx) error {
	res := s.source.Latest()
	return c.JSON(map[string]any{
		"hours":            res.Temporal,
		"duration_buckets": res.DurationBuckets,
		"cost_buckets":     res.CostBuckets,
	})
}

func limitParam(c *fiber.Ctx) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "limit must be a non-negative integer")
	}
	return n, nil
}
