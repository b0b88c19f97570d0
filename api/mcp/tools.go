package mcp

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/report"
)

var (
	summaryToolName    = "summary"
	summaryDescription = "Summarize the analyzed AI assistant interaction log: message counts by type, validity, sessions, conversations and the covered time span."

	sessionToolName    = "session"
	sessionDescription = "Show statistics for one session of the interaction log: message mix, duration, tool and assistant rates, tokens, cost and actor transitions."

	toolsToolName    = "tools"
	toolsDescription = "List tool usage in the interaction log, most used first, with success rates and session spread."

	costsToolName    = "costs"
	costsDescription = "Report costs of the interaction log by model, the most expensive sessions and model recommendations."
)

const defaultToolLimit = 20

// SummaryInput takes no arguments.
type SummaryInput struct{}

// SummaryOutput is the summary tool result.
type SummaryOutput struct {
	TotalMessages       int            `json:"total_messages"`
	ValidMessages       int            `json:"valid_messages"`
	InvalidMessages     int            `json:"invalid_messages"`
	ParseErrors         int            `json:"parse_errors"`
	ValidationErrors    int            `json:"validation_errors"`
	UniqueSessions      int            `json:"unique_sessions"`
	UniqueConversations int            `json:"unique_conversations"`
	MessageTypes        map[string]int `json:"message_types"`
	FirstTimestamp      string         `json:"first_timestamp,omitempty"`
	LastTimestamp       string         `json:"last_timestamp,omitempty"`
}

// SessionInput names the session to show.
type SessionInput struct {
	ID string `json:"id" jsonschema:"the session id"`
}

// SessionOutput is the session tool result.
type SessionOutput struct {
	ID                 string         `json:"id"`
	Found              bool           `json:"found"`
	MessageCount       int            `json:"message_count"`
	UserMessages       int            `json:"user_messages"`
	AssistantMessages  int            `json:"assistant_messages"`
	ToolUsages         int            `json:"tool_usages"`
	DurationSeconds    float64        `json:"duration_seconds"`
	ToolsPerMinute     float64        `json:"tools_per_minute"`
	AssistantPerMinute float64        `json:"assistant_per_minute"`
	InteractionRatio   float64        `json:"interaction_ratio"`
	Tokens             int64          `json:"tokens"`
	Cost               float64        `json:"cost"`
	Conversations      []string       `json:"conversations"`
	Transitions        map[string]int `json:"transitions"`
}

// ToolsInput limits the tool list.
type ToolsInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"number of tools to return (default: 20)"`
}

// ToolEntry is one row of the tools tool result.
type ToolEntry struct {
	Name              string  `json:"name"`
	Usage             int     `json:"usage"`
	SuccessRate       float64 `json:"success_rate"`
	DistinctSessions  int     `json:"distinct_sessions"`
	AvgUsesPerSession float64 `json:"avg_uses_per_session"`
}

// ToolsOutput is the tools tool result.
type ToolsOutput struct {
	Tools []ToolEntry `json:"tools"`
	Count int         `json:"count"`
}

// CostsInput takes no arguments.
type CostsInput struct{}

// ModelEntry is one model row of the costs tool result.
type ModelEntry struct {
	Model        string  `json:"model"`
	Cost         float64 `json:"cost"`
	MessageCount int     `json:"message_count"`
	Average      float64 `json:"average"`
}

// SessionCostEntry is one expensive session.
type SessionCostEntry struct {
	SessionID string  `json:"session_id"`
	Cost      float64 `json:"cost"`
}

// CostsOutput is the costs tool result.
type CostsOutput struct {
	Total             float64            `json:"total"`
	Average           float64            `json:"average"`
	Models            []ModelEntry       `json:"models"`
	ExpensiveSessions []SessionCostEntry `json:"expensive_sessions"`
	Recommendations   []string           `json:"recommendations"`
}

func (s *Server) handleSummary(_ context.Context, _ *mcp.CallToolRequest, _ SummaryInput) (*mcp.CallToolResult, SummaryOutput, error) {
	res := s.config.Source.Latest()
	sum := res.Summary

	out := SummaryOutput{
		TotalMessages:       sum.TotalMessages,
		ValidMessages:       sum.ValidMessages,
		InvalidMessages:     sum.InvalidMessages,
		ParseErrors:         sum.ParseErrors,
		ValidationErrors:    sum.ValidationErrors,
		UniqueSessions:      sum.UniqueSessions,
		UniqueConversations: sum.UniqueConversations,
		MessageTypes:        make(map[string]int, len(sum.MessageTypes)),
		FirstTimestamp:      formatTime(sum.FirstTimestamp),
		LastTimestamp:       formatTime(sum.LastTimestamp),
	}
	for t, n := range sum.MessageTypes {
		out.MessageTypes[string(t)] = n
	}

	s.config.Logger.Debug("MCP summary request", "total_messages", out.TotalMessages)

	return textResult(report.Summary(res)), out, nil
}

func (s *Server) handleSession(_ context.Context, _ *mcp.CallToolRequest, input SessionInput) (*mcp.CallToolResult, SessionOutput, error) {
	s.config.Logger.Debug("MCP session request", "session", input.ID)

	res := s.config.Source.Latest()
	stats, ok := res.Sessions[input.ID]
	if !ok {
		return &mcp.CallToolResult{
			IsError: true,
			Content: []mcp.Content{
				&mcp.TextContent{Text: fmt.Sprintf("Session %q not found", input.ID)},
			},
		}, SessionOutput{ID: input.ID, Conversations: []string{}, Transitions: map[string]int{}}, nil
	}

	out := SessionOutput{
		ID:                 stats.ID,
		Found:              true,
		MessageCount:       stats.MessageCount,
		UserMessages:       stats.UserMessages,
		AssistantMessages:  stats.AssistantMessages,
		ToolUsages:         stats.ToolUsages,
		ToolsPerMinute:     value(stats.ToolsPerMinute),
		AssistantPerMinute: value(stats.AssistantPerMinute),
		InteractionRatio:   value(stats.InteractionRatio),
		Tokens:             stats.Tokens,
		Cost:               stats.Cost,
		Conversations:      append([]string{}, stats.Conversations...),
		Transitions:        stats.Flow.Transitions,
	}
	if stats.Duration != nil {
		out.DurationSeconds = stats.Duration.Seconds()
	}
	if out.Transitions == nil {
		out.Transitions = map[string]int{}
	}

	return textResult(report.Session(stats)), out, nil
}

func (s *Server) handleTools(_ context.Context, _ *mcp.CallToolRequest, input ToolsInput) (*mcp.CallToolResult, ToolsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultToolLimit
	}

	res := s.config.Source.Latest()
	names := res.ToolNames()
	if len(names) > limit {
		names = names[:limit]
	}

	out := ToolsOutput{Tools: make([]ToolEntry, 0, len(names))}
	var text string
	for _, name := range names {
		t := res.Tools[name]
		out.Tools = append(out.Tools, ToolEntry{
			Name:              name,
			Usage:             t.Usage,
			SuccessRate:       value(t.SuccessRate),
			DistinctSessions:  t.DistinctSessions,
			AvgUsesPerSession: value(t.AvgUsesPerSession),
		})
		text += fmt.Sprintf("%s: %d uses, %.0f%% successful, %d sessions\n",
			name, t.Usage, value(t.SuccessRate)*100, t.DistinctSessions)
	}
	out.Count = len(out.Tools)
	if text == "" {
		text = "No tool usage recorded."
	}

	s.config.Logger.Debug("MCP tools request", "limit", limit, "count", out.Count)

	return textResult(text), out, nil
}

func (s *Server) handleCosts(_ context.Context, _ *mcp.CallToolRequest, _ CostsInput) (*mcp.CallToolResult, CostsOutput, error) {
	res := s.config.Source.Latest()
	costs := res.Costs

	out := CostsOutput{
		Total:             costs.Total,
		Average:           value(costs.Average),
		Models:            make([]ModelEntry, 0, len(costs.ByModel)),
		ExpensiveSessions: make([]SessionCostEntry, 0, len(costs.ExpensiveSessions)),
		Recommendations:   make([]string, 0, len(costs.Recommendations)),
	}
	for _, m := range costs.ByModel {
		out.Models = append(out.Models, ModelEntry{
			Model:        m.Model,
			Cost:         m.Cost,
			MessageCount: m.MessageCount,
			Average:      value(m.Average),
		})
	}
	sortModels(out.Models)
	for _, sc := range costs.ExpensiveSessions {
		out.ExpensiveSessions = append(out.ExpensiveSessions, SessionCostEntry(sc))
	}
	for _, r := range costs.Recommendations {
		out.Recommendations = append(out.Recommendations, r.Message)
	}

	text := fmt.Sprintf("Total cost $%.4f across %d models.", out.Total, len(out.Models))
	for _, r := range out.Recommendations {
		text += "\n- " + r
	}

	s.config.Logger.Debug("MCP costs request", "total", out.Total)

	return textResult(text), out, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func value(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func sortModels(models []ModelEntry) {
	slices.SortFunc(models, func(a, b ModelEntry) int {
		if c := cmp.Compare(b.Cost, a.Cost); c != 0 {
			return c
		}
		return cmp.Compare(a.Model, b.Model)
	})
}

var _ Source = (*staticSource)(nil)

// staticSource serves a fixed result.
type staticSource struct {
	result *analysis.Result
}

// Static wraps a fixed result as a Source, for one-shot analyses.
func Static(res *analysis.Result) Source {
	return &staticSource{result: res}
}

func (s *staticSource) Latest() *analysis.Result {
	return s.result
}
