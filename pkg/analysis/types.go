package analysis

import (
	"time"

	"github.com/papercomputeco/tally/pkg/record"
)

// Result bundles every statistic computed for a set of records.
type Result struct {
	Summary         Summary                      `json:"summary"`
	Sessions        map[string]SessionStats      `json:"sessions"`
	Conversations   map[string]ConversationStats `json:"conversations"`
	Clusters        map[int][]string             `json:"clusters"`
	Tools           map[string]ToolStats         `json:"tools"`
	Tokens          TokenStats                   `json:"tokens"`
	Costs           CostStats                    `json:"costs"`
	Temporal        []HourBucket                 `json:"temporal"`
	DurationBuckets []Bucket                     `json:"duration_buckets"`
	CostBuckets     []Bucket                     `json:"cost_buckets"`
}

type Summary struct {
	TotalMessages       int                        `json:"total_messages"`
	ValidMessages       int                        `json:"valid_messages"`
	InvalidMessages     int                        `json:"invalid_messages"`
	ParseErrors         int                        `json:"parse_errors"`
	ValidationErrors    int                        `json:"validation_errors"`
	TimestampWarnings   int                        `json:"timestamp_warnings"`
	UniqueSessions      int                        `json:"unique_sessions"`
	UniqueConversations int                        `json:"unique_conversations"`
	MessageTypes        map[record.MessageType]int `json:"message_types"`
	Models              map[string]int             `json:"models"`
	FirstTimestamp      *time.Time                 `json:"first_timestamp"`
	LastTimestamp       *time.Time                 `json:"last_timestamp"`
}

// SessionStats describes all valid records sharing a session id.
type SessionStats struct {
	ID                 string         `json:"id"`
	MessageCount       int            `json:"message_count"`
	UserMessages       int            `json:"user_messages"`
	AssistantMessages  int            `json:"assistant_messages"`
	SystemMessages     int            `json:"system_messages"`
	ToolUsages         int            `json:"tool_usages"`
	Summaries          int            `json:"summaries"`
	Start              *time.Time     `json:"start"`
	End                *time.Time     `json:"end"`
	Duration           *time.Duration `json:"duration_ns"`
	ToolsPerMinute     *float64       `json:"tools_per_minute"`
	AssistantPerMinute *float64       `json:"assistant_per_minute"`
	InteractionRatio   *float64       `json:"interaction_ratio"`
	Tokens             int64          `json:"tokens"`
	Cost               float64        `json:"cost"`
	Conversations      []string       `json:"conversations"`
	Flow               Flow           `json:"flow"`
}

// ConversationStats describes all valid records sharing a conversation id.
type ConversationStats struct {
	ID            string     `json:"id"`
	MessageCount  int        `json:"message_count"`
	Sessions      []string   `json:"sessions"`
	Start         *time.Time `json:"start"`
	End           *time.Time `json:"end"`
	DistinctTools int        `json:"distinct_tools"`
	Cluster       int        `json:"cluster"`
	Flow          Flow       `json:"flow"`
}

// Flow is the ordered shape of a group of records: how often one actor
// followed another, and which tools were used how often.
type Flow struct {
	Transitions map[string]int `json:"transitions"`
	Tools       map[string]int `json:"tools"`

	// First and Last are the endpoints of the ordered sequence. Merge uses
	// them to count the transition that spans two batches.
	First *Step `json:"first,omitempty"`
	Last  *Step `json:"last,omitempty"`
}

// Step is one position in a flow.
type Step struct {
	Actor     string     `json:"actor"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Line      int        `json:"line"`
}

type ToolStats struct {
	Name              string     `json:"name"`
	Usage             int        `json:"usage"`
	Successes         int        `json:"successes"`
	SuccessRate       *float64   `json:"success_rate"`
	Sessions          []string   `json:"sessions"`
	DistinctSessions  int        `json:"distinct_sessions"`
	AvgUsesPerSession *float64   `json:"avg_uses_per_session"`
	FirstUsed         *time.Time `json:"first_used"`
	LastUsed          *time.Time `json:"last_used"`
}

type TokenStats struct {
	Total        int64    `json:"total"`
	Average      *float64 `json:"average"`
	Max          int64    `json:"max"`
	Min          int64    `json:"min"`
	MessageCount int      `json:"message_count"`
}

type CostStats struct {
	Total float64 `json:"total"`

	// MessageCount and Average cover model-bearing records only; they are the
	// baseline recommendations compare each model against.
	MessageCount int      `json:"message_count"`
	Average      *float64 `json:"average"`

	// Estimated counts costs filled in from the pricing table.
	Estimated int `json:"estimated"`

	ByModel           map[string]ModelCost `json:"by_model"`
	BySession         map[string]float64   `json:"by_session"`
	ExpensiveSessions []SessionCost        `json:"expensive_sessions"`
	Recommendations   []Recommendation     `json:"recommendations"`
}

type ModelCost struct {
	Model        string   `json:"model"`
	Cost         float64  `json:"cost"`
	MessageCount int      `json:"message_count"`
	Average      *float64 `json:"average"`
}

type SessionCost struct {
	SessionID string  `json:"session_id"`
	Cost      float64 `json:"cost"`
}

// Recommendation flags a model that costs noticeably more per message than
// the overall average.
type Recommendation struct {
	Model         string  `json:"model"`
	Average       float64 `json:"average"`
	GlobalAverage float64 `json:"global_average"`
	Ratio         float64 `json:"ratio"`
	Message       string  `json:"message"`
}

// HourBucket counts valid records in one UTC hour, keyed "2006-01-02T15".
type HourBucket struct {
	Hour  string `json:"hour"`
	Count int    `json:"count"`
}

type Bucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}
