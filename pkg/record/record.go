// Package record defines the canonical, classified unit produced for every
// input line of an interaction log, along with the error taxonomy shared by
// the ingest and analysis pipeline.
package record

import (
	"encoding/json"
	"time"
)

// MessageType is the variant a record was classified as.
type MessageType string

const (
	TypeUser      MessageType = "user-message"
	TypeAssistant MessageType = "assistant-message"
	TypeSystem    MessageType = "system-message"
	TypeToolUsage MessageType = "tool-usage"
	TypeSummary   MessageType = "summary-message"
	TypeUnknown   MessageType = "unknown"
)

// Canonical field names. Boundary names (sessionId, tool_name, ...) are
// rewritten to these by the normalizer before classification.
const (
	FieldTimestamp      = "timestamp"
	FieldSessionID      = "session-id"
	FieldMessageID      = "message-id"
	FieldConversationID = "conversation-id"
	FieldRole           = "role"
	FieldContent        = "content"
	FieldToolName       = "tool-name"
	FieldToolInput      = "tool-input"
	FieldToolOutput     = "tool-output"
	FieldTokenCount     = "token-count"
	FieldModel          = "model"
	FieldCost           = "cost"
)

// Record is one normalized, classified line. Records are values and are never
// mutated once the classifier has produced them.
type Record struct {
	Line           int             `json:"line"`
	Timestamp      *time.Time      `json:"timestamp,omitempty"`
	SessionID      string          `json:"session_id,omitempty"`
	MessageID      string          `json:"message_id,omitempty"`
	ConversationID string          `json:"conversation_id,omitempty"`
	Role           string          `json:"role,omitempty"`
	Content        json.RawMessage `json:"content,omitempty"`
	ToolName       string          `json:"tool_name,omitempty"`
	ToolInput      json.RawMessage `json:"tool_input,omitempty"`
	ToolOutput     json.RawMessage `json:"tool_output,omitempty"`
	TokenCount     *int64          `json:"token_count,omitempty"`
	Model          string          `json:"model,omitempty"`
	Cost           *float64        `json:"cost,omitempty"`

	Type        MessageType  `json:"message_type"`
	Valid       bool         `json:"valid"`
	FieldErrors []FieldError `json:"field_errors,omitempty"`
	Err         error        `json:"-"`
	Warnings    []Warning    `json:"warnings,omitempty"`
	Raw         string       `json:"raw,omitempty"`
}

// Actor is the participant a record speaks for: its role when one is set,
// otherwise its message type (tool usages and summaries carry no role).
func (r Record) Actor() string {
	if r.Role != "" {
		return r.Role
	}
	return string(r.Type)
}

// HasToolOutput reports whether the record carries a non-null tool output.
func (r Record) HasToolOutput() bool {
	return IsPresent(r.ToolOutput)
}

// IsParseFailure reports whether the record stands in for a line that could
// not be decoded.
func (r Record) IsParseFailure() bool {
	_, ok := AsParseError(r.Err)
	return ok
}

// IsPresent reports whether a raw JSON value exists and is not null.
func IsPresent(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	return string(raw) != "null"
}
