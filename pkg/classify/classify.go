// Package classify assigns a message type to normalized entries and validates
// them against the required-field table for that type.
package classify

import (
	"encoding/json"

	"github.com/papercomputeco/tally/pkg/record"
)

// roleTypes maps a role value onto its message type.
var roleTypes = map[string]record.MessageType{
	"user":      record.TypeUser,
	"assistant": record.TypeAssistant,
	"system":    record.TypeSystem,
}

// rule is one row of the classification decision table.
type rule func(fields map[string]json.RawMessage) (record.MessageType, bool)

// rules is evaluated top to bottom; the first matching row decides the type.
//
//  1. tool-name present                             -> tool-usage
//  2. role present                                  -> by role, unmapped roles are unknown
//  3. conversation-id present, message-id absent    -> summary-message
//  4. anything else                                 -> unknown
var rules = []rule{
	func(fields map[string]json.RawMessage) (record.MessageType, bool) {
		return record.TypeToolUsage, present(fields, record.FieldToolName)
	},
	func(fields map[string]json.RawMessage) (record.MessageType, bool) {
		if !present(fields, record.FieldRole) {
			return "", false
		}
		role, ok := stringValue(fields[record.FieldRole])
		if !ok {
			return record.TypeUnknown, true
		}
		if t, mapped := roleTypes[role]; mapped {
			return t, true
		}
		return record.TypeUnknown, true
	},
	func(fields map[string]json.RawMessage) (record.MessageType, bool) {
		ok := present(fields, record.FieldConversationID) && !present(fields, record.FieldMessageID)
		return record.TypeSummary, ok
	},
}

// Classify returns the message type for a set of canonical-keyed fields.
func Classify(fields map[string]json.RawMessage) record.MessageType {
	for _, r := range rules {
		if t, ok := r(fields); ok {
			return t
		}
	}
	return record.TypeUnknown
}

func present(fields map[string]json.RawMessage, key string) bool {
	raw, ok := fields[key]
	return ok && record.IsPresent(raw)
}

func stringValue(raw json.RawMessage) (string, bool) {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", false
	}
	return s, true
}
