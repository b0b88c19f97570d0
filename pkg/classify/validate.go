package classify

import (
	"bytes"
	"encoding/json"
	"math"

	"github.com/papercomputeco/tally/pkg/record"
)

// Kind is the JSON shape a field must have.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindAny    Kind = "any"
)

// FieldSpec names a field and the kind it must decode as.
type FieldSpec struct {
	Name string
	Kind Kind
}

// CommonFields are required by every message type.
var CommonFields = []FieldSpec{
	{Name: record.FieldTimestamp, Kind: KindAny},
	{Name: record.FieldSessionID, Kind: KindString},
	{Name: record.FieldConversationID, Kind: KindString},
}

// RequiredFields lists the fields each message type needs on top of
// CommonFields. Adding a message type is a matter of adding a row here and a
// rule to the classifier.
var RequiredFields = map[record.MessageType][]FieldSpec{
	record.TypeUser: {
		{Name: record.FieldMessageID, Kind: KindString},
		{Name: record.FieldContent, Kind: KindAny},
		{Name: record.FieldRole, Kind: KindString},
	},
	record.TypeAssistant: {
		{Name: record.FieldMessageID, Kind: KindString},
		{Name: record.FieldContent, Kind: KindAny},
		{Name: record.FieldRole, Kind: KindString},
		{Name: record.FieldModel, Kind: KindString},
	},
	record.TypeSystem: {
		{Name: record.FieldMessageID, Kind: KindString},
		{Name: record.FieldContent, Kind: KindAny},
		{Name: record.FieldRole, Kind: KindString},
	},
	record.TypeToolUsage: {
		{Name: record.FieldMessageID, Kind: KindString},
		{Name: record.FieldToolName, Kind: KindString},
		{Name: record.FieldToolInput, Kind: KindAny},
	},
	record.TypeSummary: {},
}

// OptionalFields are checked for kind only when present.
var OptionalFields = []FieldSpec{
	{Name: record.FieldTokenCount, Kind: KindNumber},
	{Name: record.FieldCost, Kind: KindNumber},
}

// Validate checks fields against the table row for t and returns every
// offending field in table order. An empty result means the entry is valid.
// The unknown type is never valid.
func Validate(t record.MessageType, fields map[string]json.RawMessage) []record.FieldError {
	var errs []record.FieldError

	for _, spec := range CommonFields {
		if fe, bad := check(spec, fields, true); bad {
			errs = append(errs, fe)
		}
	}

	extra, known := RequiredFields[t]
	if !known {
		errs = append(errs, unclassified(fields))
	}
	for _, spec := range extra {
		if fe, bad := check(spec, fields, true); bad {
			errs = append(errs, fe)
		}
	}

	for _, spec := range OptionalFields {
		if fe, bad := check(spec, fields, false); bad {
			errs = append(errs, fe)
		}
	}

	return errs
}

// unclassified explains why an entry fell through to the unknown type: either
// it has no role at all or its role is not one we recognize.
func unclassified(fields map[string]json.RawMessage) record.FieldError {
	if !present(fields, record.FieldRole) {
		return record.FieldError{Field: record.FieldRole, Reason: record.ReasonMissing}
	}
	return record.FieldError{Field: record.FieldRole, Reason: record.ReasonUnknown}
}

func check(spec FieldSpec, fields map[string]json.RawMessage, required bool) (record.FieldError, bool) {
	raw, ok := fields[spec.Name]
	if !ok || !record.IsPresent(raw) {
		if !required {
			return record.FieldError{}, false
		}
		return record.FieldError{Field: spec.Name, Reason: record.ReasonMissing}, true
	}

	if !hasKind(raw, spec.Kind) {
		return record.FieldError{Field: spec.Name, Reason: record.ReasonMistyped, Expected: string(spec.Kind)}, true
	}

	// A required string must carry a value.
	if required && spec.Kind == KindString && isEmptyString(raw) {
		return record.FieldError{Field: spec.Name, Reason: record.ReasonEmpty}, true
	}
	return record.FieldError{}, false
}

func isEmptyString(raw json.RawMessage) bool {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false
	}
	return s == ""
}

func hasKind(raw json.RawMessage, kind Kind) bool {
	raw = bytes.TrimSpace(raw)
	switch kind {
	case KindString:
		return len(raw) > 0 && raw[0] == '"'
	case KindNumber:
		var n float64
		if err := json.Unmarshal(raw, &n); err != nil {
			return false
		}
		return !math.IsNaN(n) && !math.IsInf(n, 0)
	default:
		return true
	}
}
