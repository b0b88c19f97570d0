package classify

import (
	"encoding/json"
	"math"

	"github.com/papercomputeco/tally/pkg/normalize"
	"github.com/papercomputeco/tally/pkg/record"
)

// Record classifies and validates a normalized entry and returns the final
// record for it. Entries that failed to decode become invalid records of the
// unknown type carrying their ParseError and raw text.
func Record(entry normalize.Entry) record.Record {
	if entry.Err != nil {
		return record.Record{
			Line:     entry.Line,
			Type:     record.TypeUnknown,
			Valid:    false,
			Err:      entry.Err,
			Raw:      entry.Raw,
			Warnings: entry.Warnings,
		}
	}

	f := entry.Fields
	t := Classify(f)
	fieldErrs := Validate(t, f)

	r := record.Record{
		Line:           entry.Line,
		Timestamp:      entry.Timestamp,
		SessionID:      str(f, record.FieldSessionID),
		MessageID:      str(f, record.FieldMessageID),
		ConversationID: str(f, record.FieldConversationID),
		Role:           str(f, record.FieldRole),
		Content:        raw(f, record.FieldContent),
		ToolName:       str(f, record.FieldToolName),
		ToolInput:      raw(f, record.FieldToolInput),
		ToolOutput:     raw(f, record.FieldToolOutput),
		TokenCount:     integer(f, record.FieldTokenCount),
		Model:          str(f, record.FieldModel),
		Cost:           number(f, record.FieldCost),
		Type:           t,
		Valid:          len(fieldErrs) == 0,
		FieldErrors:    fieldErrs,
		Warnings:       entry.Warnings,
	}

	if !r.Valid {
		r.Err = &record.ValidationError{Line: entry.Line, Type: t, Fields: fieldErrs}
	}

	return r
}

func raw(f map[string]json.RawMessage, key string) json.RawMessage {
	v, ok := f[key]
	if !ok || !record.IsPresent(v) {
		return nil
	}
	return v
}

func str(f map[string]json.RawMessage, key string) string {
	v := raw(f, key)
	if v == nil {
		return ""
	}
	s, _ := stringValue(v)
	return s
}

func number(f map[string]json.RawMessage, key string) *float64 {
	v := raw(f, key)
	if v == nil {
		return nil
	}
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		return nil
	}
	return &n
}

func integer(f map[string]json.RawMessage, key string) *int64 {
	n := number(f, key)
	if n == nil {
		return nil
	}
	i := int64(math.Round(*n))
	return &i
}
