// Package normalize turns raw NDJSON lines into canonical-keyed entries.
//
// Boundary field names (sessionId, tool_name, costUsd, ...) are rewritten to the
// kebab-case names used throughout tally (session-id, tool-name, cost). Only
// top-level keys are renamed; nested payloads are kept byte-for-byte.
package normalize

import (
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/papercomputeco/tally/pkg/record"
)

// errNotObject is reported for lines that decode to valid JSON that is not an
// object (arrays, strings, numbers, null).
var errNotObject = errors.New("line is not a JSON object")

// aliases maps canonical-cased boundary names that differ from the tally
// vocabulary onto it.
var aliases = map[string]string{
	"cost-usd":     record.FieldCost,
	"tokens":       record.FieldTokenCount,
	"ts":           record.FieldTimestamp,
	"tool":         record.FieldToolName,
	"conversation": record.FieldConversationID,
	"session":      record.FieldSessionID,
}

// Entry is one non-blank input line after normalization.
type Entry struct {
	Line int

	// Fields holds the canonical-keyed top level of the decoded object.
	// Nil when Err is set.
	Fields map[string]json.RawMessage

	// Timestamp is nil when the line has no timestamp or it failed to parse.
	Timestamp *time.Time
	Warnings  []record.Warning

	// Err is a *record.ParseError when the line could not be decoded.
	Err error
	Raw string
}

// Line normalizes one line of text. ok is false for blank lines, which yield
// no entry. Lines that fail to decode produce an entry carrying a ParseError
// and the raw text.
func Line(text string, lineNo int) (Entry, bool) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return Entry{}, false
	}

	var fields map[string]json.RawMessage
	err := json.Unmarshal([]byte(trimmed), &fields)
	if err == nil && fields == nil {
		err = errNotObject
	}
	if err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			err = errNotObject
		}
		return Entry{
			Line: lineNo,
			Err:  &record.ParseError{Line: lineNo, Err: err},
			Raw:  text,
		}, true
	}

	entry := Entry{
		Line:   lineNo,
		Fields: Keys(fields),
	}

	if raw, present := entry.Fields[record.FieldTimestamp]; present && record.IsPresent(raw) {
		ts, ok := ParseTimestamp(raw)
		if ok {
			entry.Timestamp = ts
		} else {
			entry.Warnings = append(entry.Warnings, record.TimestampWarning(string(raw)))
		}
	}

	return entry, true
}

// Keys returns a copy of fields with every top-level key rewritten to its
// canonical name. When several keys collapse onto the same canonical name, a
// key that is already canonical wins, otherwise the lexically first one.
// Keys(Keys(m)) equals Keys(m).
func Keys(fields map[string]json.RawMessage) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage, len(fields))

	var pending []string
	for k, v := range fields {
		if CanonicalKey(k) == k {
			out[k] = v
			continue
		}
		pending = append(pending, k)
	}

	sort.Strings(pending)
	for _, k := range pending {
		ck := CanonicalKey(k)
		if _, taken := out[ck]; taken {
			continue
		}
		out[ck] = fields[k]
	}

	return out
}

// CanonicalKey converts a single boundary key to kebab case and applies the
// alias table: "sessionId" -> "session-id", "tool_name" -> "tool-name",
// "costUSD" -> "cost".
func CanonicalKey(key string) string {
	runes := []rune(key)
	var b strings.Builder
	b.Grow(len(key) + 4)

	lastDash := true
	for i, r := range runes {
		switch {
		case r == '_' || r == '-' || r == ' ' || r == '.':
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
			continue
		case unicode.IsUpper(r):
			if !lastDash && i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					b.WriteByte('-')
				}
			}
			b.WriteRune(unicode.ToLower(r))
		default:
			b.WriteRune(r)
		}
		lastDash = false
	}

	out := strings.TrimSuffix(b.String(), "-")
	if alias, ok := aliases[out]; ok {
		return alias
	}
	return out
}
