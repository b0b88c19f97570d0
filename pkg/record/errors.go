package record

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse matches any ParseError via errors.Is.
	ErrParse = errors.New("parse error")

	// ErrValidation matches any ValidationError via errors.Is.
	ErrValidation = errors.New("validation error")

	// ErrSourceIO matches any SourceIOError via errors.Is.
	ErrSourceIO = errors.New("source io error")
)

// FieldReason explains why a field failed validation.
type FieldReason string

const (
	ReasonMissing  FieldReason = "missing"
	ReasonEmpty    FieldReason = "empty"
	ReasonMistyped FieldReason = "mistyped"
	ReasonUnknown  FieldReason = "unclassifiable"
)

// FieldError names one offending field of an invalid record.
type FieldError struct {
	Field    string      `json:"field"`
	Reason   FieldReason `json:"reason"`
	Expected string      `json:"expected,omitempty"`
}

func (e FieldError) String() string {
	if e.Expected != "" {
		return fmt.Sprintf("%s (%s, expected %s)", e.Field, e.Reason, e.Expected)
	}
	return fmt.Sprintf("%s (%s)", e.Field, e.Reason)
}

// ParseError is recorded for a line that is not a decodable JSON object.
// It is never fatal.
type ParseError struct {
	Line int
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ValidationError is recorded for a line that decodes but fails the required
// field check of its message type. It is never fatal.
type ValidationError struct {
	Line   int
	Type   MessageType
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.String())
	}
	return fmt.Sprintf("line %d: invalid %s: %s", e.Line, e.Type, strings.Join(parts, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// SourceIOError means the input source could not be opened or read. Unlike
// the per-line errors it aborts the run.
type SourceIOError struct {
	Path string
	Op   string
	Err  error
}

func (e *SourceIOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("%s source: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *SourceIOError) Unwrap() error { return e.Err }

func (e *SourceIOError) Is(target error) bool { return target == ErrSourceIO }

// Warning is a non-fatal note attached to a record.
type Warning struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// TimestampWarning builds the warning attached when a timestamp is present
// but cannot be parsed.
func TimestampWarning(raw string) Warning {
	return Warning{
		Field:   FieldTimestamp,
		Message: fmt.Sprintf("unparseable timestamp %s", raw),
	}
}

// AsParseError unwraps err into a *ParseError.
func AsParseError(err error) (*ParseError, bool) {
	var pe *ParseError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
