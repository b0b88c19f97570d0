package record_test

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/record"
)

var _ = Describe("Record", func() {
	Describe("Actor", func() {
		It("prefers the role", func() {
			r := record.Record{Role: "user", Type: record.TypeUser}
			Expect(r.Actor()).To(Equal("user"))
		})

		It("falls back to the message type", func() {
			r := record.Record{Type: record.TypeToolUsage}
			Expect(r.Actor()).To(Equal("tool-usage"))
		})
	})

	Describe("HasToolOutput", func() {
		It("is false for absent and null outputs", func() {
			Expect(record.Record{}.HasToolOutput()).To(BeFalse())
			Expect(record.Record{ToolOutput: json.RawMessage("null")}.HasToolOutput()).To(BeFalse())
		})

		It("is true for any other value", func() {
			Expect(record.Record{ToolOutput: json.RawMessage(`""`)}.HasToolOutput()).To(BeTrue())
			Expect(record.Record{ToolOutput: json.RawMessage(`{"ok":true}`)}.HasToolOutput()).To(BeTrue())
		})
	})
})

var _ = Describe("Errors", func() {
	It("matches ParseError against ErrParse", func() {
		var err error = &record.ParseError{Line: 2, Err: errors.New("unexpected end of JSON input")}
		Expect(errors.Is(err, record.ErrParse)).To(BeTrue())
		Expect(errors.Is(err, record.ErrValidation)).To(BeFalse())
		Expect(err.Error()).To(Equal("line 2: unexpected end of JSON input"))

		pe, ok := record.AsParseError(fmt.Errorf("wrapped: %w", err))
		Expect(ok).To(BeTrue())
		Expect(pe.Line).To(Equal(2))
	})

	It("lists offending fields in ValidationError", func() {
		err := &record.ValidationError{
			Line: 4,
			Type: record.TypeAssistant,
			Fields: []record.FieldError{
				{Field: "model", Reason: record.ReasonMissing},
				{Field: "cost", Reason: record.ReasonMistyped, Expected: "number"},
			},
		}
		Expect(errors.Is(err, record.ErrValidation)).To(BeTrue())
		Expect(err.Error()).To(Equal("line 4: invalid assistant-message: model (missing), cost (mistyped, expected number)"))
	})

	It("keeps the underlying cause of SourceIOError", func() {
		err := &record.SourceIOError{Path: "/nope.jsonl", Op: "open", Err: os.ErrNotExist}
		Expect(errors.Is(err, record.ErrSourceIO)).To(BeTrue())
		Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())
		Expect(err.Error()).To(ContainSubstring("open /nope.jsonl"))
	})
})
