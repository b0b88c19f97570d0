package classify_test

import (
	"encoding/json"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/classify"
	"github.com/papercomputeco/tally/pkg/normalize"
	"github.com/papercomputeco/tally/pkg/record"
)

func entry(line string) normalize.Entry {
	e, ok := normalize.Line(line, 1)
	Expect(ok).To(BeTrue())
	return e
}

func fields(line string) map[string]json.RawMessage {
	return entry(line).Fields
}

var _ = Describe("Classify", func() {
	DescribeTable("decision table",
		func(line string, want record.MessageType) {
			Expect(classify.Classify(fields(line))).To(Equal(want))
		},
		Entry("tool name wins over role", `{"toolName":"Read","role":"assistant"}`, record.TypeToolUsage),
		Entry("user role", `{"role":"user"}`, record.TypeUser),
		Entry("assistant role", `{"role":"assistant"}`, record.TypeAssistant),
		Entry("system role", `{"role":"system"}`, record.TypeSystem),
		Entry("unmapped role", `{"role":"narrator"}`, record.TypeUnknown),
		Entry("non-string role", `{"role":7}`, record.TypeUnknown),
		Entry("role wins over summary shape", `{"role":"user","conversationId":"c1"}`, record.TypeUser),
		Entry("summary shape", `{"conversationId":"c1","summary":"did things"}`, record.TypeSummary),
		Entry("conversation with message id", `{"conversationId":"c1","messageId":"m1"}`, record.TypeUnknown),
		Entry("null tool name is absent", `{"toolName":null,"role":"user"}`, record.TypeUser),
		Entry("empty object", `{}`, record.TypeUnknown),
	)
})

var _ = Describe("Record", func() {
	const base = `"timestamp":"2025-01-15T10:30:00Z","sessionId":"s1","conversationId":"c1"`

	DescribeTable("valid lines for every variant",
		func(line string, want record.MessageType) {
			r := classify.Record(entry(line))
			Expect(r.FieldErrors).To(BeEmpty())
			Expect(r.Valid).To(BeTrue())
			Expect(r.Err).NotTo(HaveOccurred())
			Expect(r.Type).To(Equal(want))
		},
		Entry("user", `{`+base+`,"messageId":"m1","role":"user","content":"hi"}`, record.TypeUser),
		Entry("assistant", `{`+base+`,"messageId":"m2","role":"assistant","content":[{"type":"text"}],"model":"opus","costUsd":0.01}`, record.TypeAssistant),
		Entry("system", `{`+base+`,"messageId":"m3","role":"system","content":"be nice"}`, record.TypeSystem),
		Entry("tool usage", `{`+base+`,"messageId":"m4","toolName":"Read","toolInput":{"path":"a"}}`, record.TypeToolUsage),
		Entry("summary", `{`+base+`,"summary":"done"}`, record.TypeSummary),
	)

	It("copies typed fields onto the record", func() {
		r := classify.Record(entry(`{` + base + `,"messageId":"m2","role":"assistant","content":"ok","model":"opus","tokenCount":1200,"costUsd":0.0045}`))
		Expect(r.SessionID).To(Equal("s1"))
		Expect(r.ConversationID).To(Equal("c1"))
		Expect(r.MessageID).To(Equal("m2"))
		Expect(r.Model).To(Equal("opus"))
		Expect(*r.TokenCount).To(Equal(int64(1200)))
		Expect(*r.Cost).To(BeNumerically("~", 0.0045, 1e-12))
		Expect(r.Timestamp).NotTo(BeNil())
	})

	It("names the missing field", func() {
		r := classify.Record(entry(`{` + base + `,"messageId":"m2","role":"assistant","content":"ok"}`))
		Expect(r.Valid).To(BeFalse())
		Expect(r.Type).To(Equal(record.TypeAssistant))
		Expect(r.FieldErrors).To(ConsistOf(record.FieldError{Field: "model", Reason: record.ReasonMissing}))
		Expect(errors.Is(r.Err, record.ErrValidation)).To(BeTrue())
	})

	It("treats a null required field as missing", func() {
		r := classify.Record(entry(`{"timestamp":null,"sessionId":"s1","conversationId":"c1","summary":"x"}`))
		Expect(r.Valid).To(BeFalse())
		Expect(r.FieldErrors).To(ContainElement(record.FieldError{Field: "timestamp", Reason: record.ReasonMissing}))
	})

	It("rejects empty strings in required key fields", func() {
		r := classify.Record(entry(`{"timestamp":"2025-01-15T10:30:00Z","sessionId":"s1","conversationId":"","messageId":"m1","toolName":"","toolInput":{}}`))
		Expect(r.Type).To(Equal(record.TypeToolUsage))
		Expect(r.Valid).To(BeFalse())
		Expect(r.FieldErrors).To(ConsistOf(
			record.FieldError{Field: "conversation-id", Reason: record.ReasonEmpty},
			record.FieldError{Field: "tool-name", Reason: record.ReasonEmpty},
		))

		r = classify.Record(entry(`{"timestamp":"2025-01-15T10:30:00Z","sessionId":"","conversationId":"c1","summary":"x"}`))
		Expect(r.Valid).To(BeFalse())
		Expect(r.FieldErrors).To(ConsistOf(record.FieldError{Field: "session-id", Reason: record.ReasonEmpty}))
	})

	It("reports mistyped required and optional fields", func() {
		r := classify.Record(entry(`{` + base + `,"messageId":42,"role":"user","content":"hi","tokenCount":"lots"}`))
		Expect(r.Valid).To(BeFalse())
		Expect(r.FieldErrors).To(ConsistOf(
			record.FieldError{Field: "message-id", Reason: record.ReasonMistyped, Expected: "string"},
			record.FieldError{Field: "token-count", Reason: record.ReasonMistyped, Expected: "number"},
		))
		Expect(r.TokenCount).To(BeNil())
	})

	It("never validates the unknown type", func() {
		r := classify.Record(entry(`{` + base + `,"messageId":"m1","content":"orphan"}`))
		Expect(r.Type).To(Equal(record.TypeUnknown))
		Expect(r.Valid).To(BeFalse())
		Expect(r.FieldErrors).To(ConsistOf(record.FieldError{Field: "role", Reason: record.ReasonMissing}))

		r = classify.Record(entry(`{` + base + `,"messageId":"m1","role":"narrator","content":"x"}`))
		Expect(r.Valid).To(BeFalse())
		Expect(r.FieldErrors).To(ContainElement(record.FieldError{Field: "role", Reason: record.ReasonUnknown}))
	})

	It("keeps classifying when the timestamp is unparseable", func() {
		r := classify.Record(entry(`{"timestamp":"soon","sessionId":"s1","conversationId":"c1","messageId":"m1","role":"user","content":"hi"}`))
		Expect(r.Type).To(Equal(record.TypeUser))
		Expect(r.Valid).To(BeTrue())
		Expect(r.Timestamp).To(BeNil())
		Expect(r.Warnings).To(HaveLen(1))
	})

	It("turns parse failures into invalid unknown records", func() {
		e, _ := normalize.Line("{ invalid json", 2)
		r := classify.Record(e)
		Expect(r.Line).To(Equal(2))
		Expect(r.Valid).To(BeFalse())
		Expect(r.Type).To(Equal(record.TypeUnknown))
		Expect(r.IsParseFailure()).To(BeTrue())
		Expect(r.Raw).To(Equal("{ invalid json"))
	})
})
