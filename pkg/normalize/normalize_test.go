package normalize_test

import (
	"encoding/json"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/normalize"
	"github.com/papercomputeco/tally/pkg/record"
)

var _ = Describe("CanonicalKey", func() {
	DescribeTable("renames boundary keys",
		func(in, want string) {
			Expect(normalize.CanonicalKey(in)).To(Equal(want))
		},
		Entry("lower camel", "sessionId", "session-id"),
		Entry("trailing acronym", "sessionID", "session-id"),
		Entry("snake case", "tool_name", "tool-name"),
		Entry("already canonical", "conversation-id", "conversation-id"),
		Entry("single word", "timestamp", "timestamp"),
		Entry("leading acronym", "HTTPStatus", "http-status"),
		Entry("cost alias", "costUsd", "cost"),
		Entry("snake cost alias", "cost_usd", "cost"),
		Entry("tokens alias", "tokens", "token-count"),
		Entry("ts alias", "ts", "timestamp"),
		Entry("token count", "tokenCount", "token-count"),
	)

	It("is idempotent", func() {
		for _, k := range []string{"sessionId", "tool_name", "costUSD", "HTTPStatus", "ts", "toolOutput"} {
			once := normalize.CanonicalKey(k)
			Expect(normalize.CanonicalKey(once)).To(Equal(once), k)
		}
	})
})

var _ = Describe("Keys", func() {
	It("renames only top-level keys", func() {
		in := map[string]json.RawMessage{
			"sessionId": json.RawMessage(`"s1"`),
			"toolInput": json.RawMessage(`{"filePath":"/tmp/a"}`),
		}
		out := normalize.Keys(in)
		Expect(out).To(HaveKey("session-id"))
		Expect(out).To(HaveKey("tool-input"))
		Expect(string(out["tool-input"])).To(Equal(`{"filePath":"/tmp/a"}`))
	})

	It("prefers keys that are already canonical on collision", func() {
		in := map[string]json.RawMessage{
			"session-id": json.RawMessage(`"canonical"`),
			"sessionId":  json.RawMessage(`"camel"`),
			"session_id": json.RawMessage(`"snake"`),
		}
		Expect(string(normalize.Keys(in)["session-id"])).To(Equal(`"canonical"`))
	})

	It("picks the lexically first boundary key when none is canonical", func() {
		in := map[string]json.RawMessage{
			"sessionId":  json.RawMessage(`"camel"`),
			"session_id": json.RawMessage(`"snake"`),
		}
		Expect(string(normalize.Keys(in)["session-id"])).To(Equal(`"camel"`))
	})

	It("normalizing twice equals normalizing once", func() {
		in := map[string]json.RawMessage{
			"sessionId":      json.RawMessage(`"s1"`),
			"conversationId": json.RawMessage(`"c1"`),
			"cost_usd":       json.RawMessage(`0.1`),
			"ts":             json.RawMessage(`"2025-01-01T00:00:00Z"`),
		}
		once := normalize.Keys(in)
		Expect(normalize.Keys(once)).To(Equal(once))
	})
})

var _ = Describe("Line", func() {
	It("skips blank lines", func() {
		_, ok := normalize.Line("   \t ", 3)
		Expect(ok).To(BeFalse())
	})

	It("decodes an object and parses its timestamp", func() {
		e, ok := normalize.Line(`{"timestamp":"2025-01-15T10:30:00Z","sessionId":"s1"}`, 1)
		Expect(ok).To(BeTrue())
		Expect(e.Err).NotTo(HaveOccurred())
		Expect(e.Line).To(Equal(1))
		Expect(e.Fields).To(HaveKey("session-id"))
		Expect(e.Timestamp).NotTo(BeNil())
		Expect(*e.Timestamp).To(Equal(time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)))
		Expect(e.Warnings).To(BeEmpty())
	})

	It("warns and nulls the instant on an unparseable timestamp", func() {
		e, ok := normalize.Line(`{"timestamp":"yesterday","role":"user"}`, 5)
		Expect(ok).To(BeTrue())
		Expect(e.Err).NotTo(HaveOccurred())
		Expect(e.Timestamp).To(BeNil())
		Expect(e.Warnings).To(HaveLen(1))
		Expect(e.Warnings[0].Field).To(Equal("timestamp"))
		Expect(e.Fields).To(HaveKey("role"))
	})

	It("returns a parse failure entry for malformed JSON", func() {
		e, ok := normalize.Line("{ invalid json", 2)
		Expect(ok).To(BeTrue())
		Expect(e.Fields).To(BeNil())
		Expect(e.Raw).To(Equal("{ invalid json"))
		Expect(errors.Is(e.Err, record.ErrParse)).To(BeTrue())

		pe, isParse := record.AsParseError(e.Err)
		Expect(isParse).To(BeTrue())
		Expect(pe.Line).To(Equal(2))
	})

	DescribeTable("rejects JSON that is not an object",
		func(text string) {
			e, ok := normalize.Line(text, 7)
			Expect(ok).To(BeTrue())
			Expect(errors.Is(e.Err, record.ErrParse)).To(BeTrue())
		},
		Entry("array", `[1,2,3]`),
		Entry("string", `"hello"`),
		Entry("number", `42`),
		Entry("null", `null`),
		Entry("trailing garbage", `{"a":1} {"b":2}`),
	)
})

var _ = Describe("ParseTimestamp", func() {
	want := time.Date(2025, 1, 15, 10, 30, 0, 0, time.UTC)

	DescribeTable("accepted forms",
		func(raw string, expected time.Time) {
			ts, ok := normalize.ParseTimestamp(json.RawMessage(raw))
			Expect(ok).To(BeTrue())
			Expect(ts.Equal(expected)).To(BeTrue(), ts.String())
			Expect(ts.Location()).To(Equal(time.UTC))
		},
		Entry("rfc3339", `"2025-01-15T10:30:00Z"`, want),
		Entry("rfc3339 with offset", `"2025-01-15T12:30:00+02:00"`, want),
		Entry("milliseconds", `"2025-01-15T10:30:00.250Z"`, want.Add(250*time.Millisecond)),
		Entry("space separated", `"2025-01-15 10:30:00"`, want),
		Entry("unix seconds", `1736937000`, want),
		Entry("unix milliseconds", `1736937000000`, want),
	)

	DescribeTable("rejected forms",
		func(raw string) {
			ts, ok := normalize.ParseTimestamp(json.RawMessage(raw))
			Expect(ok).To(BeFalse())
			Expect(ts).To(BeNil())
		},
		Entry("free text", `"last tuesday"`),
		Entry("empty string", `""`),
		Entry("boolean", `true`),
		Entry("negative", `-5`),
		Entry("object", `{"at":"now"}`),
	)
})
