package analysis_test

import (
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/record"
)

func parse(lines ...string) []record.Record {
	records, err := ingest.Parse(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	Expect(err).NotTo(HaveOccurred())
	return records
}

func ts(hhmmss string) string {
	return "2025-01-15T" + hhmmss + "Z"
}

func userMsg(session, conv, at string) string {
	return fmt.Sprintf(`{"timestamp":%q,"sessionId":%q,"conversationId":%q,"messageId":"u-%s","role":"user","content":"hi"}`,
		ts(at), session, conv, at)
}

func assistantMsg(session, conv, at, model string, cost float64) string {
	return fmt.Sprintf(`{"timestamp":%q,"sessionId":%q,"conversationId":%q,"messageId":"a-%s","role":"assistant","content":"ok","model":%q,"costUsd":%v}`,
		ts(at), session, conv, at, model, cost)
}

func assistantTokens(session, conv, at, model string, tokens int) string {
	return fmt.Sprintf(`{"timestamp":%q,"sessionId":%q,"conversationId":%q,"messageId":"a-%s","role":"assistant","content":"ok","model":%q,"tokenCount":%d}`,
		ts(at), session, conv, at, model, tokens)
}

func toolUse(session, conv, at, tool string, ok bool) string {
	output := ""
	if ok {
		output = `,"toolOutput":"done"`
	}
	return fmt.Sprintf(`{"timestamp":%q,"sessionId":%q,"conversationId":%q,"messageId":"t-%s","toolName":%q,"toolInput":{}%s}`,
		ts(at), session, conv, at, tool, output)
}
