package cliui_test

import (
	"bytes"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/cliui"
)

var _ = Describe("Step", func() {
	It("prints a success mark and returns nil", func() {
		var buf bytes.Buffer
		Expect(cliui.Step(&buf, "parsing", func() error { return nil })).To(Succeed())
		Expect(buf.String()).To(ContainSubstring("parsing"))
		Expect(buf.String()).To(ContainSubstring(cliui.SuccessMark))
	})

	It("returns the step error and prints a failure mark", func() {
		var buf bytes.Buffer
		boom := errors.New("boom")
		Expect(cliui.Step(&buf, "parsing", func() error { return boom })).To(MatchError(boom))
		Expect(buf.String()).To(ContainSubstring(cliui.FailMark))
	})
})

var _ = Describe("FormatDuration", func() {
	It("uses milliseconds below a second", func() {
		Expect(cliui.FormatDuration(12 * time.Millisecond)).To(Equal("12ms"))
	})

	It("uses tenths of seconds above", func() {
		Expect(cliui.FormatDuration(3200 * time.Millisecond)).To(Equal("3.2s"))
	})
})

var _ = Describe("terminal helpers", func() {
	It("treats buffers as non-terminals", func() {
		var buf bytes.Buffer
		Expect(cliui.IsTerminal(&buf)).To(BeFalse())
		Expect(cliui.Width(&buf)).To(Equal(80))
	})

	It("renders fields with key and value", func() {
		out := cliui.Field("sessions", 3)
		Expect(out).To(ContainSubstring("sessions"))
		Expect(out).To(ContainSubstring("3"))
	})
})

var _ = Describe("RenderMarkdown", func() {
	It("keeps the text of the document", func() {
		out, err := cliui.RenderMarkdown("# Report\n\nhello", 0)
		Expect(err).NotTo(HaveOccurred())
		Expect(out).To(ContainSubstring("Report"))
		Expect(out).To(ContainSubstring("hello"))
	})
})
