package ingest_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing/iotest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/record"
)

const (
	userLine      = `{"timestamp":"2025-01-15T10:30:00Z","sessionId":"s1","conversationId":"c1","messageId":"m1","role":"user","content":"read the file"}`
	assistantLine = `{"timestamp":"2025-01-15T10:31:00Z","sessionId":"s1","conversationId":"c1","messageId":"m2","role":"assistant","content":"ok","model":"opus","costUsd":0.0045}`
	toolLine      = `{"timestamp":"2025-01-15T10:31:30Z","sessionId":"s1","conversationId":"c1","messageId":"m3","toolName":"Read","toolInput":{"path":"a.go"},"toolOutput":"package main"}`
)

func writeLog(lines ...string) string {
	path := filepath.Join(GinkgoT().TempDir(), "interactions.jsonl")
	Expect(os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600)).To(Succeed())
	return path
}

var _ = Describe("Parse", func() {
	ctx := context.Background()

	It("returns classified records in line order", func() {
		records, err := ingest.Parse(ctx, strings.NewReader(strings.Join([]string{userLine, assistantLine, toolLine}, "\n")))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(3))
		Expect(records[0].Type).To(Equal(record.TypeUser))
		Expect(records[1].Type).To(Equal(record.TypeAssistant))
		Expect(records[2].Type).To(Equal(record.TypeToolUsage))
		for i, r := range records {
			Expect(r.Line).To(Equal(i + 1))
			Expect(r.Valid).To(BeTrue())
		}
	})

	It("records a parse error at line 2 and keeps going", func() {
		records, err := ingest.Parse(ctx, strings.NewReader(userLine+"\n{ invalid json\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))

		var parseErrs []*record.ParseError
		for _, r := range records {
			if pe, ok := record.AsParseError(r.Err); ok {
				parseErrs = append(parseErrs, pe)
			}
		}
		Expect(parseErrs).To(HaveLen(1))
		Expect(parseErrs[0].Line).To(Equal(2))
		Expect(records[1].Raw).To(Equal("{ invalid json"))
	})

	It("counts blank lines for numbering without emitting records", func() {
		records, err := ingest.Parse(ctx, strings.NewReader(userLine+"\n\n   \n"+toolLine+"\n"))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(records[1].Line).To(Equal(4))
	})

	It("returns an empty non-nil slice for empty input", func() {
		records, err := ingest.Parse(ctx, strings.NewReader(""))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).NotTo(BeNil())
		Expect(records).To(BeEmpty())
	})

	It("records an over-long line as a parse error and keeps reading", func() {
		long := `{"content":"` + strings.Repeat("a", 4096) + `"}`
		input := strings.Join([]string{userLine, assistantLine, long, toolLine}, "\n") + "\n"

		records, err := ingest.Parse(ctx, strings.NewReader(input), ingest.WithMaxLineBytes(1024))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(4))

		Expect(records[2].Line).To(Equal(3))
		Expect(records[2].Valid).To(BeFalse())
		Expect(errors.Is(records[2].Err, record.ErrParse)).To(BeTrue())
		Expect(errors.Is(records[2].Err, ingest.ErrLineTooLong)).To(BeTrue())

		Expect(records[3].Line).To(Equal(4))
		Expect(records[3].Valid).To(BeTrue())
	})

	It("accepts a line of exactly the maximum length", func() {
		records, err := ingest.Parse(ctx, strings.NewReader(userLine+"\r\n"), ingest.WithMaxLineBytes(len(userLine)))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(1))
		Expect(records[0].Valid).To(BeTrue())
	})

	It("records an unterminated over-long last line", func() {
		records, err := ingest.Parse(ctx, strings.NewReader(userLine+"\n"+strings.Repeat("x", 100)), ingest.WithMaxLineBytes(len(userLine)))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
		Expect(errors.Is(records[1].Err, ingest.ErrLineTooLong)).To(BeTrue())
	})

	It("fails with a source error when the reader fails", func() {
		src := io.MultiReader(strings.NewReader(userLine+"\n"), iotest.ErrReader(errors.New("disk gone")))
		_, err := ingest.Parse(ctx, src)
		Expect(errors.Is(err, record.ErrSourceIO)).To(BeTrue())
		Expect(err).To(MatchError(ContainSubstring("disk gone")))
	})

	It("stops on cancellation", func() {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := ingest.Parse(cctx, strings.NewReader(userLine+"\n"))
		Expect(err).To(MatchError(context.Canceled))
	})
})

var _ = Describe("ParseIncremental", func() {
	It("hands back the callback error and stops", func() {
		stop := errors.New("enough")
		seen := 0
		err := ingest.ParseIncremental(context.Background(), strings.NewReader(userLine+"\n"+assistantLine+"\n"), func(record.Record) error {
			seen++
			return stop
		})
		Expect(err).To(MatchError(stop))
		Expect(seen).To(Equal(1))
	})
})

var _ = Describe("ParseFile", func() {
	It("parses a file on disk", func() {
		records, err := ingest.ParseFile(context.Background(), writeLog(userLine, assistantLine))
		Expect(err).NotTo(HaveOccurred())
		Expect(records).To(HaveLen(2))
	})

	It("reports a missing file as a source error", func() {
		_, err := ingest.ParseFile(context.Background(), filepath.Join(GinkgoT().TempDir(), "missing.jsonl"))
		Expect(errors.Is(err, record.ErrSourceIO)).To(BeTrue())
		Expect(errors.Is(err, os.ErrNotExist)).To(BeTrue())

		var srcErr *record.SourceIOError
		Expect(errors.As(err, &srcErr)).To(BeTrue())
		Expect(srcErr.Op).To(Equal("open"))
	})

	It("fills in the path for read failures", func() {
		path := GinkgoT().TempDir()
		err := ingest.ParseFileIncremental(context.Background(), path, func(record.Record) error { return nil })

		var srcErr *record.SourceIOError
		Expect(errors.As(err, &srcErr)).To(BeTrue())
		Expect(srcErr.Path).To(Equal(path))
	})
})

var _ = Describe("Stream", func() {
	It("delivers every record and closes both channels", func() {
		ctx := context.Background()
		records, errc := ingest.Stream(ctx, writeLog(userLine, assistantLine, toolLine), 1)

		var lines []int
		for r := range records {
			lines = append(lines, r.Line)
		}
		Expect(lines).To(Equal([]int{1, 2, 3}))
		Expect(<-errc).To(BeNil())
	})

	It("delivers a fatal error on the error channel", func() {
		records, errc := ingest.Stream(context.Background(), "/does/not/exist.jsonl", 4)
		Eventually(records).Should(BeClosed())
		err := <-errc
		Expect(errors.Is(err, record.ErrSourceIO)).To(BeTrue())
	})

	It("cancels the consumer context before closing on a fatal error", func() {
		ctx, abort := context.WithCancelCause(context.Background())
		src := io.MultiReader(strings.NewReader(userLine+"\n"+assistantLine+"\n"), iotest.ErrReader(errors.New("disk gone")))
		records, errc := ingest.StreamReader(ctx, src, 4, ingest.WithCancelOnError(abort))

		n := 0
		for range records {
			n++
		}
		Expect(n).To(Equal(2))
		Expect(ctx.Err()).To(MatchError(context.Canceled))
		Expect(errors.Is(context.Cause(ctx), record.ErrSourceIO)).To(BeTrue())
		Expect(errors.Is(<-errc, record.ErrSourceIO)).To(BeTrue())
	})

	It("leaves the context alone at a clean end of input", func() {
		ctx, abort := context.WithCancelCause(context.Background())
		defer abort(nil)
		records, errc := ingest.StreamReader(ctx, strings.NewReader(userLine+"\n"), 4, ingest.WithCancelOnError(abort))

		Eventually(records).Should(BeClosed())
		Expect(<-errc).To(BeNil())
		Expect(ctx.Err()).NotTo(HaveOccurred())
	})

	It("does not deadlock when cancelled with a full queue", func() {
		ctx, cancel := context.WithCancel(context.Background())
		records, errc := ingest.Stream(ctx, writeLog(userLine, assistantLine, toolLine), 0)

		Eventually(records).Should(Receive())
		cancel()

		Eventually(errc).Should(Receive(MatchError(context.Canceled)))
		Eventually(records).Should(BeClosed())
	})
})
