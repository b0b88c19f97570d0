package ingest_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/record"
)

type collector struct {
	mu      sync.Mutex
	records []record.Record
}

func (c *collector) add(r record.Record) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.records = append(c.records, r)
	return nil
}

func (c *collector) lines() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, 0, len(c.records))
	for _, r := range c.records {
		out = append(out, r.Line)
	}
	return out
}

func appendTo(path, text string) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	Expect(err).NotTo(HaveOccurred())
	_, err = f.WriteString(text)
	Expect(err).NotTo(HaveOccurred())
	Expect(f.Close()).To(Succeed())
}

var _ = Describe("Follow", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
		path   string
		got    *collector
		done   chan error
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		path = writeLog(userLine)
		got = &collector{}
		done = make(chan error, 1)

		go func() {
			defer GinkgoRecover()
			done <- ingest.Follow(ctx, path, got.add)
		}()
	})

	AfterEach(func() {
		cancel()
		Eventually(done).Should(Receive(MatchError(context.Canceled)))
	})

	It("reads existing content first", func() {
		Eventually(got.lines).Should(Equal([]int{1}))
	})

	It("picks up appended lines", func() {
		Eventually(got.lines).Should(Equal([]int{1}))
		appendTo(path, assistantLine+"\n"+toolLine+"\n")
		Eventually(got.lines).Should(Equal([]int{1, 2, 3}))
	})

	It("holds back a partial line until it is complete", func() {
		Eventually(got.lines).Should(Equal([]int{1}))

		appendTo(path, assistantLine[:20])
		Consistently(got.lines, "200ms").Should(Equal([]int{1}))

		appendTo(path, assistantLine[20:]+"\n")
		Eventually(got.lines).Should(Equal([]int{1, 2}))
	})
})

var _ = Describe("Follow with a line limit", func() {
	It("skips an over-long appended line and keeps tailing", func() {
		ctx, cancel := context.WithCancel(context.Background())
		path := writeLog(userLine)
		got := &collector{}
		done := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			done <- ingest.Follow(ctx, path, got.add, ingest.WithMaxLineBytes(256))
		}()
		DeferCleanup(func() {
			cancel()
			Eventually(done).Should(Receive(MatchError(context.Canceled)))
		})

		Eventually(got.lines).Should(Equal([]int{1}))
		appendTo(path, `{"content":"`+strings.Repeat("a", 1024)+`"}`+"\n"+toolLine+"\n")
		Eventually(got.lines).Should(Equal([]int{1, 2, 3}))

		got.mu.Lock()
		defer got.mu.Unlock()
		Expect(errors.Is(got.records[1].Err, ingest.ErrLineTooLong)).To(BeTrue())
		Expect(got.records[2].Valid).To(BeTrue())
	})
})

var _ = Describe("Follow on a missing file", func() {
	It("fails with a source error", func() {
		err := ingest.Follow(context.Background(), "/does/not/exist.jsonl", func(record.Record) error { return nil })
		Expect(err).To(MatchError(ContainSubstring("open")))
	})
})

var _ = Describe("FollowStream", func() {
	It("delivers existing and appended records and closes on cancel", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		path := writeLog(userLine)
		records, errc := ingest.FollowStream(ctx, path, 4)

		var first record.Record
		Eventually(records).Should(Receive(&first))
		Expect(first.Line).To(Equal(1))

		appendTo(path, assistantLine+"\n")
		var second record.Record
		Eventually(records).Should(Receive(&second))
		Expect(second.Line).To(Equal(2))

		cancel()
		Eventually(records).Should(BeClosed())
		Eventually(errc).Should(BeClosed())
	})
})
