package watchcmder

import (
	"context"
	"errors"
	"strings"
	"time"

	bubbletea "github.com/charmbracelet/bubbletea"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/stream"
)

var sampleLog = strings.Join([]string{
	`{"timestamp":"2025-01-15T10:30:00Z","sessionId":"s1","conversationId":"c1","messageId":"m1","role":"user","content":"read the file"}`,
	`{"timestamp":"2025-01-15T10:30:05Z","sessionId":"s1","conversationId":"c1","messageId":"m2","role":"assistant","content":"ok","model":"sonnet","tokenCount":1200,"costUsd":0.02}`,
	`{"timestamp":"2025-01-15T10:30:06Z","sessionId":"s1","conversationId":"c1","messageId":"m3","toolName":"Read","toolInput":{"path":"a.go"},"toolOutput":"package a"}`,
	`{"timestamp":"2025-01-15T11:00:00Z","sessionId":"s2","conversationId":"c2","messageId":"m4","role":"user","content":"hi"}`,
}, "\n")

func sampleBatch() stream.Batch {
	records, err := ingest.Parse(context.Background(), strings.NewReader(sampleLog))
	Expect(err).NotTo(HaveOccurred())
	return stream.Batch{
		ID:        "b1",
		Seq:       1,
		Size:      len(records),
		FirstLine: 1,
		LastLine:  len(records),
		At:        time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC),
		Result:    analysis.Analyze(records),
	}
}

var _ = Describe("Watch dashboard", func() {
	var (
		rollup *stream.Rollup
		model  watchModel
	)

	BeforeEach(func() {
		rollup = stream.NewRollup(nil)
		model = newWatchModel("events.ndjson", rollup, nil, nil, 100, true)
		model.width = 120
		model.now = func() time.Time { return time.Date(2025, 1, 15, 11, 0, 30, 0, time.UTC) }
	})

	update := func(m watchModel, msg bubbletea.Msg) watchModel {
		next, _ := m.Update(msg)
		return next.(watchModel)
	}

	It("waits for the first batch", func() {
		Expect(model.View()).To(ContainSubstring("waiting for the first batch"))
	})

	It("shows the rolled up result after a batch", func() {
		b := sampleBatch()
		rollup.Add(b)
		model = update(model, batchMsg(b))

		view := model.View()
		Expect(model.result.Summary.TotalMessages).To(Equal(4))
		Expect(view).To(ContainSubstring("RECORDS"))
		Expect(view).To(ContainSubstring("1 batches of 100"))
		Expect(view).To(ContainSubstring("updated 30s ago"))
		Expect(view).To(ContainSubstring("2025-01-15T10"))
	})

	It("keeps the result on tick batches", func() {
		b := sampleBatch()
		rollup.Add(b)
		model = update(model, batchMsg(b))

		tick := b
		tick.Tick = true
		model = update(model, batchMsg(tick))
		Expect(model.result.Summary.TotalMessages).To(Equal(4))
		Expect(model.last.Tick).To(BeTrue())
	})

	It("cycles through the views", func() {
		b := sampleBatch()
		rollup.Add(b)
		model = update(model, batchMsg(b))

		model = update(model, bubbletea.KeyMsg{Type: bubbletea.KeyTab})
		Expect(model.tab).To(Equal(tabTools))
		Expect(model.View()).To(ContainSubstring("Read"))
		Expect(model.View()).To(ContainSubstring("100%"))

		model = update(model, bubbletea.KeyMsg{Type: bubbletea.KeyTab})
		Expect(model.tab).To(Equal(tabSessions))
		Expect(model.View()).To(ContainSubstring("s1"))
		Expect(model.View()).To(ContainSubstring("s2"))

		model = update(model, bubbletea.KeyMsg{Type: bubbletea.KeyShiftTab})
		Expect(model.tab).To(Equal(tabTools))
	})

	It("quits with the ingest error when the stream fails", func() {
		boom := errors.New("boom")
		next, cmd := model.Update(endedMsg{err: boom})
		Expect(next.(watchModel).err).To(MatchError(boom))
		Expect(cmd).NotTo(BeNil())
		Expect(cmd()).To(Equal(bubbletea.Quit()))
	})

	It("stays open when the stream ends cleanly", func() {
		model = update(model, endedMsg{})
		Expect(model.ended).To(BeTrue())
		Expect(model.View()).To(ContainSubstring("input ended"))
	})
})

var _ = Describe("waitForBatch", func() {
	It("delivers batches and then the end of the stream", func() {
		updates := make(chan stream.Batch, 1)
		errc := make(chan error, 1)
		updates <- stream.Batch{ID: "b1"}
		close(updates)
		errc <- errors.New("read failed")
		close(errc)

		msg := waitForBatch(updates, errc)()
		Expect(msg).To(Equal(batchMsg(stream.Batch{ID: "b1"})))

		msg = waitForBatch(updates, errc)()
		Expect(msg).To(Equal(endedMsg{err: errors.New("read failed")}))
	})
})

var _ = Describe("Watch helpers", func() {
	It("formats tokens", func() {
		Expect(formatTokens(950)).To(Equal("950"))
		Expect(formatTokens(1_500)).To(Equal("1.5K"))
		Expect(formatTokens(2_000_000)).To(Equal("2.0M"))
	})

	It("renders proportional bars", func() {
		Expect(renderBar(5, 10, 4)).To(Equal("██░░"))
		Expect(renderBar(1, 0, 3)).To(Equal("░░░"))
	})

	It("fits cells to a width", func() {
		Expect(fitCell("abc", 5)).To(Equal("abc  "))
		Expect(fitCell("abcdefgh", 5)).To(Equal("abcd…"))
	})
})
