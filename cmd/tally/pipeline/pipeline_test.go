package pipeline_test

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/cmd/tally/pipeline"
	"github.com/papercomputeco/tally/pkg/config"
	"github.com/papercomputeco/tally/pkg/eventstream/kafka"
	"github.com/papercomputeco/tally/pkg/eventstream/nop"
	"github.com/papercomputeco/tally/pkg/ingest"
	"github.com/papercomputeco/tally/pkg/record"
	"github.com/papercomputeco/tally/pkg/stream"
)

func records(n int) <-chan record.Record {
	lines := make([]string, n)
	for i := range n {
		lines[i] = fmt.Sprintf(`{"timestamp":"2025-01-15T10:%02d:00Z","sessionId":"s1","conversationId":"c1","messageId":"m%d","role":"user","content":"hi"}`, i, i)
	}
	parsed, err := ingest.Parse(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	Expect(err).NotTo(HaveOccurred())

	out := make(chan record.Record, n)
	for _, r := range parsed {
		out <- r
	}
	close(out)
	return out
}

var _ = Describe("Processors", func() {
	It("runs one processor per batch size over the same records", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := config.NewDefaultConfig()
		outs, err := pipeline.Processors(ctx, records(6), []uint{2, 4}, cfg, pipeline.AnalyzeFunc(nil), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(outs).To(HaveLen(2))

		sizes := map[string][]int{}
		for b := range pipeline.FanIn(ctx, outs) {
			sizes[b.Processor] = append(sizes[b.Processor], b.Size)
		}
		Expect(sizes).To(Equal(map[string][]int{
			"batch-2": {2, 2, 2},
			"batch-4": {4, 2},
		}))
	})

	It("falls back to the configured batch size", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		cfg := config.NewDefaultConfig()
		cfg.Stream.BatchSize = 5
		outs, err := pipeline.Processors(ctx, records(3), nil, cfg, pipeline.AnalyzeFunc(nil), nil)
		Expect(err).NotTo(HaveOccurred())

		var got []stream.Batch
		for b := range outs[0] {
			got = append(got, b)
		}
		Expect(got).To(HaveLen(1))
		Expect(got[0].Final).To(BeTrue())
		Expect(got[0].Result.Summary.TotalMessages).To(Equal(3))
	})

	It("rejects a zero batch size", func() {
		_, err := pipeline.Processors(context.Background(), records(1), []uint{0}, config.NewDefaultConfig(), pipeline.AnalyzeFunc(nil), nil)
		Expect(err).To(MatchError(stream.ErrInvalidBatchSize))
	})
})

var _ = Describe("AnalyzeOptions", func() {
	It("is empty without a pricing file", func() {
		opts, err := pipeline.AnalyzeOptions(config.NewDefaultConfig())
		Expect(err).NotTo(HaveOccurred())
		Expect(opts).To(BeEmpty())
	})

	It("loads the pricing file", func() {
		path := filepath.Join(GinkgoT().TempDir(), "pricing.toml")
		Expect(os.WriteFile(path, []byte("[house-model]\ninput = 1.0\noutput = 2.0\n"), 0o600)).To(Succeed())

		cfg := config.NewDefaultConfig()
		cfg.Pricing.Path = path
		opts, err := pipeline.AnalyzeOptions(cfg)
		Expect(err).NotTo(HaveOccurred())
		Expect(opts).To(HaveLen(1))
	})

	It("fails on a missing pricing file", func() {
		cfg := config.NewDefaultConfig()
		cfg.Pricing.Path = filepath.Join(GinkgoT().TempDir(), "missing.json")
		_, err := pipeline.AnalyzeOptions(cfg)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Publisher", func() {
	It("is a no-op by default", func() {
		p, err := pipeline.Publisher(config.NewDefaultConfig(), nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("requires brokers for kafka", func() {
		cfg := config.NewDefaultConfig()
		cfg.Events.Provider = config.EventsProviderKafka
		_, err := pipeline.Publisher(cfg, nil)
		Expect(err).To(MatchError(kafka.ErrNoBrokers))
	})
})
