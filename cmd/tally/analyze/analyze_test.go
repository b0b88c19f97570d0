package analyzecmder_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	analyzecmder "github.com/papercomputeco/tally/cmd/tally/analyze"
	"github.com/papercomputeco/tally/pkg/analysis"
	"github.com/papercomputeco/tally/pkg/record"
)

var sampleLog = strings.Join([]string{
	`{"timestamp":"2025-01-15T10:30:00Z","sessionId":"s1","conversationId":"c1","messageId":"m1","role":"user","content":"read the file"}`,
	`{"timestamp":"2025-01-15T10:30:05Z","sessionId":"s1","conversationId":"c1","messageId":"m2","role":"assistant","content":"ok","model":"sonnet","tokenCount":120,"costUsd":0.01}`,
	`{"timestamp":"2025-01-15T10:30:06Z","sessionId":"s1","conversationId":"c1","messageId":"m3","toolName":"Read","toolInput":{"path":"a.go"}}`,
	`{ invalid json`,
}, "\n") + "\n"

var _ = Describe("Analyze command", func() {
	var (
		logPath string
		out     *bytes.Buffer
		origDir string
	)

	run := func(args ...string) error {
		cmd := analyzecmder.NewAnalyzeCmd()
		cmd.SetOut(out)
		cmd.SetErr(out)
		cmd.SetArgs(args)
		return cmd.Execute()
	}

	BeforeEach(func() {
		tmpDir := GinkgoT().TempDir()
		logPath = filepath.Join(tmpDir, "events.ndjson")
		Expect(os.WriteFile(logPath, []byte(sampleLog), 0o600)).To(Succeed())
		out = &bytes.Buffer{}

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		GinkgoT().Setenv("HOME", tmpDir)
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	It("prints the full result as JSON", func() {
		Expect(run("--format", "json", logPath)).To(Succeed())

		var res analysis.Result
		Expect(json.Unmarshal(out.Bytes(), &res)).To(Succeed())
		Expect(res.Summary.TotalMessages).To(Equal(4))
		Expect(res.Summary.InvalidMessages).To(Equal(1))
		Expect(res.Summary.ParseErrors).To(Equal(1))
		Expect(res.Tools).To(HaveKey("Read"))
	})

	It("prints key figures as text", func() {
		Expect(run(logPath)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("Records"))
		Expect(out.String()).To(ContainSubstring("Read"))
	})

	It("prints a markdown report", func() {
		Expect(run("--format", "markdown", logPath)).To(Succeed())
		Expect(out.String()).To(ContainSubstring("## Summary"))
	})

	It("fails on invalid records when asked to", func() {
		Expect(run("--fail-on-invalid", "--format", "json", logPath)).To(MatchError(analyzecmder.ErrInvalidRecords))
	})

	It("treats an unreadable log as fatal", func() {
		err := run(filepath.Join(GinkgoT().TempDir(), "missing.ndjson"))
		Expect(err).To(MatchError(record.ErrSourceIO))
	})

	It("rejects unknown formats", func() {
		Expect(run("--format", "yaml", logPath)).To(MatchError(ContainSubstring("unknown format")))
	})
})
