package sourcepath

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/tally/pkg/record"
)

const line = `{"timestamp":"2025-01-15T10:30:00Z","sessionId":"s1","conversationId":"c1","messageId":"m1","role":"user","content":"hi"}`

var _ = Describe("ResolveSourcePath", func() {
	var origCwd string

	BeforeEach(func() {
		var err error
		origCwd, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		GinkgoT().Setenv("HOME", GinkgoT().TempDir())
		GinkgoT().Setenv("TALLY_LOG", "")
		Expect(os.Chdir(GinkgoT().TempDir())).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origCwd)).To(Succeed())
	})

	It("prefers the explicit argument", func() {
		GinkgoT().Setenv("TALLY_LOG", "/tmp/other.ndjson")

		path, err := ResolveSourcePath("events.ndjson")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("events.ndjson"))
	})

	It("uses TALLY_LOG when set", func() {
		GinkgoT().Setenv("TALLY_LOG", "/tmp/custom.ndjson")

		path, err := ResolveSourcePath("")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal("/tmp/custom.ndjson"))
	})

	It("finds .tally/log.ndjson in the working directory", func() {
		Expect(os.MkdirAll(".tally", 0o755)).To(Succeed())
		Expect(os.WriteFile(filepath.Join(".tally", "log.ndjson"), []byte(line+"\n"), 0o600)).To(Succeed())

		path, err := ResolveSourcePath("")
		Expect(err).NotTo(HaveOccurred())
		Expect(path).To(Equal(filepath.Join(".tally", "log.ndjson")))
	})

	It("fails when nothing is found", func() {
		_, err := ResolveSourcePath("")
		Expect(err).To(MatchError(ContainSubstring("could not find")))
	})
})

var _ = Describe("Open", func() {
	It("refuses to follow stdin", func() {
		_, _, _, err := Open(context.Background(), Stdin, true, 1)
		Expect(err).To(MatchError(ErrFollowStdin))
	})

	It("streams a file to the end", func() {
		path := filepath.Join(GinkgoT().TempDir(), "log.ndjson")
		Expect(os.WriteFile(path, []byte(line+"\n"+line+"\n"), 0o600)).To(Succeed())

		_, records, errc, err := Open(context.Background(), path, false, 4)
		Expect(err).NotTo(HaveOccurred())

		var got []record.Record
		for r := range records {
			got = append(got, r)
		}
		Expect(got).To(HaveLen(2))
		Eventually(errc).Should(BeClosed())
	})
})
