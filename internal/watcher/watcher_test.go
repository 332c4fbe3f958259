package watcher

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/ysaito/receipt-pipeline/internal/extraction"
)

func TestWatcher(t *testing.T) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Watcher Suite")
}

var _ = Describe("DirWatcher", func() {
	var (
		dir    string
		w      *DirWatcher
		ctx    context.Context
		cancel context.CancelFunc
		done   chan struct{}
	)

	BeforeEach(func() {
		dir = GinkgoT().TempDir()
		var err error
		w, err = NewDirWatcher(dir)
		Expect(err).NotTo(HaveOccurred())
		w.stableDelay = 10 * time.Millisecond

		ctx, cancel = context.WithCancel(context.Background())
		done = make(chan struct{})
	})

	start := func() {
		go func() {
			defer close(done)
			_ = w.Run(ctx)
		}()
	}

	AfterEach(func() {
		cancel()
		Eventually(done).Should(BeClosed())
	})

	When("PDF files exist before the watcher starts", func() {
		BeforeEach(func() {
			Expect(os.WriteFile(filepath.Join(dir, "a.pdf"), []byte("pdf a"), 0644)).To(Succeed())
			Expect(os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("not a pdf"), 0644)).To(Succeed())
			start()
		})

		It("emits the pre-existing PDFs and ignores other files", func() {
			var doc extraction.Document
			Eventually(w.Documents(), 5*time.Second).Should(Receive(&doc))
			Expect(doc.Filename).To(Equal("a.pdf"))
			Expect(doc.Data).To(Equal([]byte("pdf a")))
			Expect(doc.ContentType).To(Equal("application/pdf"))
			Consistently(w.Documents()).ShouldNot(Receive())
		})
	})

	When("a PDF arrives while watching", func() {
		BeforeEach(func() {
			start()
		})

		It("emits it exactly once despite create and write events", func() {
			// Give the watcher a moment to register the directory.
			time.Sleep(100 * time.Millisecond)
			Expect(os.WriteFile(filepath.Join(dir, "late.pdf"), []byte("pdf late"), 0644)).To(Succeed())

			var doc extraction.Document
			Eventually(w.Documents(), 5*time.Second).Should(Receive(&doc))
			Expect(doc.Filename).To(Equal("late.pdf"))
			Consistently(w.Documents()).ShouldNot(Receive())
		})
	})

	When("the context is cancelled", func() {
		BeforeEach(func() {
			start()
		})

		It("closes the document stream", func() {
			cancel()
			Eventually(w.Documents()).Should(BeClosed())
		})
	})
})
