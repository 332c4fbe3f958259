package receipt

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalArchive", func() {
	var (
		tmpDir  string
		archive Archive
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		archive, err = NewLocalArchive(tmpDir)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		var (
			status Status
			ref    string
			err    error
		)

		JustBeforeEach(func() {
			ref, err = archive.Save("240115_001.pdf", []byte("pdf bytes"), status)
		})

		When("the receipt succeeded", func() {
			BeforeEach(func() {
				status = StatusSuccess
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should place the document in the success folder", func() {
				Expect(ref).To(Equal(filepath.Join("success_pdfs", "240115_001.pdf")))
				Expect(filepath.Join(tmpDir, ref)).To(BeAnExistingFile())
			})
		})

		When("the receipt failed", func() {
			BeforeEach(func() {
				status = StatusFailed
			})

			It("should place the document in the error folder", func() {
				Expect(ref).To(Equal(filepath.Join("error_pdfs", "240115_001.pdf")))
				Expect(filepath.Join(tmpDir, ref)).To(BeAnExistingFile())
			})
		})
	})

	Describe("Get", func() {
		When("the document exists", func() {
			var ref string

			BeforeEach(func() {
				var err error
				ref, err = archive.Save("240115_001.pdf", []byte("pdf bytes"), StatusSuccess)
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns the stored bytes", func() {
				data, err := archive.Get(ref)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("pdf bytes"))
			})
		})

		When("the document does not exist", func() {
			It("returns an error", func() {
				_, err := archive.Get("success_pdfs/missing.pdf")
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
