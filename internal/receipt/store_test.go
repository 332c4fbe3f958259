package receipt

import (
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestReceipt(t *testing.T) {
	// Disable logging during tests
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))

	RegisterFailHandler(Fail)
	RunSpecs(t, "Receipt Suite")
}

var _ = Describe("BoltStore", func() {
	var store *BoltStore

	BeforeEach(func() {
		db, err := OpenDB(filepath.Join(GinkgoT().TempDir(), "receipts.db"))
		Expect(err).NotTo(HaveOccurred())
		store, err = NewBoltStore(db)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(store.Close)
	})

	newRecord := func(id string, status Status, ts time.Time) *Record {
		return &Record{
			ID:                 id,
			OriginalFilename:   id + ".pdf",
			GeneratedReceiptID: "240115_001",
			ProcessedTimestamp: ts,
			Status:             status,
			EvaluationScore:    0.9,
			Feedback:           "looks consistent",
		}
	}

	Describe("Put", func() {
		var (
			record *Record
			err    error
		)

		BeforeEach(func() {
			record = newRecord("fp-1", StatusSuccess, time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC))
		})

		JustBeforeEach(func() {
			err = store.Put(record)
		})

		When("the record is new", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should make the record retrievable", func() {
				got, getErr := store.Get("fp-1")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(got.OriginalFilename).To(Equal("fp-1.pdf"))
				Expect(got.Status).To(Equal(StatusSuccess))
			})
		})

		When("the record has no terminal status", func() {
			BeforeEach(func() {
				record.Status = ""
			})

			It("returns an error", func() {
				Expect(err).To(HaveOccurred())
			})
		})

		When("the ID was already recorded as successful", func() {
			BeforeEach(func() {
				existing := newRecord("fp-1", StatusSuccess, time.Now())
				Expect(store.Put(existing)).To(Succeed())
			})

			It("returns ErrAlreadyRecorded", func() {
				Expect(errors.Is(err, ErrAlreadyRecorded)).To(BeTrue())
			})
		})

		When("the ID was already recorded as failed", func() {
			BeforeEach(func() {
				existing := newRecord("fp-1", StatusFailed, time.Now())
				Expect(store.Put(existing)).To(Succeed())
				record.Status = StatusSuccess
			})

			It("returns ErrAlreadyRecorded even across partitions", func() {
				Expect(errors.Is(err, ErrAlreadyRecorded)).To(BeTrue())
			})
		})
	})

	Describe("Get", func() {
		When("the record does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := store.Get("missing")
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})

		When("the record is in the failed partition", func() {
			BeforeEach(func() {
				rec := newRecord("fp-fail", StatusFailed, time.Now())
				rec.ErrorMessage = "extraction failed (timeout)"
				Expect(store.Put(rec)).To(Succeed())
			})

			It("finds it", func() {
				got, err := store.Get("fp-fail")
				Expect(err).NotTo(HaveOccurred())
				Expect(got.ErrorMessage).To(ContainSubstring("timeout"))
			})
		})
	})

	Describe("listing", func() {
		var base time.Time

		BeforeEach(func() {
			base = time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)
			Expect(store.Put(newRecord("fp-a", StatusSuccess, base))).To(Succeed())
			Expect(store.Put(newRecord("fp-b", StatusSuccess, base.Add(time.Hour)))).To(Succeed())
			Expect(store.Put(newRecord("fp-c", StatusSuccess, base.Add(time.Hour)))).To(Succeed())
			Expect(store.Put(newRecord("fp-x", StatusFailed, base.Add(2*time.Hour)))).To(Succeed())
		})

		It("returns successful records most recent first, ties broken by ID", func() {
			records, err := store.ListSuccessful()
			Expect(err).NotTo(HaveOccurred())
			ids := []string{}
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			Expect(ids).To(Equal([]string{"fp-b", "fp-c", "fp-a"}))
		})

		It("keeps the partitions separate", func() {
			failed, err := store.ListFailed()
			Expect(err).NotTo(HaveOccurred())
			Expect(failed).To(HaveLen(1))
			Expect(failed[0].ID).To(Equal("fp-x"))
		})
	})

	Describe("NextReceiptID", func() {
		var day time.Time

		BeforeEach(func() {
			day = time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
		})

		It("produces sequential YYMMDD_NNN names within a day", func() {
			first, err := store.NextReceiptID(day)
			Expect(err).NotTo(HaveOccurred())
			Expect(first).To(Equal("240115_001"))

			second, err := store.NextReceiptID(day)
			Expect(err).NotTo(HaveOccurred())
			Expect(second).To(Equal("240115_002"))
		})

		It("restarts the counter on a new day", func() {
			_, err := store.NextReceiptID(day)
			Expect(err).NotTo(HaveOccurred())

			next, err := store.NextReceiptID(day.AddDate(0, 0, 1))
			Expect(err).NotTo(HaveOccurred())
			Expect(next).To(Equal("240116_001"))
		})
	})
})
