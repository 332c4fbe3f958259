// Package pipeline composes the document source, dedup ledger, extractor,
// scoring engine, record store, archive and change hub into the receipt
// processing pipeline: acquire, dedup, extract, score, persist, notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ysaito/receipt-pipeline/internal/dedup"
	"github.com/ysaito/receipt-pipeline/internal/extraction"
	"github.com/ysaito/receipt-pipeline/internal/notify"
	"github.com/ysaito/receipt-pipeline/internal/receipt"
	"github.com/ysaito/receipt-pipeline/internal/scoring"
)

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Options bound the pipeline's concurrency and retry behavior.
type Options struct {
	// Workers caps concurrent in-flight documents; the extraction backend
	// is the scarce resource this protects.
	Workers int

	// ExtractTimeout is the per-document extraction deadline. A deadline
	// hit yields a Failed record, not a stuck worker.
	ExtractTimeout time.Duration

	// PutRetries bounds local retries of a failing store write before the
	// document is requeued.
	PutRetries uint

	// RequeueDelay is how long a document waits before re-entering the
	// pipeline after exhausting its local storage retries.
	RequeueDelay time.Duration
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 2
	}
	if o.ExtractTimeout <= 0 {
		o.ExtractTimeout = 60 * time.Second
	}
	if o.PutRetries == 0 {
		o.PutRetries = 3
	}
	if o.RequeueDelay <= 0 {
		o.RequeueDelay = 5 * time.Second
	}
	return o
}

// Orchestrator runs the per-document state machine. Documents are
// independent: one poisoned document never delays or corrupts another's
// outcome.
type Orchestrator struct {
	ledger    dedup.Ledger
	extractor extraction.Extractor
	engine    *scoring.Engine
	store     receipt.Store
	archive   receipt.Archive
	hub       *notify.Hub

	opts       Options
	timeSource TimeSource

	requeue  chan extraction.Document
	inflight atomic.Int64
}

// New creates an Orchestrator with the wall clock.
func New(ledger dedup.Ledger, extractor extraction.Extractor, engine *scoring.Engine, store receipt.Store, archive receipt.Archive, hub *notify.Hub, opts Options) *Orchestrator {
	return NewWithTimeSource(ledger, extractor, engine, store, archive, hub, opts, &defaultTimeSource{})
}

// NewWithTimeSource creates an Orchestrator with a custom time source for
// testing.
func NewWithTimeSource(ledger dedup.Ledger, extractor extraction.Extractor, engine *scoring.Engine, store receipt.Store, archive receipt.Archive, hub *notify.Hub, opts Options, timeSource TimeSource) *Orchestrator {
	return &Orchestrator{
		ledger:     ledger,
		extractor:  extractor,
		engine:     engine,
		store:      store,
		archive:    archive,
		hub:        hub,
		opts:       opts.withDefaults(),
		timeSource: timeSource,
		requeue:    make(chan extraction.Document, 64),
	}
}

// Run consumes documents until the source closes or ctx ends, driving each
// through the pipeline on a bounded worker pool. It returns after all
// accepted documents, including requeued ones, have reached an outcome.
func (o *Orchestrator) Run(ctx context.Context, docs <-chan extraction.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.opts.Workers)

	dispatch := func(doc extraction.Document) {
		g.Go(func() error {
			defer o.inflight.Add(-1)
			o.process(gctx, doc)
			return nil
		})
	}

	for docs != nil || o.inflight.Load() > 0 {
		select {
		case <-gctx.Done():
			_ = g.Wait()
			return gctx.Err()
		case doc, ok := <-docs:
			if !ok {
				docs = nil
				continue
			}
			o.inflight.Add(1)
			dispatch(doc)
		case doc := <-o.requeue:
			dispatch(doc)
		case <-time.After(50 * time.Millisecond):
			// Re-check inflight; workers may have drained.
		}
	}

	return g.Wait()
}

// process runs the five pipeline stages for one document. Every stage
// failure is absorbed here: it becomes a Failed record, a silent duplicate
// discard, or a requeue, never a pool-level error.
func (o *Orchestrator) process(ctx context.Context, doc extraction.Document) {
	fingerprint := dedup.Fingerprint(doc.Data)
	log := slog.With("filename", doc.Filename, "fingerprint", fingerprint[:12])

	fresh, err := o.ledger.Register(fingerprint)
	if err != nil {
		log.Error("Dedup ledger unavailable, requeueing", "error", err)
		o.requeueLater(ctx, doc)
		return
	}
	if !fresh {
		log.Info("Duplicate document discarded")
		o.removeSource(doc, log)
		return
	}

	extractCtx, cancel := context.WithTimeout(ctx, o.opts.ExtractTimeout)
	raw, extractErr := o.extractor.Extract(extractCtx, doc)
	cancel()
	if extractErr != nil {
		log.Warn("Extraction failed", "error", extractErr)
	}

	result := o.engine.Score(raw, extractErr)

	record, err := o.buildRecord(doc, fingerprint, raw, extractErr, result)
	if err != nil {
		log.Error("Could not assemble record, requeueing", "error", err)
		o.release(fingerprint, log)
		o.requeueLater(ctx, doc)
		return
	}

	if err := o.persist(ctx, record); err != nil {
		if errors.Is(err, receipt.ErrAlreadyRecorded) {
			// Lost a race against a concurrent submission of the same
			// content; the surviving record is the outcome.
			log.Info("Record already present, discarding")
			o.removeSource(doc, log)
			return
		}
		log.Error("Store unavailable after retries, requeueing", "error", err)
		o.release(fingerprint, log)
		o.requeueLater(ctx, doc)
		return
	}

	o.hub.Publish()
	o.removeSource(doc, log)
	log.Info("Receipt processed",
		"status", record.Status,
		"receipt_id", record.GeneratedReceiptID,
		"score", record.EvaluationScore,
	)
}

// buildRecord assembles the terminal record for one document: canonical
// name, archived document reference, validated fields, score and feedback.
func (o *Orchestrator) buildRecord(doc extraction.Document, fingerprint string, raw *extraction.RawFields, extractErr error, result scoring.Result) (*receipt.Record, error) {
	now := o.timeSource.Now()

	generatedID, err := o.store.NextReceiptID(now)
	if err != nil {
		return nil, fmt.Errorf("assigning receipt id: %w", err)
	}

	// Extraction failure is the one condition that fails a receipt; a low
	// score is still a success so the dashboard surfaces it for review.
	status := receipt.StatusSuccess
	if extractErr != nil {
		status = receipt.StatusFailed
	}

	ref, err := o.archive.Save(generatedID+".pdf", doc.Data, status)
	if err != nil {
		return nil, fmt.Errorf("archiving document: %w", err)
	}

	record := &receipt.Record{
		ID:                 fingerprint,
		OriginalFilename:   doc.Filename,
		GeneratedReceiptID: generatedID,
		ProcessedTimestamp: now,
		Status:             status,
		EvaluationScore:    result.Score,
		Feedback:           result.Feedback,
		DocumentReference:  ref,
	}

	if raw != nil {
		record.OriginalExtractedData = raw.ResponseJSON
	}
	if extractErr != nil {
		record.ErrorMessage = extractErr.Error()
	}
	if status == receipt.StatusSuccess && result.Fields != nil {
		record.VendorName = result.Fields.VendorName
		record.Date = result.Fields.Date
		record.Amount = result.Fields.Amount
		record.Tax = result.Fields.Tax
		record.TaxRate = result.Fields.TaxRate
		record.RegistrationNumber = result.Fields.RegistrationNumber
		record.Category = result.Fields.Category
		record.Description = result.Fields.LineItems
	}

	return record, nil
}

// persist writes the record with bounded exponential-backoff retries.
// ErrAlreadyRecorded is permanent: retrying cannot help.
func (o *Orchestrator) persist(ctx context.Context, record *receipt.Record) error {
	operation := func() (struct{}, error) {
		err := o.store.Put(record)
		if errors.Is(err, receipt.ErrAlreadyRecorded) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(o.opts.PutRetries),
	)
	return err
}

// requeueLater re-enters the document after a delay. The document is never
// dropped: inflight accounting keeps Run alive until it lands.
func (o *Orchestrator) requeueLater(ctx context.Context, doc extraction.Document) {
	o.inflight.Add(1)
	go func() {
		select {
		case <-time.After(o.opts.RequeueDelay):
		case <-ctx.Done():
			o.inflight.Add(-1)
			return
		}
		select {
		case o.requeue <- doc:
		case <-ctx.Done():
			o.inflight.Add(-1)
		}
	}()
}

func (o *Orchestrator) release(fingerprint string, log *slog.Logger) {
	if err := o.ledger.Release(fingerprint); err != nil {
		log.Warn("Failed to release fingerprint", "error", err)
	}
}

// removeSource deletes the ingested file from the watch folder once its
// outcome is durable (or it proved to be a duplicate).
func (o *Orchestrator) removeSource(doc extraction.Document, log *slog.Logger) {
	if doc.Path == "" {
		return
	}
	if err := os.Remove(doc.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("Failed to remove source file", "path", doc.Path, "error", err)
	}
}
