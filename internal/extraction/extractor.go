package extraction

import (
	"context"
	"errors"
	"fmt"
)

// Document is a receipt file handed to the pipeline by the document source.
type Document struct {
	// Path is the on-disk location the document was picked up from. It may
	// be empty for documents that did not originate from the watch folder.
	Path        string
	Filename    string
	Data        []byte
	ContentType string
}

// RawLineItem is one extracted line of a receipt's item table. Monetary
// values are in the currency's major unit as the model reported them; they
// are validated and converted downstream.
type RawLineItem struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
	LineTotal float64 `json:"line_total"`
}

// RawFields is the structured but unvalidated output of an extraction
// backend. Pointer fields distinguish "absent from the receipt" from zero
// values so the scorer can penalize missing fields explicitly.
type RawFields struct {
	VendorName         *string       `json:"vendor_name"`
	Date               *string       `json:"date"` // YYYY-MM-DD as reported
	Amount             *float64      `json:"amount"`
	Tax                *float64      `json:"tax"`
	TaxRate            *float64      `json:"tax_rate"` // percent
	RegistrationNumber *string       `json:"registration_number"`
	Category           *string       `json:"category"`
	LineItems          []RawLineItem `json:"line_items"`

	// ResponseJSON is the cleaned model response the fields were parsed
	// from, retained verbatim for audit.
	ResponseJSON string `json:"-"`
}

// Reason classifies why an extraction attempt failed.
type Reason string

const (
	ReasonUnreadable        Reason = "unreadable"
	ReasonTimeout           Reason = "timeout"
	ReasonUnsupportedFormat Reason = "unsupported_format"
)

// Error is a typed extraction failure. It is an expected outcome, not a
// pipeline fault: the orchestrator records it as a Failed receipt.
type Error struct {
	Reason Reason
	Err    error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extraction failed: %s", e.Reason)
	}
	return fmt.Sprintf("extraction failed (%s): %v", e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// wrapErr classifies an arbitrary backend error into a typed extraction
// Error. Context deadlines become timeouts; already-typed errors pass
// through unchanged.
func wrapErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	var extErr *Error
	if errors.As(err, &extErr) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &Error{Reason: ReasonTimeout, Err: err}
	}
	return &Error{Reason: ReasonUnreadable, Err: err}
}

// Extractor is the recognition capability: it turns a receipt document into
// unvalidated structured fields. Implementations must not touch the record
// store.
type Extractor interface {
	Extract(ctx context.Context, doc Document) (*RawFields, error)
	// Close closes the extractor and releases resources
	Close() error
}
