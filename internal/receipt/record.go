package receipt

import "time"

// Status is the terminal outcome of processing one document. It is set
// exactly once; corrections require an explicit reprocessing action.
type Status string

const (
	StatusSuccess Status = "Success"
	StatusFailed  Status = "Failed"
)

// LineItem is one validated receipt line. Monetary values are in cents.
type LineItem struct {
	Name      string  `json:"name"`
	Quantity  float64 `json:"quantity"`
	UnitPrice int64   `json:"unit_price"`
	LineTotal int64   `json:"line_total"`
}

// Record is a processed receipt: the unit of work and the unit of storage.
// Exactly one Record exists per distinct document fingerprint.
type Record struct {
	// ID is the hex content fingerprint of the source document; it is
	// assigned once per distinct input and never reused.
	ID                 string `json:"id"`
	OriginalFilename   string `json:"original_filename"`
	GeneratedReceiptID string `json:"generated_receipt_id"`

	ProcessedTimestamp time.Time `json:"processed_timestamp"`
	Status             Status    `json:"status"`

	// Validated fields, populated only on Success.
	VendorName         string     `json:"vendor_name,omitempty"`
	Date               string     `json:"date,omitempty"` // YYYY-MM-DD
	Amount             int64      `json:"amount,omitempty"`
	Tax                int64      `json:"tax,omitempty"`
	TaxRate            float64    `json:"tax_rate,omitempty"`
	RegistrationNumber string     `json:"registration_number,omitempty"`
	Category           string     `json:"category,omitempty"`
	Description        []LineItem `json:"description,omitempty"`

	// OriginalExtractedData is the raw pre-validation extraction payload,
	// retained for audit.
	OriginalExtractedData string `json:"original_extracted_data,omitempty"`

	EvaluationScore float64 `json:"evaluation_score"`
	Feedback        string  `json:"feedback"`
	ErrorMessage    string  `json:"error_message,omitempty"`

	// DocumentReference locates the archived source document.
	DocumentReference string `json:"document_reference,omitempty"`
}
