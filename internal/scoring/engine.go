// Package scoring checks extracted receipt fields for internal consistency
// and produces a deterministic confidence score with human-readable
// feedback. The engine never decides success or failure; that is the
// orchestrator's call.
package scoring

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/ysaito/receipt-pipeline/internal/extraction"
	"github.com/ysaito/receipt-pipeline/internal/receipt"
)

// Score weights. Completeness and arithmetic dominate; plausibility catches
// obvious misreads like future dates.
const (
	weightCompleteness = 0.4
	weightArithmetic   = 0.4
	weightPlausibility = 0.2

	// futureSkew is how far past "today" a receipt date may sit before it
	// is considered implausible (clock skew, time zones).
	futureSkew = 3 * 24 * time.Hour
)

// Result is the engine's verdict on one extraction.
type Result struct {
	// Score is the confidence in [0,1].
	Score float64

	// Feedback names every check that passed or failed; it is the primary
	// triage aid for low-confidence and failed receipts.
	Feedback string

	// Fields is the validated projection of the raw extraction: parsed
	// date, monetary values in cents. Nil when extraction failed.
	Fields *Fields
}

// Fields is the validated, normalized projection of raw extraction output.
type Fields struct {
	VendorName         string
	Date               string // YYYY-MM-DD, empty if unparseable
	Amount             int64  // cents
	Tax                int64  // cents
	TaxRate            float64
	RegistrationNumber string
	Category           string
	LineItems          []receipt.LineItem
}

// Engine scores extractions. Its only dependency is the clock, injected so
// the future-date check is testable.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock creates an Engine with a custom clock for testing.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Score evaluates an extraction outcome. When extraction itself failed, raw
// is nil and extractionErr describes the failure; the result still carries a
// score (zero) and feedback so failed receipts remain triageable.
// Identical raw fields always yield identical results.
func (e *Engine) Score(raw *extraction.RawFields, extractionErr error) Result {
	if extractionErr != nil {
		return Result{
			Score:    0,
			Feedback: fmt.Sprintf("no fields could be scored: %v", extractionErr),
		}
	}
	if raw == nil {
		return Result{
			Score:    0,
			Feedback: "no fields could be scored: extraction returned nothing",
		}
	}

	var notes []string
	fields := &Fields{}

	completeness := e.checkCompleteness(raw, fields, &notes)
	arithmetic := e.checkArithmetic(raw, fields, &notes)
	plausibility := e.checkPlausibility(raw, fields, &notes)

	if raw.RegistrationNumber != nil {
		fields.RegistrationNumber = strings.TrimSpace(*raw.RegistrationNumber)
	}
	if raw.Category != nil {
		fields.Category = strings.TrimSpace(*raw.Category)
	}

	score := weightCompleteness*completeness +
		weightArithmetic*arithmetic +
		weightPlausibility*plausibility

	if len(notes) == 0 {
		notes = append(notes, "all checks passed")
	}

	return Result{
		Score:    math.Round(score*1000) / 1000,
		Feedback: strings.Join(notes, "; "),
		Fields:   fields,
	}
}

// checkCompleteness verifies the required fields (vendor name, date, amount)
// are present and parseable. Each contributes an even share.
func (e *Engine) checkCompleteness(raw *extraction.RawFields, fields *Fields, notes *[]string) float64 {
	present := 0

	if raw.VendorName != nil && strings.TrimSpace(*raw.VendorName) != "" {
		fields.VendorName = strings.TrimSpace(*raw.VendorName)
		present++
	} else {
		*notes = append(*notes, "vendor name is missing")
	}

	if raw.Date != nil {
		if _, err := time.Parse("2006-01-02", *raw.Date); err == nil {
			fields.Date = *raw.Date
			present++
		} else {
			*notes = append(*notes, fmt.Sprintf("date %q is not a parseable calendar date", *raw.Date))
		}
	} else {
		*notes = append(*notes, "date is missing")
	}

	if raw.Amount != nil {
		fields.Amount = toCents(*raw.Amount)
		present++
	} else {
		*notes = append(*notes, "amount is missing")
	}

	return float64(present) / 3
}

// checkArithmetic reconciles the amount with tax and tax rate and each line
// item with quantity×unit price. Only checks whose inputs are present
// participate; with nothing to check the component scores full marks rather
// than penalizing sparse receipts twice.
func (e *Engine) checkArithmetic(raw *extraction.RawFields, fields *Fields, notes *[]string) float64 {
	checks, passed := 0, 0

	if raw.Tax != nil {
		fields.Tax = toCents(*raw.Tax)
	}
	if raw.TaxRate != nil {
		fields.TaxRate = *raw.TaxRate
	}

	// Tax-inclusive reconciliation: tax ≈ amount × rate / (100 + rate).
	if raw.Amount != nil && raw.Tax != nil && raw.TaxRate != nil && *raw.TaxRate > 0 {
		checks++
		expected := *raw.Amount * *raw.TaxRate / (100 + *raw.TaxRate)
		if withinTolerance(*raw.Tax, expected) {
			passed++
		} else {
			*notes = append(*notes, fmt.Sprintf("tax %.2f does not match amount %.2f at rate %.1f%%", *raw.Tax, *raw.Amount, *raw.TaxRate))
		}
	}

	var lineSum float64
	for i, item := range raw.LineItems {
		fields.LineItems = append(fields.LineItems, receipt.LineItem{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: toCents(item.UnitPrice),
			LineTotal: toCents(item.LineTotal),
		})
		lineSum += item.LineTotal

		checks++
		if withinTolerance(item.LineTotal, item.Quantity*item.UnitPrice) {
			passed++
		} else {
			*notes = append(*notes, fmt.Sprintf("line %d total does not match quantity×price", i+1))
		}
	}

	if len(raw.LineItems) > 0 && raw.Amount != nil {
		checks++
		if withinTolerance(lineSum, *raw.Amount) {
			passed++
		} else {
			*notes = append(*notes, fmt.Sprintf("line totals sum to %.2f but amount is %.2f", lineSum, *raw.Amount))
		}
	}

	if checks == 0 {
		return 1
	}
	return float64(passed) / float64(checks)
}

// checkPlausibility verifies the date is a real, non-future calendar date
// and the amount is non-negative.
func (e *Engine) checkPlausibility(raw *extraction.RawFields, fields *Fields, notes *[]string) float64 {
	checks, passed := 0, 0

	if fields.Date != "" {
		checks++
		d, _ := time.Parse("2006-01-02", fields.Date)
		if d.After(e.now().Add(futureSkew)) {
			*notes = append(*notes, fmt.Sprintf("date %s is in the future", fields.Date))
		} else {
			passed++
		}
	}

	if raw.Amount != nil {
		checks++
		if *raw.Amount < 0 {
			*notes = append(*notes, fmt.Sprintf("amount %.2f is negative", *raw.Amount))
		} else {
			passed++
		}
	}

	if checks == 0 {
		return 0
	}
	return float64(passed) / float64(checks)
}

// Tolerance for monetary comparisons: one cent absolute or 0.5% relative,
// whichever is larger. Mismatches inside the tolerance are accepted without
// comment; outside it they are named in feedback, never silently corrected.
func withinTolerance(got, want float64) bool {
	diff := math.Abs(got - want)
	tolerance := math.Max(0.01, 0.005*math.Abs(want))
	return diff <= tolerance
}

func toCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
