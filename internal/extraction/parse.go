package extraction

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// parseFields parses the JSON response from an LLM backend into RawFields.
// It tolerates markdown fences and surrounding prose but performs no
// validation beyond JSON shape: missing or implausible values are left for
// the scoring engine to judge.
func parseFields(text string) (*RawFields, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSpace(text)

	// Find the JSON object boundaries - look for first { and last }
	startIdx := strings.Index(text, "{")
	if startIdx == -1 {
		return nil, fmt.Errorf("no JSON object found in response")
	}
	endIdx := strings.LastIndex(text, "}")
	if endIdx == -1 || endIdx < startIdx {
		return nil, fmt.Errorf("invalid JSON object in response")
	}
	text = text[startIdx : endIdx+1]

	var fields RawFields
	if err := json.Unmarshal([]byte(text), &fields); err != nil {
		return nil, fmt.Errorf("unmarshaling json: %w", err)
	}
	fields.ResponseJSON = text

	// Normalize recognizable date formats to ISO 8601. Unrecognizable
	// dates are kept verbatim so the scorer can report them; nothing is
	// defaulted here.
	if fields.Date != nil {
		if normalized, ok := normalizeDate(*fields.Date); ok {
			fields.Date = &normalized
		}
	}

	if fields.VendorName != nil {
		trimmed := strings.TrimSpace(*fields.VendorName)
		if trimmed == "" {
			fields.VendorName = nil
		} else {
			fields.VendorName = &trimmed
		}
	}

	return &fields, nil
}

var dateFormats = []string{
	"2006-01-02",
	"2006/01/02",
	"20060102",
	"01/02/2006",
	"02-01-2006",
}

func normalizeDate(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	for _, format := range dateFormats {
		if d, err := time.Parse(format, raw); err == nil {
			return d.Format("2006-01-02"), true
		}
	}
	return raw, false
}
