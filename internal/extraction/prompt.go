package extraction

// extractionPrompt is the shared prompt used by all LLM backends. The field
// vocabulary is fixed; downstream validation depends on these exact keys.
const extractionPrompt = `You are analyzing a receipt or invoice document. Carefully read all text in the image and extract the following information:

1. **Vendor Name**: The merchant, store, or business name, usually the largest text or in a header at the top of the receipt.

2. **Date**: The transaction, purchase, or invoice date. Convert it to ISO 8601 format (YYYY-MM-DD). Common printed formats: MM/DD/YYYY, DD/MM/YYYY, YYYY/MM/DD, or written dates.

3. **Total Amount**: The final total, grand total, or amount due, usually at the bottom, labeled "TOTAL", "Amount Due", or similar. Extract only the numeric value.

4. **Tax**: The tax or consumption-tax amount charged, if printed. Numeric value only.

5. **Tax Rate**: The applied tax rate as a percentage, if printed. Numeric value only, no percent sign.

6. **Registration Number**: The invoice/tax registration number of the issuer, if printed.

7. **Category**: Classify the purchase as one of "transport", "food", or "supplies" based on the content.

8. **Line Items**: The individual purchased items, in the order printed, each with its name, quantity, unit price, and line total.

Return ONLY valid JSON in this exact format:
{
  "vendor_name": "Store Name",
  "date": "YYYY-MM-DD",
  "amount": 0.00,
  "tax": 0.00,
  "tax_rate": 0.0,
  "registration_number": "T1234567890123",
  "category": "food",
  "line_items": [
    {"name": "Item", "quantity": 1, "unit_price": 0.00, "line_total": 0.00}
  ]
}

Important:
- All monetary values must be numbers, not strings
- If you cannot find a field, use null for that field (an empty list for line_items)
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
