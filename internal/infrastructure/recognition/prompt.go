package recognition

import "fmt"

const instructions = `You are reading a financial document such as an invoice, a bill or a statement.
Extract every labelled financial value you can see: totals, subtotals, taxes, discounts, amounts due,
dates, invoice numbers, account and reference numbers, counterparties.

Return ONLY valid JSON in this exact format:
{
  "items": [
    {"page": 1, "term": "label exactly as printed", "value": "value exactly as printed", "confidence": 0, "evidence": "short surrounding text or null"}
  ]
}

Rules:
- term is the label as printed in the document, do not rename it
- value is the literal text, keep currency symbols, separators and date formats as printed
- confidence is an integer from 0 to 100
- page is the 1-based page number the value was found on
- return {"items": []} when nothing can be read
- do not add text before or after the JSON and do not use markdown code blocks`

// Instructions is the system prompt shared by all recognition providers.
func Instructions() string {
	return instructions
}

// PagePrompt introduces one page of a document.
func PagePrompt(name string, page, total int) string {
	return fmt.Sprintf("Document %q, page %d of %d.", name, page, total)
}

// TextPrompt wraps the text layer of one page.
func TextPrompt(name string, page, total int, text string) string {
	return fmt.Sprintf("%s\nUse page %d for every item.\n\nPage text:\n%s", PagePrompt(name, page, total), page, text)
}
