package export

import (
	"strconv"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

var headers = []string{
	"Document Name",
	"Page",
	"Original Term",
	"Canonical Field",
	"Value",
	"Confidence (%)",
	"Evidence",
}

func record(r domain.ExtractionResult) []string {
	evidence := ""
	if r.Evidence != nil {
		evidence = *r.Evidence
	}
	return []string{
		r.DocumentName,
		strconv.Itoa(r.Page),
		r.OriginalTerm,
		r.Canonical,
		r.Value,
		strconv.Itoa(r.Confidence),
		evidence,
	}
}
