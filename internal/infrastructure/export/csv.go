package export

import (
	"bytes"
	"encoding/csv"
	"fmt"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

type CSVEncoder struct{}

func NewCSVEncoder() *CSVEncoder {
	return &CSVEncoder{}
}

func (CSVEncoder) Format() string      { return domain.ExportCSV }
func (CSVEncoder) ContentType() string { return "text/csv; charset=utf-8" }

func (CSVEncoder) Encode(results []domain.ExtractionResult) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(headers); err != nil {
		return nil, fmt.Errorf("csv write header: %w", err)
	}
	for _, r := range results {
		if err := w.Write(record(r)); err != nil {
			return nil, fmt.Errorf("csv write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("csv flush: %w", err)
	}
	return buf.Bytes(), nil
}
