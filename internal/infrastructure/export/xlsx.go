package export

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/invoice-ingest/internal/core/domain"
)

const sheetName = "Results"

type XLSXEncoder struct {
	logger *slog.Logger
}

func NewXLSXEncoder(logger *slog.Logger) *XLSXEncoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXEncoder{logger: logger}
}

func (e *XLSXEncoder) Format() string { return domain.ExportXLSX }

func (e *XLSXEncoder) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Encode writes one sheet. Page and confidence stay numeric so spreadsheets can sort and filter on them.
func (e *XLSXEncoder) Encode(results []domain.ExtractionResult) ([]byte, error) {
	start := time.Now()

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), sheetName); err != nil {
		return nil, fmt.Errorf("xlsx rename sheet: %w", err)
	}
	index, err := f.GetSheetIndex(sheetName)
	if err != nil {
		return nil, fmt.Errorf("xlsx sheet index: %w", err)
	}
	f.SetActiveSheet(index)

	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return nil, fmt.Errorf("xlsx header: %w", err)
		}
	}

	for i, r := range results {
		row := i + 2
		evidence := ""
		if r.Evidence != nil {
			evidence = *r.Evidence
		}
		values := []any{r.DocumentName, r.Page, r.OriginalTerm, r.Canonical, r.Value, r.Confidence, evidence}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, fmt.Errorf("xlsx row %d: %w", row, err)
			}
		}
	}

	_ = f.SetColWidth(sheetName, "A", "A", 32)
	_ = f.SetColWidth(sheetName, "B", "B", 8)
	_ = f.SetColWidth(sheetName, "C", "D", 26)
	_ = f.SetColWidth(sheetName, "E", "E", 22)
	_ = f.SetColWidth(sheetName, "F", "F", 14)
	_ = f.SetColWidth(sheetName, "G", "G", 60)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	e.logger.Info("export.xlsx.ok",
		"rows", len(results),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}
