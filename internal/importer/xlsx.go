package importer

import (
	"fmt"
	"io"

	"github.com/boddenberg/pharma-crm/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads the active sheet of a workbook. The first non-empty row is
// the header. Cells are read raw so dates arrive as serial numbers or text.
func ParseXLSX(r io.Reader, opts Options) (*Result, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, &domain.ErrValidation{Field: "file", Message: fmt.Sprintf("not a valid xlsx workbook: %v", err)}
	}
	defer f.Close()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())
	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	rows, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}

	start := 0
	for start < len(rows) && isBlank(rows[start]) {
		start++
	}
	if start == len(rows) {
		return nil, &domain.ErrValidation{Field: "file", Message: "workbook is empty"}
	}

	h, err := parseHeader(rows[start])
	if err != nil {
		return nil, err
	}
	b := newBuilder(h, opts)
	for i := start + 1; i < len(rows); i++ {
		if err := b.add(i+1, rows[i]); err != nil {
			return nil, err
		}
	}
	return b.result, nil
}
