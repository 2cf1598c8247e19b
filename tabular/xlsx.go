package tabular

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// xlsxSheet is the worksheet name used for import and export
const xlsxSheet = "Sheet1"

// XLSXFormat reads and writes Excel workbooks. The first row of the first
// sheet is the header row.
type XLSXFormat struct{}

// Title is "xlsx"
func (f *XLSXFormat) Title() string { return "xlsx" }

// Extension is "xlsx"
func (f *XLSXFormat) Extension() string { return "xlsx" }

// ContentType is the OOXML spreadsheet MIME type
func (f *XLSXFormat) ContentType() string {
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// IsBinary reports true; XLSX is a zip container
func (f *XLSXFormat) IsBinary() bool { return true }

// CreateDataset parses the first sheet of a workbook
func (f *XLSXFormat) CreateDataset(data []byte) (*Dataset, error) {
	wb, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer wb.Close()

	sheets := wb.GetSheetList()
	if len(sheets) == 0 {
		return NewDataset(), nil
	}

	rows, err := wb.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	if len(rows) == 0 {
		return NewDataset(), nil
	}

	d := NewDataset(rows[0]...)
	for _, rec := range rows[1:] {
		row := make([]interface{}, d.Width())
		for i := range row {
			// Trailing empty cells are omitted by the reader
			if i < len(rec) {
				row[i] = rec[i]
			} else {
				row[i] = ""
			}
		}
		if err := d.Append(row); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// ExportData serializes the dataset as a single-sheet workbook
func (f *XLSXFormat) ExportData(d *Dataset) ([]byte, error) {
	wb := excelize.NewFile()
	defer wb.Close()

	header := make([]interface{}, len(d.Headers))
	for i, h := range d.Headers {
		header[i] = h
	}
	if err := setSheetRow(wb, 1, header); err != nil {
		return nil, err
	}

	for i := 0; i < d.Len(); i++ {
		if err := setSheetRow(wb, i+2, d.RawRow(i)); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	if err := wb.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// setSheetRow writes one row of cells at the given 1-based row number
func setSheetRow(wb *excelize.File, rowNum int, cells []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	return wb.SetSheetRow(xlsxSheet, cell, &cells)
}
