package sheet

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/catalog-import-console/internal/models"
	"github.com/xuri/excelize/v2"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	ole2Magic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}
	utf8BOM   = "\ufeff"
)

// ParseError reports a file that could not be read as a table
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	return "could not read file: " + e.Reason
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

func parseErr(err error, format string, args ...any) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Err: err}
}

// Parse reads the first sheet of a CSV or XLSX upload. The header row becomes
// Headers and every following non-blank row becomes a ParsedRow holding every
// header key. An empty sheet is not an error.
func Parse(file models.UploadFile) (*models.ParsedSheet, error) {
	content := file.Bytes()
	if len(content) == 0 {
		return &models.ParsedSheet{Headers: []string{}, Rows: []models.ParsedRow{}}, nil
	}

	format := file.Format()
	switch {
	case bytes.HasPrefix(content, zipMagic):
		return parseXLSX(content)
	case bytes.HasPrefix(content, ole2Magic):
		return nil, parseErr(nil, "legacy binary .xls workbooks are not supported, save the file as .xlsx or .csv")
	case format == models.FileFormatXLSX:
		return nil, parseErr(nil, "%s is not a valid .xlsx workbook", file.Name())
	case format == models.FileFormatUnknown:
		return nil, parseErr(nil, "unsupported file type %q, expected .csv, .xls or .xlsx", file.Name())
	}

	// .csv, and .xls files that are really delimited text
	return parseCSV(content)
}

func parseCSV(content []byte) (*models.ParsedSheet, error) {
	if !utf8.Valid(content) {
		return nil, parseErr(nil, "file is not UTF-8 encoded")
	}

	// encoding/csv drops empty lines, so row numbers count records
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(content, []byte(utf8BOM))))
	reader.FieldsPerRecord = -1

	var records [][]string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var pe *csv.ParseError
			if errors.As(err, &pe) {
				return nil, parseErr(err, "malformed CSV on line %d: %v", pe.Line, pe.Err)
			}
			return nil, parseErr(err, "malformed CSV: %v", err)
		}
		records = append(records, record)
	}

	return buildSheet(records), nil
}

func parseXLSX(content []byte) (*models.ParsedSheet, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, parseErr(err, "workbook is corrupt or encrypted")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return buildSheet(nil), nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, parseErr(err, "failed to read sheet %q", sheets[0])
	}

	return buildSheet(rows), nil
}

// buildSheet turns raw records into a rectangular sheet. records[0] is the
// header row and records[i] is spreadsheet row i+1.
func buildSheet(records [][]string) *models.ParsedSheet {
	sheet := &models.ParsedSheet{Headers: []string{}, Rows: []models.ParsedRow{}}
	if len(records) == 0 {
		return sheet
	}

	sheet.Headers = normalizeHeaders(records[0])
	if len(sheet.Headers) == 0 {
		return sheet
	}

	for i, record := range records[1:] {
		if blank(record) {
			continue
		}
		row := make(models.ParsedRow, len(sheet.Headers))
		for col, header := range sheet.Headers {
			if col < len(record) {
				row[header] = strings.TrimSpace(record[col])
			} else {
				row[header] = ""
			}
		}
		sheet.Rows = append(sheet.Rows, row)
		sheet.RowNumbers = append(sheet.RowNumbers, i+models.FirstDataRow)
	}

	return sheet
}

func normalizeHeaders(raw []string) []string {
	if len(raw) > 0 {
		raw[0] = strings.TrimPrefix(raw[0], utf8BOM)
	}

	// Trailing blank header cells are padding, not columns
	end := len(raw)
	for end > 0 && strings.TrimSpace(raw[end-1]) == "" {
		end--
	}

	// Names present in the file are never taken by a renamed duplicate
	reserved := make(map[string]bool, end)
	for _, h := range raw[:end] {
		if h = strings.TrimSpace(h); h != "" {
			reserved[h] = true
		}
	}

	headers := make([]string, 0, end)
	used := make(map[string]bool, end)
	for i, h := range raw[:end] {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("column_%d", i+1)
		}
		if used[h] {
			base := h
			for n := 2; ; n++ {
				h = fmt.Sprintf("%s_%d", base, n)
				if !used[h] && !reserved[h] {
					break
				}
			}
		}
		used[h] = true
		headers = append(headers, h)
	}
	return headers
}

func blank(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
