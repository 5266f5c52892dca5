package models

// ParsedRow maps a column header to its cell value. Missing cells are "".
type ParsedRow map[string]string

// ParsedSheet is the first sheet of an uploaded file. Every row carries
// exactly the keys listed in Headers.
type ParsedSheet struct {
	Headers []string    `json:"headers"`
	Rows    []ParsedRow `json:"rows"`
	// RowNumbers holds the spreadsheet row number of each entry in Rows.
	// Blank rows are skipped while parsing, so numbers may have gaps.
	RowNumbers []int `json:"row_numbers,omitempty"`
}

// FirstDataRow is the spreadsheet row number of the first data row (row 1 is the header)
const FirstDataRow = 2

// SpreadsheetRow converts a 0-based data row index to its spreadsheet row number
func SpreadsheetRow(index int) int {
	return index + FirstDataRow
}

// Len returns the number of data rows
func (s *ParsedSheet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Rows)
}

// RowNumber returns the spreadsheet row number of the i-th parsed row
func (s *ParsedSheet) RowNumber(i int) int {
	if s != nil && i >= 0 && i < len(s.RowNumbers) {
		return s.RowNumbers[i]
	}
	return SpreadsheetRow(i)
}
