package models

import "fmt"

// RowStatus is the server verdict for a single row
type RowStatus string

const (
	RowStatusValid   RowStatus = "valid"
	RowStatusInvalid RowStatus = "invalid"
)

// RowValidation is the per-row outcome of a validate-batch call.
// Row is the 1-based spreadsheet row number.
type RowValidation struct {
	Row      int       `json:"row"`
	Status   RowStatus `json:"status"`
	Errors   []string  `json:"errors"`
	Warnings []string  `json:"warnings"`
}

// Blocking reports whether the row prevents a commit
func (r RowValidation) Blocking() bool {
	return r.Status == RowStatusInvalid
}

// ValidationResult is the file-level outcome of a validate-batch call
type ValidationResult struct {
	TotalRows   int             `json:"total_rows"`
	ValidRows   int             `json:"valid_rows"`
	InvalidRows int             `json:"invalid_rows"`
	Rows        []RowValidation `json:"rows"`
}

// AllValid is the commit gate: nothing invalid and at least one row
func (v *ValidationResult) AllValid() bool {
	return v != nil && v.InvalidRows == 0 && v.TotalRows > 0
}

// RowByNumber returns the validation for a spreadsheet row number
func (v *ValidationResult) RowByNumber(row int) (RowValidation, bool) {
	if v == nil {
		return RowValidation{}, false
	}
	for _, r := range v.Rows {
		if r.Row == row {
			return r, true
		}
	}
	return RowValidation{}, false
}

// Anomaly describes counts that do not add up. An empty string means the
// response is consistent with itself and with the parsed row count.
func (v *ValidationResult) Anomaly(parsedRows int) string {
	if v == nil {
		return ""
	}
	if v.ValidRows+v.InvalidRows != v.TotalRows {
		return fmt.Sprintf("valid_rows (%d) + invalid_rows (%d) does not equal total_rows (%d)",
			v.ValidRows, v.InvalidRows, v.TotalRows)
	}
	if v.TotalRows != parsedRows {
		return fmt.Sprintf("server counted %d rows but the file has %d data rows", v.TotalRows, parsedRows)
	}
	return ""
}
