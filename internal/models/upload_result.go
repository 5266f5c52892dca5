package models

import "fmt"

// CreatedRecord is one catalog record inserted by a batch upload
type CreatedRecord struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	SKU  string `json:"sku,omitempty"`
	Row  int    `json:"row,omitempty"`
}

// UploadRowError describes a row rejected at commit time
type UploadRowError struct {
	Row   int    `json:"row"`
	Error string `json:"error"`
}

// UploadResult is the outcome of a batch-upload call. A non-empty Errors
// list alongside created records is a partial outcome, not a failure.
type UploadResult struct {
	Message string           `json:"message"`
	Created []CreatedRecord  `json:"created"`
	Errors  []UploadRowError `json:"errors"`
}

// Partial reports whether some rows were created and some rejected
func (r *UploadResult) Partial() bool {
	return r != nil && len(r.Created) > 0 && len(r.Errors) > 0
}

// Summary is the operator-facing line for the result report
func (r *UploadResult) Summary() string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%d product(s) created", len(r.Created))
}
