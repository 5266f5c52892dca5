package models

import (
	"time"
)

// ImportRunStatus represents the outcome of a committed import
type ImportRunStatus string

const (
	ImportRunStatusCommitted ImportRunStatus = "committed"
	ImportRunStatusPartial   ImportRunStatus = "partial"
	ImportRunStatusRejected  ImportRunStatus = "rejected"
)

// ImportRun is the audit record of one batch-upload call
type ImportRun struct {
	ID           string          `json:"run_id" db:"id"`
	WorkflowID   string          `json:"workflow_id" db:"workflow_id"`
	FileName     string          `json:"file_name" db:"file_name"`
	FileSize     int64           `json:"file_size" db:"file_size"`
	FileKey      string          `json:"file_key,omitempty" db:"file_key"`
	Status       ImportRunStatus `json:"status" db:"status"`
	TotalRows    int             `json:"total_rows" db:"total_rows"`
	CreatedCount int             `json:"created_count" db:"created_count"`
	FailedCount  int             `json:"failed_count" db:"failed_count"`
	Message      string          `json:"message,omitempty" db:"message"`
	CreatedBy    string          `json:"created_by,omitempty" db:"created_by"`
	DurationMs   int64           `json:"duration_ms" db:"duration_ms"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
}

// ImportRunError is a row rejected during a committed import
type ImportRunError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportRunResponse is the API response for a run
type ImportRunResponse struct {
	ImportRun
	Errors      []ImportRunError `json:"errors,omitempty"`
	ErrorCount  int              `json:"error_count,omitempty"`
	ErrorReport string           `json:"error_report_url,omitempty"`
}

// StatusFor derives the run status from an upload result
func StatusFor(result *UploadResult) ImportRunStatus {
	switch {
	case result == nil || len(result.Created) == 0:
		return ImportRunStatusRejected
	case len(result.Errors) > 0:
		return ImportRunStatusPartial
	default:
		return ImportRunStatusCommitted
	}
}

// ImportRunList is a page of runs
type ImportRunList struct {
	Runs   []*ImportRun `json:"runs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}
