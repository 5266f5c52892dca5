package workflow

import (
	"time"

	"github.com/catalog-import-console/internal/models"
)

// NoticeLevel is the severity of an operator notice
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a non-fatal message shown next to the import
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

func errorNotice(err error) *Notice {
	return &Notice{Level: NoticeError, Message: err.Error()}
}

// DisplayStatus is how a row is highlighted
type DisplayStatus string

const (
	DisplayNone     DisplayStatus = "none"
	DisplayClean    DisplayStatus = "clean"
	DisplayCaution  DisplayStatus = "caution"
	DisplayBlocking DisplayStatus = "blocking"
)

// RowView is one parsed row with its validation outcome
type RowView struct {
	Row      int              `json:"row"`
	Status   DisplayStatus    `json:"status"`
	Values   models.ParsedRow `json:"values"`
	Errors   []string         `json:"errors,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
}

// ValidationSummary is the file-level validation count
type ValidationSummary struct {
	TotalRows   int  `json:"total_rows"`
	ValidRows   int  `json:"valid_rows"`
	InvalidRows int  `json:"invalid_rows"`
	Stale       bool `json:"stale"`
}

// ResultView is the commit report
type ResultView struct {
	Summary    string                  `json:"summary"`
	Message    string                  `json:"message,omitempty"`
	Created    []models.CreatedRecord  `json:"created"`
	Errors     []models.UploadRowError `json:"errors"`
	ErrorCount int                     `json:"error_count"`
}

// View is a snapshot of the workflow for rendering
type View struct {
	ID         string             `json:"id"`
	State      State              `json:"state"`
	FileName   string             `json:"file_name,omitempty"`
	FileSize   int64              `json:"file_size,omitempty"`
	Headers    []string           `json:"headers"`
	Rows       []RowView          `json:"rows"`
	Validation *ValidationSummary `json:"validation,omitempty"`
	Anomaly    string             `json:"anomaly,omitempty"`
	CanCommit  bool               `json:"can_commit"`
	Busy       bool               `json:"busy"`
	Result     *ResultView        `json:"result,omitempty"`
	Notice     *Notice            `json:"notice,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// View renders the current state. Rows carry no status before validation.
func (w *Workflow) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{
		ID:        w.id,
		State:     w.state,
		Headers:   []string{},
		Rows:      []RowView{},
		CanCommit: w.canCommitLocked(),
		Busy:      w.inFlight,
		CreatedAt: w.createdAt,
		UpdatedAt: w.updatedAt,
	}
	if w.notice != nil {
		n := *w.notice
		v.Notice = &n
	}
	if !w.file.IsZero() {
		v.FileName = w.file.Name()
		v.FileSize = w.file.Size()
	}

	if w.sheet != nil {
		v.Headers = append(v.Headers, w.sheet.Headers...)
		v.Rows = renderRows(w.sheet, w.validation)
	}

	if w.validation != nil {
		v.Validation = &ValidationSummary{
			TotalRows:   w.validation.TotalRows,
			ValidRows:   w.validation.ValidRows,
			InvalidRows: w.validation.InvalidRows,
			Stale:       w.stale,
		}
		v.Anomaly = w.validation.Anomaly(w.sheet.Len())
	}

	if w.result != nil {
		v.Result = &ResultView{
			Summary:    w.result.Summary(),
			Message:    w.result.Message,
			Created:    nonNil(w.result.Created),
			Errors:     nonNil(w.result.Errors),
			ErrorCount: len(w.result.Errors),
		}
	}

	return v
}

func renderRows(parsed *models.ParsedSheet, validation *models.ValidationResult) []RowView {
	var byRow map[int]models.RowValidation
	if validation != nil {
		byRow = make(map[int]models.RowValidation, len(validation.Rows))
		for _, r := range validation.Rows {
			byRow[r.Row] = r
		}
	}

	rows := make([]RowView, 0, parsed.Len())
	for i, values := range parsed.Rows {
		number := parsed.RowNumber(i)
		copied := make(models.ParsedRow, len(values))
		for k, val := range values {
			copied[k] = val
		}

		rv := RowView{Row: number, Status: DisplayNone, Values: copied}
		if r, ok := byRow[number]; ok {
			rv.Status = DisplayStatusOf(r)
			rv.Errors = r.Errors
			rv.Warnings = r.Warnings
		}
		rows = append(rows, rv)
	}
	return rows
}

// DisplayStatusOf maps a row validation to its highlight. Warnings never block.
func DisplayStatusOf(r models.RowValidation) DisplayStatus {
	switch {
	case r.Blocking():
		return DisplayBlocking
	case len(r.Warnings) > 0:
		return DisplayCaution
	default:
		return DisplayClean
	}
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
