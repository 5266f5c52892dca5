package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/sheet"
)

// State is a step of the import workflow
type State string

const (
	StateUpload     State = "upload"
	StatePreview    State = "preview"
	StateValidating State = "validating"
	StateValidated  State = "validated"
	StateCommitting State = "committing"
	StateResult     State = "result"
)

var (
	ErrNoDataRows    = errors.New("the file has a header row but no data rows")
	ErrCommitGated   = errors.New("commit is disabled until the file is validated with every row valid")
	ErrBusy          = errors.New("a request for this import is already in flight")
	ErrStaleResponse = errors.New("the import was reset while the request was in flight, response discarded")
)

// TransitionError is returned for an action the current state does not allow
type TransitionError struct {
	Action string
	State  State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while the import is in %s state", e.Action, e.State)
}

// Catalog is the part of the catalog API the workflow depends on
type Catalog interface {
	ValidateBatch(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error)
	BatchUpload(ctx context.Context, file models.UploadFile) (*models.UploadResult, error)
}

// Receipt describes a finished commit
type Receipt struct {
	File      models.UploadFile
	TotalRows int
	Result    *models.UploadResult
	StartedAt time.Time
	Duration  time.Duration
}

// Workflow is one operator's import: parse, validate, review, commit, report.
// The mutex is never held across catalog calls; seq discards responses that
// arrive after Clear.
type Workflow struct {
	mu sync.Mutex

	id      string
	catalog Catalog
	now     func() time.Time

	state      State
	file       models.UploadFile
	sheet      *models.ParsedSheet
	validation *models.ValidationResult
	stale      bool
	result     *models.UploadResult
	notice     *Notice

	seq       uint64
	inFlight  bool
	createdAt time.Time
	updatedAt time.Time
	lastSeen  time.Time
}

// Option configures a Workflow
type Option func(*Workflow)

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// New creates a workflow in the upload state
func New(id string, catalog Catalog, opts ...Option) *Workflow {
	w := &Workflow{
		id:      id,
		catalog: catalog,
		now:     time.Now,
		state:   StateUpload,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.createdAt = w.now()
	w.updatedAt = w.createdAt
	w.lastSeen = w.createdAt
	return w
}

// ID returns the workflow id
func (w *Workflow) ID() string {
	return w.id
}

// State returns the current state
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// LastActivity is the time of the last state change or Touch
func (w *Workflow) LastActivity() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen
}

// Touch records operator activity without changing state
func (w *Workflow) Touch() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen = w.now()
}

// Busy reports whether a validate or commit call is in flight
func (w *Workflow) Busy() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.inFlight
}

// Select parses file and shows it for review. A file with no data rows
// or one that cannot be parsed leaves the workflow in upload with a notice.
// Any previous validation result is dropped.
func (w *Workflow) Select(file models.UploadFile) error {
	// Parse outside the lock; it touches nothing shared
	parsed, parseErr := sheet.Parse(file)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.inFlight {
		return ErrBusy
	}
	switch w.state {
	case StateUpload, StatePreview, StateValidated:
	default:
		return &TransitionError{Action: "select a file", State: w.state}
	}

	if parseErr != nil {
		w.resetLocked()
		w.notice = errorNotice(parseErr)
		return parseErr
	}
	if parsed.Len() == 0 {
		w.resetLocked()
		w.notice = errorNotice(ErrNoDataRows)
		return ErrNoDataRows
	}

	w.file = file
	w.sheet = parsed
	w.validation = nil
	w.stale = false
	w.result = nil
	w.notice = nil
	w.setStateLocked(StatePreview)
	return nil
}

// Validate sends the selected file to the catalog API. On success the result
// replaces any previous one; on failure the workflow returns to preview and
// a previous result is kept but marked stale.
func (w *Workflow) Validate(ctx context.Context) (*models.ValidationResult, error) {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	if w.state != StatePreview && w.state != StateValidated {
		state := w.state
		w.mu.Unlock()
		return nil, &TransitionError{Action: "validate", State: state}
	}
	seq := w.beginLocked(StateValidating)
	file := w.file
	w.mu.Unlock()

	result, err := w.catalog.ValidateBatch(ctx, file)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.seq != seq {
		return nil, ErrStaleResponse
	}
	w.inFlight = false

	if err != nil {
		w.stale = w.validation != nil
		w.notice = errorNotice(err)
		w.setStateLocked(StatePreview)
		return nil, err
	}
	if result == nil {
		result = &models.ValidationResult{}
	}

	w.validation = result
	w.stale = false
	w.notice = nil
	if anomaly := result.Anomaly(w.sheet.Len()); anomaly != "" {
		w.notice = &Notice{Level: NoticeWarning, Message: anomaly}
	}
	w.setStateLocked(StateValidated)
	return result, nil
}

// CanCommit is the commit gate: validated with no invalid rows and at least one row
func (w *Workflow) CanCommit() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.canCommitLocked()
}

func (w *Workflow) canCommitLocked() bool {
	return w.state == StateValidated && !w.inFlight && w.validation.AllValid()
}

// Commit sends the validated file to batch-upload. A request failure leaves
// the workflow validated so the commit can be retried without re-validating.
// Rows rejected by the server are part of a normal result, not an error.
// A response that arrives after Clear returns ErrStaleResponse together with
// the receipt; the workflow state is left untouched.
func (w *Workflow) Commit(ctx context.Context) (*Receipt, error) {
	w.mu.Lock()
	if w.inFlight {
		w.mu.Unlock()
		return nil, ErrBusy
	}
	if !w.canCommitLocked() {
		w.mu.Unlock()
		return nil, ErrCommitGated
	}
	seq := w.beginLocked(StateCommitting)
	file := w.file
	rows := w.sheet.Len()
	w.mu.Unlock()

	started := w.now()
	result, err := w.catalog.BatchUpload(ctx, file)
	finished := w.now()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err == nil && result == nil {
		result = &models.UploadResult{}
	}
	receipt := &Receipt{
		File:      file,
		TotalRows: rows,
		Result:    result,
		StartedAt: started,
		Duration:  finished.Sub(started),
	}

	// The catalog has applied the upload even when the workflow moved on,
	// so the receipt is still returned for the audit history.
	if w.seq != seq {
		if err != nil {
			return nil, ErrStaleResponse
		}
		return receipt, ErrStaleResponse
	}
	w.inFlight = false

	if err != nil {
		w.notice = errorNotice(err)
		w.setStateLocked(StateValidated)
		return nil, err
	}

	w.result = result
	w.notice = &Notice{Level: NoticeInfo, Message: result.Summary()}
	if len(result.Errors) > 0 {
		w.notice.Level = NoticeWarning
		w.notice.Message = fmt.Sprintf("%s, %d row(s) rejected", result.Summary(), len(result.Errors))
	}
	w.setStateLocked(StateResult)
	return receipt, nil
}

// Clear returns to upload from any state, discarding the file and results.
// A call still in flight is abandoned and its response will be discarded.
func (w *Workflow) Clear() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.resetLocked()
	w.notice = nil
}

// UploadAnother starts over after a commit result
func (w *Workflow) UploadAnother() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != StateResult {
		return &TransitionError{Action: "upload another file", State: w.state}
	}
	w.resetLocked()
	w.notice = nil
	return nil
}

func (w *Workflow) beginLocked(transient State) uint64 {
	w.seq++
	w.inFlight = true
	w.setStateLocked(transient)
	return w.seq
}

func (w *Workflow) resetLocked() {
	w.seq++
	w.inFlight = false
	w.file = models.UploadFile{}
	w.sheet = nil
	w.validation = nil
	w.stale = false
	w.result = nil
	w.setStateLocked(StateUpload)
}

func (w *Workflow) setStateLocked(state State) {
	w.state = state
	w.updatedAt = w.now()
	w.lastSeen = w.updatedAt
}
