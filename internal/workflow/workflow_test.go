package workflow

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/catalog-import-console/internal/catalog"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/sheet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCatalog struct {
	mu sync.Mutex

	validateResult *models.ValidationResult
	validateErr    error
	uploadResult   *models.UploadResult
	uploadErr      error

	// When set, calls block until release is closed
	entered chan struct{}
	release chan struct{}

	validated [][]byte
	uploaded  [][]byte
}

func (f *fakeCatalog) wait(ctx context.Context) {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.release != nil {
		select {
		case <-f.release:
		case <-ctx.Done():
		}
	}
}

func (f *fakeCatalog) ValidateBatch(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error) {
	f.mu.Lock()
	f.validated = append(f.validated, file.Bytes())
	f.mu.Unlock()
	f.wait(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.validateResult, f.validateErr
}

func (f *fakeCatalog) BatchUpload(ctx context.Context, file models.UploadFile) (*models.UploadResult, error) {
	f.mu.Lock()
	f.uploaded = append(f.uploaded, file.Bytes())
	f.mu.Unlock()
	f.wait(ctx)

	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploadResult, f.uploadErr
}

const threeRows = "name,sku,category_name,subcategory_name,price,stock,image_urls\n" +
	"Oak Chair,C-1,Dining Room,Chairs,49.50,10,https://cdn/c1.jpg\n" +
	"Oak Table,T-1,Dining Room,Tables,399.00,2,https://cdn/t1.jpg\n" +
	"Floor Lamp,L-1,Living Room,Lighting,89.99,5,https://cdn/l1.jpg\n"

func csv(content string) models.UploadFile {
	return models.NewUploadFile("products.csv", []byte(content))
}

func allValid(n int) *models.ValidationResult {
	rows := make([]models.RowValidation, n)
	for i := range rows {
		rows[i] = models.RowValidation{Row: models.SpreadsheetRow(i), Status: models.RowStatusValid}
	}
	return &models.ValidationResult{TotalRows: n, ValidRows: n, Rows: rows}
}

func validated(t *testing.T, fc *fakeCatalog, content string) *Workflow {
	t.Helper()
	w := New("wf-1", fc)
	require.NoError(t, w.Select(csv(content)))
	_, err := w.Validate(context.Background())
	require.NoError(t, err)
	return w
}

func TestScenarioA_ValidateAndCommit(t *testing.T) {
	fc := &fakeCatalog{
		validateResult: allValid(3),
		uploadResult: &models.UploadResult{
			Message: "Upload complete",
			Created: []models.CreatedRecord{{ID: "1"}, {ID: "2"}, {ID: "3"}},
			Errors:  []models.UploadRowError{},
		},
	}
	w := New("wf-a", fc)

	require.NoError(t, w.Select(csv(threeRows)))
	assert.Equal(t, StatePreview, w.State())
	assert.False(t, w.CanCommit())

	view := w.View()
	require.Len(t, view.Rows, 3)
	for _, r := range view.Rows {
		assert.Equal(t, DisplayNone, r.Status)
	}

	result, err := w.Validate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.TotalRows)
	assert.Equal(t, StateValidated, w.State())
	assert.True(t, w.CanCommit())

	receipt, err := w.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateResult, w.State())
	assert.Equal(t, 3, receipt.TotalRows)

	view = w.View()
	require.NotNil(t, view.Result)
	assert.Equal(t, "3 product(s) created", view.Result.Summary)
	assert.Equal(t, 0, view.Result.ErrorCount)
	assert.False(t, view.CanCommit)

	// Committed bytes are the validated bytes
	require.Len(t, fc.validated, 1)
	require.Len(t, fc.uploaded, 1)
	assert.True(t, bytes.Equal(fc.validated[0], fc.uploaded[0]))
	assert.Equal(t, []byte(threeRows), fc.uploaded[0])

	// No second commit from the result state
	_, err = w.Commit(context.Background())
	assert.ErrorIs(t, err, ErrCommitGated)
	assert.Len(t, fc.uploaded, 1)
}

func TestScenarioB_InvalidRowBlocksCommit(t *testing.T) {
	fc := &fakeCatalog{
		validateResult: &models.ValidationResult{
			TotalRows: 2, ValidRows: 1, InvalidRows: 1,
			Rows: []models.RowValidation{
				{Row: 2, Status: models.RowStatusValid, Warnings: []string{"brand is empty"}},
				{Row: 3, Status: models.RowStatusInvalid, Errors: []string{"price is required"}},
			},
		},
	}
	w := validated(t, fc, "name,sku,price\nChair,C-1,10\nTable,T-1,\n")

	assert.Equal(t, StateValidated, w.State())
	assert.False(t, w.CanCommit())

	_, err := w.Commit(context.Background())
	assert.ErrorIs(t, err, ErrCommitGated)
	assert.Empty(t, fc.uploaded)

	view := w.View()
	require.Len(t, view.Rows, 2)
	assert.Equal(t, 2, view.Rows[0].Row)
	assert.Equal(t, DisplayCaution, view.Rows[0].Status)
	assert.Equal(t, 3, view.Rows[1].Row)
	assert.Equal(t, DisplayBlocking, view.Rows[1].Status)
	assert.Equal(t, []string{"price is required"}, view.Rows[1].Errors)
}

func TestCommitGate(t *testing.T) {
	tests := []struct {
		name   string
		result *models.ValidationResult
		want   bool
	}{
		{"all valid", allValid(2), true},
		{"one invalid", &models.ValidationResult{TotalRows: 2, ValidRows: 1, InvalidRows: 1}, false},
		{"zero rows", &models.ValidationResult{}, false},
		{"all invalid", &models.ValidationResult{TotalRows: 2, InvalidRows: 2}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validated(t, &fakeCatalog{validateResult: tt.result}, "name\na\nb\n")
			assert.Equal(t, tt.want, w.CanCommit())
			assert.Equal(t, tt.want, w.View().CanCommit)
		})
	}
}

func TestScenarioE_CommitFailureAllowsRetry(t *testing.T) {
	fc := &fakeCatalog{
		validateResult: allValid(3),
		uploadErr:      &catalog.RequestError{Op: catalog.OpBatchUpload, Err: errors.New("connection reset")},
	}
	w := validated(t, fc, threeRows)

	_, err := w.Commit(context.Background())
	require.Error(t, err)
	var reqErr *catalog.RequestError
	assert.True(t, errors.As(err, &reqErr))

	assert.Equal(t, StateValidated, w.State())
	assert.True(t, w.CanCommit())
	view := w.View()
	require.NotNil(t, view.Notice)
	assert.Equal(t, NoticeError, view.Notice.Level)

	fc.mu.Lock()
	fc.uploadErr = nil
	fc.uploadResult = &models.UploadResult{Created: []models.CreatedRecord{{ID: "1"}, {ID: "2"}, {ID: "3"}}}
	fc.mu.Unlock()

	_, err = w.Commit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateResult, w.State())
	assert.Len(t, fc.validated, 1, "retry must not re-validate")
	assert.Len(t, fc.uploaded, 2)
}

func TestPartialCommitIsAResult(t *testing.T) {
	fc := &fakeCatalog{
		validateResult: allValid(3),
		uploadResult: &models.UploadResult{
			Created: []models.CreatedRecord{{ID: "1"}, {ID: "2"}},
			Errors:  []models.UploadRowError{{Row: 4, Error: "sku already exists"}},
		},
	}
	w := validated(t, fc, threeRows)

	_, err := w.Commit(context.Background())
	require.NoError(t, err)

	view := w.View()
	assert.Equal(t, StateResult, view.State)
	assert.Equal(t, "2 product(s) created", view.Result.Summary)
	assert.Equal(t, 1, view.Result.ErrorCount)
	assert.Equal(t, NoticeWarning, view.Notice.Level)
}

func TestValidateFailureKeepsStaleResult(t *testing.T) {
	fc := &fakeCatalog{validateResult: allValid(3)}
	w := validated(t, fc, threeRows)

	fc.mu.Lock()
	fc.validateErr = &catalog.APIError{StatusCode: 503, Message: "validation service unavailable"}
	fc.mu.Unlock()

	_, err := w.Validate(context.Background())
	require.Error(t, err)

	assert.Equal(t, StatePreview, w.State())
	assert.False(t, w.CanCommit())

	view := w.View()
	require.NotNil(t, view.Validation)
	assert.True(t, view.Validation.Stale)
	assert.Equal(t, "validation service unavailable", view.Notice.Message)
	assert.Equal(t, DisplayClean, view.Rows[0].Status)
}

func TestValidateFailureWithoutPriorResult(t *testing.T) {
	fc := &fakeCatalog{validateErr: &catalog.APIError{StatusCode: 400, Message: "bad file"}}
	w := New("wf", fc)
	require.NoError(t, w.Select(csv(threeRows)))

	_, err := w.Validate(context.Background())
	require.Error(t, err)
	assert.Equal(t, StatePreview, w.State())
	assert.Nil(t, w.View().Validation)
}

func TestRevalidateReplacesResult(t *testing.T) {
	fc := &fakeCatalog{validateResult: &models.ValidationResult{
		TotalRows: 3, ValidRows: 2, InvalidRows: 1,
		Rows: []models.RowValidation{{Row: 3, Status: models.RowStatusInvalid, Errors: []string{"bad"}}},
	}}
	w := validated(t, fc, threeRows)
	assert.False(t, w.CanCommit())

	fc.mu.Lock()
	fc.validateResult = allValid(3)
	fc.mu.Unlock()

	_, err := w.Validate(context.Background())
	require.NoError(t, err)
	assert.True(t, w.CanCommit())
	assert.Equal(t, 0, w.View().Validation.InvalidRows)
}

func TestSelectDropsValidation(t *testing.T) {
	fc := &fakeCatalog{validateResult: allValid(3)}
	w := validated(t, fc, threeRows)
	require.True(t, w.CanCommit())

	require.NoError(t, w.Select(csv(threeRows)))
	assert.Equal(t, StatePreview, w.State())
	assert.False(t, w.CanCommit())
	assert.Nil(t, w.View().Validation)
}

func TestSelectErrors(t *testing.T) {
	t.Run("no data rows", func(t *testing.T) {
		w := New("wf", &fakeCatalog{})
		err := w.Select(csv("name,sku\n"))
		assert.ErrorIs(t, err, ErrNoDataRows)
		assert.Equal(t, StateUpload, w.State())
		assert.Equal(t, NoticeError, w.View().Notice.Level)
	})

	t.Run("parse error returns to upload", func(t *testing.T) {
		w := New("wf", &fakeCatalog{})
		require.NoError(t, w.Select(csv(threeRows)))

		err := w.Select(models.NewUploadFile("old.xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}))
		var pe *sheet.ParseError
		require.True(t, errors.As(err, &pe))

		view := w.View()
		assert.Equal(t, StateUpload, view.State)
		assert.Empty(t, view.Rows)
		assert.Empty(t, view.FileName)
		assert.Contains(t, view.Notice.Message, "legacy binary .xls")
	})

	t.Run("not allowed from result", func(t *testing.T) {
		fc := &fakeCatalog{validateResult: allValid(3), uploadResult: &models.UploadResult{}}
		w := validated(t, fc, threeRows)
		_, err := w.Commit(context.Background())
		require.NoError(t, err)

		err = w.Select(csv(threeRows))
		var te *TransitionError
		assert.True(t, errors.As(err, &te))
	})
}

func TestValidateRequiresFile(t *testing.T) {
	w := New("wf", &fakeCatalog{})
	_, err := w.Validate(context.Background())
	var te *TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, StateUpload, te.State)
}

func TestBusyRejectsReentrantCalls(t *testing.T) {
	fc := &fakeCatalog{
		validateResult: allValid(3),
		entered:        make(chan struct{}, 1),
		release:        make(chan struct{}),
	}
	w := New("wf", fc)
	require.NoError(t, w.Select(csv(threeRows)))

	done := make(chan error, 1)
	go func() {
		_, err := w.Validate(context.Background())
		done <- err
	}()
	<-fc.entered

	assert.Equal(t, StateValidating, w.State())
	assert.True(t, w.Busy())

	_, err := w.Validate(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = w.Commit(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, w.Select(csv(threeRows)), ErrBusy)

	close(fc.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateValidated, w.State())
	assert.Len(t, fc.validated, 1)
}

func TestClearDiscardsLateResponse(t *testing.T) {
	fc := &fakeCatalog{
		validateResult: allValid(3),
		uploadResult:   &models.UploadResult{Created: []models.CreatedRecord{{ID: "1"}}},
		entered:        make(chan struct{}, 1),
	}
	w := New("wf", fc)
	require.NoError(t, w.Select(csv(threeRows)))
	_, err := w.Validate(context.Background())
	require.NoError(t, err)
	<-fc.entered

	fc.release = make(chan struct{})
	type outcome struct {
		receipt *Receipt
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		receipt, err := w.Commit(context.Background())
		done <- outcome{receipt, err}
	}()
	<-fc.entered

	w.Clear()
	assert.Equal(t, StateUpload, w.State())

	close(fc.release)
	got := <-done
	assert.ErrorIs(t, got.err, ErrStaleResponse)
	require.NotNil(t, got.receipt)
	assert.Len(t, got.receipt.Result.Created, 1)
	assert.Equal(t, 3, got.receipt.TotalRows)

	view := w.View()
	assert.Equal(t, StateUpload, view.State)
	assert.Nil(t, view.Result)
	assert.Empty(t, view.Rows)
}

func TestClearDiscardsLateCommitFailure(t *testing.T) {
	fc := &fakeCatalog{
		validateResult: allValid(3),
		uploadErr:      errors.New("gateway timeout"),
		entered:        make(chan struct{}, 1),
	}
	w := New("wf", fc)
	require.NoError(t, w.Select(csv(threeRows)))
	_, err := w.Validate(context.Background())
	require.NoError(t, err)
	<-fc.entered

	fc.release = make(chan struct{})
	type outcome struct {
		receipt *Receipt
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		receipt, err := w.Commit(context.Background())
		done <- outcome{receipt, err}
	}()
	<-fc.entered

	w.Clear()
	close(fc.release)

	got := <-done
	assert.ErrorIs(t, got.err, ErrStaleResponse)
	assert.Nil(t, got.receipt)
	assert.Nil(t, w.View().Notice)
}

func TestUploadAnother(t *testing.T) {
	w := New("wf", &fakeCatalog{})
	var te *TransitionError
	assert.True(t, errors.As(w.UploadAnother(), &te))

	fc := &fakeCatalog{validateResult: allValid(3), uploadResult: &models.UploadResult{}}
	w = validated(t, fc, threeRows)
	_, err := w.Commit(context.Background())
	require.NoError(t, err)

	require.NoError(t, w.UploadAnother())
	view := w.View()
	assert.Equal(t, StateUpload, view.State)
	assert.Nil(t, view.Result)
}

func TestAnomalyIsSurfacedNotEnforced(t *testing.T) {
	fc := &fakeCatalog{validateResult: &models.ValidationResult{TotalRows: 5, ValidRows: 5}}
	w := validated(t, fc, threeRows)

	view := w.View()
	assert.Contains(t, view.Anomaly, "server counted 5 rows")
	assert.Equal(t, NoticeWarning, view.Notice.Level)
	assert.True(t, view.CanCommit)
}

func TestValidateSameBytesTwice(t *testing.T) {
	fc := &fakeCatalog{validateResult: allValid(3)}
	w := validated(t, fc, threeRows)
	_, err := w.Validate(context.Background())
	require.NoError(t, err)

	require.Len(t, fc.validated, 2)
	assert.Equal(t, fc.validated[0], fc.validated[1])
}

func TestLastActivityUsesClock(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w := New("wf", &fakeCatalog{}, WithClock(func() time.Time { return now }))
	assert.Equal(t, now, w.LastActivity())

	now = now.Add(time.Minute)
	require.NoError(t, w.Select(csv(threeRows)))
	assert.Equal(t, now, w.LastActivity())
}

func TestTouchCountsAsActivity(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	w := New("wf", &fakeCatalog{}, WithClock(func() time.Time { return now }))
	require.NoError(t, w.Select(csv(threeRows)))
	selected := now

	now = now.Add(time.Hour)
	w.Touch()

	assert.Equal(t, now, w.LastActivity())
	assert.Equal(t, selected, w.View().UpdatedAt)
	assert.Equal(t, StatePreview, w.State())
}
