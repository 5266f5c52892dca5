package service_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/catalog-import-console/internal/catalog"
	"github.com/catalog-import-console/internal/config"
	"github.com/catalog-import-console/internal/mocks"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
	"github.com/catalog-import-console/internal/service"
	"github.com/catalog-import-console/internal/sheet"
	"github.com/catalog-import-console/internal/validation"
	"github.com/catalog-import-console/internal/workflow"
	"github.com/rs/zerolog"
)

const productsCSV = "name,sku,category_name,subcategory_name,price,stock,image_urls\n" +
	"Oak Chair,CHAIR-1,Dining Room,Chairs,129.99,5,https://cdn/a.jpg\n" +
	"Pine Table,TABLE-1,Dining Room,Tables,499.00,2,https://cdn/b.jpg\n"

var operator = models.Principal{UserID: "ops-1", Role: "editor", Authorization: "Bearer token-1"}

type testHarness struct {
	services *service.Services
	catalog  *mocks.MockCatalog
	runs     *mocks.MockImportRunRepository
	archive  *mocks.MockStorage
}

func newTestHarness(t *testing.T, importCfg config.ImportConfig) *testHarness {
	t.Helper()

	mockCatalog := mocks.NewMockCatalog()
	runs := mocks.NewMockImportRunRepository()
	archive := mocks.NewMockStorage()

	cfg := &config.Config{
		Import: importCfg,
		Editor: config.EditorConfig{PrivilegedRoles: []string{"admin"}, MaxImageSize: 1 << 20},
	}

	services := service.NewServices(service.Deps{
		Repos:     &repository.Repositories{ImportRun: runs},
		Catalog:   mockCatalog,
		Archive:   archive,
		Validator: validation.NewValidator(cfg.Import.MaxUploadSize, cfg.Editor.MaxImageSize),
	}, cfg, zerolog.Nop())

	return &testHarness{services: services, catalog: mockCatalog, runs: runs, archive: archive}
}

func allValid(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error) {
	return &models.ValidationResult{
		TotalRows: 2,
		ValidRows: 2,
		Rows: []models.RowValidation{
			{Row: 2, Status: models.RowStatusValid},
			{Row: 3, Status: models.RowStatusValid, Warnings: []string{"brand is empty"}},
		},
	}, nil
}

func csvUpload(content string) *models.UploadFile {
	f := models.NewUploadFile("products.csv", []byte(content))
	return &f
}

func TestImportService_FullFlowRecordsRun(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{RequestTimeout: time.Second})
	h.catalog.ValidateFunc = allValid

	var commitAuth string
	h.catalog.UploadFunc = func(ctx context.Context, file models.UploadFile) (*models.UploadResult, error) {
		commitAuth = catalog.AuthorizationFrom(ctx)
		return &models.UploadResult{
			Message: "Products uploaded",
			Created: []models.CreatedRecord{{ID: "p1", SKU: "CHAIR-1"}},
			Errors:  []models.UploadRowError{{Row: 3, Error: "sku TABLE-1 already exists"}},
		}, nil
	}
	ctx := context.Background()

	view, err := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if view.State != workflow.StatePreview {
		t.Fatalf("Expected preview, got %s", view.State)
	}
	if len(view.Rows) != 2 {
		t.Errorf("Expected 2 rows, got %d", len(view.Rows))
	}

	view, err = h.services.Import.Validate(ctx, operator, view.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if !view.CanCommit {
		t.Fatal("Expected commit to be enabled")
	}

	view, err = h.services.Import.Commit(ctx, operator, view.ID)
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if view.State != workflow.StateResult {
		t.Errorf("Expected result, got %s", view.State)
	}
	if view.Result.Summary != "1 product(s) created" {
		t.Errorf("Unexpected summary %q", view.Result.Summary)
	}
	if commitAuth != "Bearer token-1" {
		t.Errorf("Expected operator authorization upstream, got %q", commitAuth)
	}

	// Validated and committed bytes are the selected bytes
	if !bytes.Equal(h.catalog.ValidatedFiles[0].Bytes(), []byte(productsCSV)) ||
		!bytes.Equal(h.catalog.UploadedFiles[0].Bytes(), []byte(productsCSV)) {
		t.Error("Expected the selected bytes to be validated and committed unchanged")
	}

	runs := h.runs.All()
	if len(runs) != 1 {
		t.Fatalf("Expected 1 recorded run, got %d", len(runs))
	}
	run := runs[0]
	if run.Status != models.ImportRunStatusPartial {
		t.Errorf("Expected partial, got %s", run.Status)
	}
	if run.WorkflowID != view.ID || run.CreatedBy != "ops-1" || run.TotalRows != 2 {
		t.Errorf("Unexpected run %+v", run)
	}
	if run.CreatedCount != 1 || run.FailedCount != 1 {
		t.Errorf("Expected 1 created and 1 failed, got %d and %d", run.CreatedCount, run.FailedCount)
	}
	if h.runs.Errors[run.ID][0].Message != "sku TABLE-1 already exists" {
		t.Errorf("Unexpected run errors %+v", h.runs.Errors[run.ID])
	}

	archived, ok := h.archive.Objects[run.FileKey]
	if !ok {
		t.Fatalf("Expected file archived under %q", run.FileKey)
	}
	if string(archived) != productsCSV {
		t.Error("Archived bytes differ from the committed file")
	}
	if h.archive.ContentType[run.FileKey] != "text/csv" {
		t.Errorf("Expected text/csv, got %s", h.archive.ContentType[run.FileKey])
	}
}

func TestImportService_CommitGatedWithInvalidRows(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	h.catalog.ValidateFunc = func(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error) {
		return &models.ValidationResult{
			TotalRows: 2, ValidRows: 1, InvalidRows: 1,
			Rows: []models.RowValidation{
				{Row: 2, Status: models.RowStatusValid},
				{Row: 3, Status: models.RowStatusInvalid, Errors: []string{"price must be a number"}},
			},
		}, nil
	}
	ctx := context.Background()

	view, _ := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))
	view, err := h.services.Import.Validate(ctx, operator, view.ID)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if view.CanCommit {
		t.Error("Commit should be disabled with an invalid row")
	}
	if view.Rows[1].Status != workflow.DisplayBlocking {
		t.Errorf("Expected blocking row, got %s", view.Rows[1].Status)
	}

	_, err = h.services.Import.Commit(ctx, operator, view.ID)
	if !errors.Is(err, workflow.ErrCommitGated) {
		t.Errorf("Expected ErrCommitGated, got %v", err)
	}
	if h.catalog.CallCount("batch-upload") != 0 {
		t.Error("batch-upload must not be called")
	}
	if len(h.runs.All()) != 0 {
		t.Error("No run should be recorded")
	}
}

func TestImportService_ValidateFailureKeepsView(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	h.catalog.ValidateFunc = func(ctx context.Context, file models.UploadFile) (*models.ValidationResult, error) {
		return nil, &catalog.APIError{Op: catalog.OpValidateBatch, StatusCode: 400, Message: "Missing required column: price"}
	}
	ctx := context.Background()

	view, _ := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))
	view, err := h.services.Import.Validate(ctx, operator, view.ID)

	var apiErr *catalog.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Expected *catalog.APIError, got %v", err)
	}
	if view == nil || view.State != workflow.StatePreview {
		t.Fatalf("Expected preview view alongside the error, got %+v", view)
	}
	if view.Notice == nil || view.Notice.Message != "Missing required column: price" {
		t.Errorf("Expected server message verbatim, got %+v", view.Notice)
	}
}

func TestImportService_StartWithUnusableFile(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})

	view, err := h.services.Import.Start(context.Background(), operator, csvUpload("name,sku\n"))
	if !errors.Is(err, workflow.ErrNoDataRows) {
		t.Errorf("Expected ErrNoDataRows, got %v", err)
	}
	if view == nil || view.State != workflow.StateUpload {
		t.Fatalf("Expected upload view, got %+v", view)
	}

	f := models.NewUploadFile("legacy.xls", []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1})
	view, err = h.services.Import.SelectFile(context.Background(), operator, view.ID, f)
	var parseErr *sheet.ParseError
	if !errors.As(err, &parseErr) {
		t.Errorf("Expected ParseError, got %v", err)
	}
	if view.State != workflow.StateUpload {
		t.Errorf("Expected upload, got %s", view.State)
	}
}

func TestImportService_WorkflowsArePerOperator(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	ctx := context.Background()

	view, _ := h.services.Import.Start(ctx, operator, nil)

	other := models.Principal{UserID: "ops-2"}
	if _, err := h.services.Import.Get(ctx, other, view.ID); !errors.Is(err, service.ErrWorkflowNotFound) {
		t.Errorf("Expected ErrWorkflowNotFound for another operator, got %v", err)
	}
	if _, err := h.services.Import.Get(ctx, operator, "missing"); !errors.Is(err, service.ErrWorkflowNotFound) {
		t.Errorf("Expected ErrWorkflowNotFound, got %v", err)
	}
	if _, err := h.services.Import.Get(ctx, operator, view.ID); err != nil {
		t.Errorf("Owner should see the workflow: %v", err)
	}
}

func TestImportService_ClearAndDelete(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	ctx := context.Background()

	view, _ := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))
	view, err := h.services.Import.Clear(ctx, operator, view.ID)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if view.State != workflow.StateUpload || len(view.Rows) != 0 || view.FileName != "" {
		t.Errorf("Expected empty upload view, got %+v", view)
	}

	if _, err := h.services.Import.UploadAnother(ctx, operator, view.ID); err == nil {
		t.Error("UploadAnother outside result should fail")
	}

	if err := h.services.Import.Delete(ctx, operator, view.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if h.services.Import.Count() != 0 {
		t.Errorf("Expected 0 workflows, got %d", h.services.Import.Count())
	}
	if err := h.services.Import.Delete(ctx, operator, view.ID); !errors.Is(err, service.ErrWorkflowNotFound) {
		t.Errorf("Expected ErrWorkflowNotFound, got %v", err)
	}
}

func TestImportService_RecordFailureDoesNotFailCommit(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	h.catalog.ValidateFunc = allValid
	h.runs.InsertError = errors.New("database is down")
	h.archive.UploadError = errors.New("bucket missing")
	ctx := context.Background()

	view, _ := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))
	h.services.Import.Validate(ctx, operator, view.ID)
	view, err := h.services.Import.Commit(ctx, operator, view.ID)
	if err != nil {
		t.Fatalf("Commit should succeed, got %v", err)
	}
	if view.State != workflow.StateResult {
		t.Errorf("Expected result, got %s", view.State)
	}
	if h.runs.CreateCalls != 1 {
		t.Errorf("Expected one record attempt, got %d", h.runs.CreateCalls)
	}
}

func TestImportService_ClearDuringCommitStillRecordsRun(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	h.catalog.ValidateFunc = allValid

	entered := make(chan struct{})
	release := make(chan struct{})
	h.catalog.UploadFunc = func(ctx context.Context, file models.UploadFile) (*models.UploadResult, error) {
		close(entered)
		<-release
		return &models.UploadResult{
			Message: "Products uploaded",
			Created: []models.CreatedRecord{{ID: "p1", SKU: "CHAIR-1"}, {ID: "p2", SKU: "TABLE-1"}},
		}, nil
	}
	ctx := context.Background()

	view, _ := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))
	id := view.ID
	if _, err := h.services.Import.Validate(ctx, operator, id); err != nil {
		t.Fatalf("Validate failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := h.services.Import.Commit(ctx, operator, id)
		done <- err
	}()
	<-entered

	view, err := h.services.Import.Clear(ctx, operator, id)
	if err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if view.State != workflow.StateUpload {
		t.Errorf("Expected upload after clear, got %s", view.State)
	}
	close(release)

	if err := <-done; !errors.Is(err, workflow.ErrStaleResponse) {
		t.Fatalf("Expected ErrStaleResponse, got %v", err)
	}
	if h.runs.CreateCalls != 1 {
		t.Fatalf("Expected the committed run to be recorded, got %d record calls", h.runs.CreateCalls)
	}
	for _, run := range h.runs.Runs {
		if run.CreatedCount != 2 || run.WorkflowID != id {
			t.Errorf("Unexpected run %+v", run)
		}
	}

	view, _ = h.services.Import.Get(ctx, operator, id)
	if view.State != workflow.StateUpload || view.Result != nil {
		t.Errorf("Expected the late response to leave the workflow cleared, got %s", view.State)
	}
}

func TestImportService_JanitorEvictsIdleWorkflows(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{
		SessionTTL:    time.Millisecond,
		JanitorPeriod: 5 * time.Millisecond,
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		h.services.Import.Start(ctx, operator, nil)
	}

	h.services.Import.StartJanitor(ctx)
	defer h.services.Import.StopJanitor()

	deadline := time.Now().Add(2 * time.Second)
	for h.services.Import.Count() > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("Expected idle workflows to be evicted, %d left", h.services.Import.Count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestImportService_StopJanitorWithoutStart(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	done := make(chan struct{})
	go func() {
		h.services.Import.StopJanitor()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StopJanitor blocked without a running janitor")
	}
}

func TestImportService_StopJanitorRightAfterStart(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{JanitorPeriod: time.Hour})

	h.services.Import.StartJanitor(context.Background())
	h.services.Import.StopJanitor()

	// A stopped janitor can be started again, which needs running reset
	done := make(chan struct{})
	go func() {
		h.services.Import.StartJanitor(context.Background())
		h.services.Import.StopJanitor()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}

func TestImportService_PollingKeepsWorkflowAlive(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{
		SessionTTL:    200 * time.Millisecond,
		JanitorPeriod: 10 * time.Millisecond,
	})
	ctx := context.Background()

	polled, _ := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))
	idle, _ := h.services.Import.Start(ctx, operator, csvUpload(productsCSV))

	h.services.Import.StartJanitor(ctx)
	defer h.services.Import.StopJanitor()

	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, err := h.services.Import.Get(ctx, operator, polled.ID); err != nil {
			t.Fatalf("Polled workflow was evicted: %v", err)
		}
		if h.services.Import.Count() == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Expected the idle workflow to be evicted")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if _, err := h.services.Import.Get(ctx, operator, idle.ID); !errors.Is(err, service.ErrWorkflowNotFound) {
		t.Errorf("Expected idle workflow evicted, got %v", err)
	}
}

func TestImportService_ViewRowNumbers(t *testing.T) {
	h := newTestHarness(t, config.ImportConfig{})
	content := strings.Replace(productsCSV, "\nPine", "\n,,,,,,\nPine", 1)

	view, err := h.services.Import.Start(context.Background(), operator, csvUpload(content))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if len(view.Rows) != 2 {
		t.Fatalf("Expected blank row skipped, got %d rows", len(view.Rows))
	}
	if view.Rows[1].Row != 4 {
		t.Errorf("Expected spreadsheet row 4, got %d", view.Rows[1].Row)
	}
}
