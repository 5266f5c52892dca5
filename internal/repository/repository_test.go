package repository_test

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/catalog-import-console/internal/database"
	"github.com/catalog-import-console/internal/models"
	"github.com/catalog-import-console/internal/repository"
)

var runCols = []string{
	"id", "workflow_id", "file_name", "file_size", "file_key", "status", "total_rows",
	"created_count", "failed_count", "message", "created_by", "duration_ms", "created_at", "completed_at",
}

func setupMockDB(t *testing.T) (repository.ImportRunRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return repository.New(&database.DB{DB: db}).ImportRun, mock
}

func expectMet(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("Unmet expectations: %v", err)
	}
}

func TestImportRunRepo_CreateCopiesErrors(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	run := &models.ImportRun{
		ID:           "5f0c6c4e-0000-4000-8000-000000000001",
		WorkflowID:   "5f0c6c4e-0000-4000-8000-000000000002",
		FileName:     "products.csv",
		FileSize:     2048,
		Status:       models.ImportRunStatusPartial,
		TotalRows:    3,
		CreatedCount: 1,
		FailedCount:  2,
		Message:      "1 product created",
		CreatedBy:    "ops-1",
		CreatedAt:    now,
		CompletedAt:  &now,
	}
	rowErrors := []models.ImportRunError{
		{Row: 3, Message: "sku already exists"},
		{Row: 4, Message: "unknown subcategory"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_runs")).
		WithArgs(run.ID, run.WorkflowID, "products.csv", int64(2048), nil, models.ImportRunStatusPartial,
			3, 1, 2, "1 product created", "ops-1", int64(0), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectPrepare(regexp.QuoteMeta(`COPY "import_run_errors" ("run_id", "row_number", "message")`))
	mock.ExpectExec("COPY").WithArgs(run.ID, 3, "sku already exists").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("COPY").WithArgs(run.ID, 4, "unknown subcategory").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("COPY").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	if err := repo.Create(context.Background(), run, rowErrors); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	expectMet(t, mock)
}

func TestImportRunRepo_CreateWithoutErrorsSkipsCopy(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_runs")).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	run := &models.ImportRun{ID: "r1", WorkflowID: "w1", Status: models.ImportRunStatusCommitted, CreatedAt: time.Now()}
	if err := repo.Create(context.Background(), run, nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	expectMet(t, mock)
}

func TestImportRunRepo_CreateRollsBackOnInsertFailure(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO import_runs")).WillReturnError(errors.New("duplicate key"))
	mock.ExpectRollback()

	run := &models.ImportRun{ID: "r1", WorkflowID: "w1", Status: models.ImportRunStatusCommitted}
	err := repo.Create(context.Background(), run, []models.ImportRunError{{Row: 2, Message: "x"}})
	if err == nil {
		t.Fatal("Expected error")
	}
	expectMet(t, mock)
}

func TestImportRunRepo_GetByID(t *testing.T) {
	repo, mock := setupMockDB(t)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta("FROM import_runs WHERE id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows(runCols).
			AddRow("r1", "w1", "products.xlsx", 100, "imports/2026/01/02/r1/products.xlsx", "committed",
				2, 2, 0, nil, "ops-1", 350, now, nil))

	run, err := repo.GetByID(context.Background(), "r1")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if run == nil {
		t.Fatal("Run should be found")
	}
	if run.FileKey != "imports/2026/01/02/r1/products.xlsx" {
		t.Errorf("Expected file key, got %q", run.FileKey)
	}
	if run.Status != models.ImportRunStatusCommitted {
		t.Errorf("Expected committed, got %s", run.Status)
	}
	if run.Message != "" || run.CompletedAt != nil {
		t.Errorf("Expected NULL columns to stay empty, got %q %v", run.Message, run.CompletedAt)
	}
	expectMet(t, mock)
}

func TestImportRunRepo_GetByIDNotFound(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM import_runs WHERE id = $1")).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows(runCols))

	run, err := repo.GetByID(context.Background(), "missing")
	if err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
	if run != nil {
		t.Error("Should not find a run")
	}
}

func TestImportRunRepo_ListFilters(t *testing.T) {
	tests := []struct {
		name   string
		filter repository.ListFilter
		query  string
		args   int
	}{
		{"no filter", repository.ListFilter{}, "FROM import_runs ORDER BY created_at DESC", 0},
		{"limit", repository.ListFilter{Limit: 10}, "ORDER BY created_at DESC LIMIT $1", 1},
		{"user", repository.ListFilter{CreatedBy: "ops-1", Limit: 10}, "WHERE created_by = $1 ORDER BY created_at DESC LIMIT $2", 2},
		{"user and status", repository.ListFilter{CreatedBy: "ops-1", Status: models.ImportRunStatusPartial, Limit: 5, Offset: 5},
			"WHERE created_by = $1 AND status = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4", 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, mock := setupMockDB(t)
			now := time.Now()

			mock.ExpectQuery(regexp.QuoteMeta(tt.query)).
				WillReturnRows(sqlmock.NewRows(runCols).
					AddRow("r2", "w2", "b.csv", 1, nil, "partial", 2, 1, 1, "1 product created", "ops-1", 10, now, now).
					AddRow("r1", "w1", "a.csv", 1, nil, "committed", 1, 1, 0, nil, "ops-1", 10, now, now))

			runs, err := repo.List(context.Background(), tt.filter)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(runs) != 2 {
				t.Errorf("Expected 2 runs, got %d", len(runs))
			}
			if runs[0].ID != "r2" {
				t.Errorf("Expected r2 first, got %s", runs[0].ID)
			}
			expectMet(t, mock)
		})
	}
}

func TestImportRunRepo_Count(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM import_runs WHERE status = $1")).
		WithArgs("rejected").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.Count(context.Background(), repository.ListFilter{Status: models.ImportRunStatusRejected})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if count != 4 {
		t.Errorf("Expected 4, got %d", count)
	}
}

func TestImportRunRepo_CountErrors(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM import_run_errors WHERE run_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	count, err := repo.CountErrors(context.Background(), "r1")
	if err != nil {
		t.Fatalf("CountErrors failed: %v", err)
	}
	if count != 12 {
		t.Errorf("Expected 12, got %d", count)
	}
	expectMet(t, mock)
}

func TestImportRunRepo_GetErrors(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM import_run_errors WHERE run_id = $1 ORDER BY row_number LIMIT $2")).
		WithArgs("r1", 2).
		WillReturnRows(sqlmock.NewRows([]string{"row_number", "message"}).
			AddRow(2, "price must be a number").
			AddRow(5, "sku already exists"))

	errs, err := repo.GetErrors(context.Background(), "r1", 2)
	if err != nil {
		t.Fatalf("GetErrors failed: %v", err)
	}
	if len(errs) != 2 {
		t.Fatalf("Expected 2 errors, got %d", len(errs))
	}
	if errs[1].Row != 5 || errs[1].Message != "sku already exists" {
		t.Errorf("Unexpected error row: %+v", errs[1])
	}
}

func TestImportRunRepo_StreamErrorsStopsOnCallbackError(t *testing.T) {
	repo, mock := setupMockDB(t)

	mock.ExpectQuery(regexp.QuoteMeta("FROM import_run_errors WHERE run_id = $1")).
		WithArgs("r1").
		WillReturnRows(sqlmock.NewRows([]string{"row_number", "message"}).
			AddRow(2, "a").AddRow(3, "b").AddRow(4, "c"))

	stop := errors.New("client went away")
	seen := 0
	err := repo.StreamErrors(context.Background(), "r1", func(e *models.ImportRunError) error {
		seen++
		if seen == 2 {
			return stop
		}
		return nil
	})

	if !errors.Is(err, stop) {
		t.Errorf("Expected callback error, got %v", err)
	}
	if seen != 2 {
		t.Errorf("Expected 2 rows seen, got %d", seen)
	}
}

func TestImportRunRepo_Ping(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New failed: %v", err)
	}
	defer db.Close()
	repo := repository.New(&database.DB{DB: db}).ImportRun

	mock.ExpectPing()
	if err := repo.Ping(context.Background()); err != nil {
		t.Errorf("Expected ping to succeed, got %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("connection reset"))
	if err := repo.Ping(context.Background()); err == nil {
		t.Error("Expected ping error")
	}

	expectMet(t, mock)
}
