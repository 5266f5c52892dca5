package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/catalog-import-console/internal/database"
	"github.com/catalog-import-console/internal/models"
	"github.com/lib/pq"
)

const runColumns = `id, workflow_id, file_name, file_size, file_key, status, total_rows,
	created_count, failed_count, message, created_by, duration_ms, created_at, completed_at`

// importRunRepo is the concrete implementation of ImportRunRepository
type importRunRepo struct {
	db *database.DB
}

// NewImportRunRepo creates a new import run repository
func NewImportRunRepo(db *database.DB) ImportRunRepository {
	return &importRunRepo{db: db}
}

// Create inserts a finished run and its rejected rows in one transaction.
// Rows go through the COPY protocol; a large file can reject thousands.
func (r *importRunRepo) Create(ctx context.Context, run *models.ImportRun, errors []models.ImportRunError) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
		INSERT INTO import_runs (id, workflow_id, file_name, file_size, file_key, status, total_rows,
			created_count, failed_count, message, created_by, duration_ms, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = tx.ExecContext(ctx, query,
		run.ID, run.WorkflowID, run.FileName, run.FileSize, nullString(run.FileKey), run.Status,
		run.TotalRows, run.CreatedCount, run.FailedCount, nullString(run.Message),
		nullString(run.CreatedBy), run.DurationMs, run.CreatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert import run: %w", err)
	}

	if len(errors) > 0 {
		stmt, err := tx.PrepareContext(ctx, pq.CopyIn("import_run_errors", "run_id", "row_number", "message"))
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range errors {
			if _, err := stmt.ExecContext(ctx, run.ID, e.Row, e.Message); err != nil {
				return fmt.Errorf("failed to copy import run error: %w", err)
			}
		}

		// Flush the COPY buffer
		if _, err := stmt.ExecContext(ctx); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetByID retrieves a run by ID
func (r *importRunRepo) GetByID(ctx context.Context, id string) (*models.ImportRun, error) {
	query := `SELECT ` + runColumns + ` FROM import_runs WHERE id = $1`

	run, err := scanRun(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// List returns runs newest first
func (r *importRunRepo) List(ctx context.Context, filter ListFilter) ([]*models.ImportRun, error) {
	where, args := filter.where()
	query := `SELECT ` + runColumns + ` FROM import_runs` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []*models.ImportRun{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

// Count returns the number of runs matching filter
func (r *importRunRepo) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := filter.where()
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_runs"+where, args...).Scan(&count)
	return count, err
}

// GetErrors retrieves rejected rows of a run
func (r *importRunRepo) GetErrors(ctx context.Context, runID string, limit int) ([]models.ImportRunError, error) {
	query := `SELECT row_number, message FROM import_run_errors WHERE run_id = $1 ORDER BY row_number`

	var rows *sql.Rows
	var err error
	if limit > 0 {
		rows, err = r.db.QueryContext(ctx, query+" LIMIT $2", runID, limit)
	} else {
		rows, err = r.db.QueryContext(ctx, query, runID)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	errors := []models.ImportRunError{}
	for rows.Next() {
		var e models.ImportRunError
		if err := rows.Scan(&e.Row, &e.Message); err != nil {
			return nil, err
		}
		errors = append(errors, e)
	}

	return errors, rows.Err()
}

// CountErrors returns the number of rejected rows of a run
func (r *importRunRepo) CountErrors(ctx context.Context, runID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM import_run_errors WHERE run_id = $1", runID).Scan(&count)
	return count, err
}

// StreamErrors streams rejected rows for export (memory efficient)
func (r *importRunRepo) StreamErrors(ctx context.Context, runID string, callback func(*models.ImportRunError) error) error {
	query := `SELECT row_number, message FROM import_run_errors WHERE run_id = $1 ORDER BY row_number`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var e models.ImportRunError
		if err := rows.Scan(&e.Row, &e.Message); err != nil {
			return err
		}
		if err := callback(&e); err != nil {
			return err
		}
	}

	return rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(s scanner) (*models.ImportRun, error) {
	var run models.ImportRun
	var fileKey, message, createdBy sql.NullString
	var completedAt sql.NullTime

	err := s.Scan(
		&run.ID, &run.WorkflowID, &run.FileName, &run.FileSize, &fileKey, &run.Status,
		&run.TotalRows, &run.CreatedCount, &run.FailedCount, &message, &createdBy,
		&run.DurationMs, &run.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	run.FileKey = fileKey.String
	run.Message = message.String
	run.CreatedBy = createdBy.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	return &run, nil
}

func (f ListFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.CreatedBy != "" {
		args = append(args, f.CreatedBy)
		conds = append(conds, fmt.Sprintf("created_by = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

// Ping checks the history database is reachable
func (r *importRunRepo) Ping(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}
